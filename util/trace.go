package util

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Trace 记录一个阶段的耗时，用法：defer util.Trace("stage")()
func Trace(name string) func() {
	start := time.Now()
	slog.Debug("enter", "stage", name)
	return func() {
		slog.Debug("exit", "stage", name, "elapsed", time.Since(start))
	}
}

// SetupLogger 安装默认 slog 文本 logger
func SetupLogger(w io.Writer, debug bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
