// Package config 读取环境变量配置，非法值记录告警并回退默认值
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Var 读取环境变量，去掉空白和引号
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

func String(key, defaultValue string) func() string {
	return func() string {
		if s := Var(key); s != "" {
			return s
		}
		return defaultValue
	}
}

func Bool(key string) func() bool {
	return func() bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

func Duration(key string, defaultValue time.Duration) func() time.Duration {
	return func() time.Duration {
		s := Var(key)
		if s == "" {
			return defaultValue
		}
		if d, err := time.ParseDuration(s); err == nil {
			if d < 0 {
				return 0
			}
			return d
		}
		// 纯数字按秒
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
		slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
		return defaultValue
	}
}

func Int(key string, defaultValue int) func() int {
	return func() int {
		if s := Var(key); s != "" {
			n, err := strconv.Atoi(s)
			if err == nil && n >= 0 {
				return n
			}
			slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
		}
		return defaultValue
	}
}

var (
	// GraphPath 图定义文件；"luminance" 使用不依赖模型的启发式图
	GraphPath = String("DEPTH_GRAPH", filepath.Join("model", "tiefenrausch.onnx"))
	// ParamsPath 参数文件（ONNX external data）
	ParamsPath = String("DEPTH_PARAMS", filepath.Join("model", "tiefenrausch.onnx.data"))
	// SharedLibraryPath onnxruntime 动态库
	SharedLibraryPath = String("ONNXRUNTIME_SHARED_LIBRARY_PATH", "")
	NumThreads        = Int("DEPTH_NUM_THREADS", 0)

	Interpolation = String("DEPTH_INTERPOLATION", "area")
	Palette       = String("DEPTH_PALETTE", "hot")

	// FetchTimeout 下载原图超时，默认不超时
	FetchTimeout = Duration("DEPTH_FETCH_TIMEOUT", 0)

	ArchiveDir    = String("DEPTH_ARCHIVE_DIR", "")
	ArchiveBucket = String("DEPTH_ARCHIVE_BUCKET", "")
	ArchivePrefix = String("DEPTH_ARCHIVE_PREFIX", "depth")
	ArchiveTTL    = Duration("DEPTH_ARCHIVE_TTL", 24*time.Hour)
	PruneSchedule = String("DEPTH_ARCHIVE_PRUNE_SCHEDULE", "@every 1h")

	Host  = String("DEPTH_HOST", "127.0.0.1:8080")
	Debug = Bool("DEPTH_DEBUG")
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap 全部配置及说明，serve 启动时打印
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"DEPTH_GRAPH":                     {"DEPTH_GRAPH", GraphPath(), "Graph definition file, or \"luminance\" for the model-free heuristic"},
		"DEPTH_PARAMS":                    {"DEPTH_PARAMS", ParamsPath(), "Parameter initialization file next to the graph"},
		"ONNXRUNTIME_SHARED_LIBRARY_PATH": {"ONNXRUNTIME_SHARED_LIBRARY_PATH", SharedLibraryPath(), "Path to the onnxruntime shared library"},
		"DEPTH_NUM_THREADS":               {"DEPTH_NUM_THREADS", NumThreads(), "Intra-op threads (0 = runtime default)"},
		"DEPTH_INTERPOLATION":             {"DEPTH_INTERPOLATION", Interpolation(), "Resize filter: area, lanczos3, bilinear, catmullrom"},
		"DEPTH_PALETTE":                   {"DEPTH_PALETTE", Palette(), "Visualization palette: hot, turbo, gray"},
		"DEPTH_FETCH_TIMEOUT":             {"DEPTH_FETCH_TIMEOUT", FetchTimeout(), "Source download timeout (0 = none)"},
		"DEPTH_ARCHIVE_DIR":               {"DEPTH_ARCHIVE_DIR", ArchiveDir(), "Archive sources and renders to this directory"},
		"DEPTH_ARCHIVE_BUCKET":            {"DEPTH_ARCHIVE_BUCKET", ArchiveBucket(), "Archive sources and renders to this S3 bucket"},
		"DEPTH_ARCHIVE_PREFIX":            {"DEPTH_ARCHIVE_PREFIX", ArchivePrefix(), "S3 key prefix for the archive"},
		"DEPTH_ARCHIVE_TTL":               {"DEPTH_ARCHIVE_TTL", ArchiveTTL(), "Age after which archived files are pruned"},
		"DEPTH_ARCHIVE_PRUNE_SCHEDULE":    {"DEPTH_ARCHIVE_PRUNE_SCHEDULE", PruneSchedule(), "Cron schedule of the archive pruner"},
		"DEPTH_HOST":                      {"DEPTH_HOST", Host(), "Listen address of the HTTP server"},
		"DEPTH_DEBUG":                     {"DEPTH_DEBUG", Debug(), "Enable debug logging"},
	}
}
