package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrCGORequired = errors.New("onnx inference requires CGO support; rebuild with CGO_ENABLED=1")

// Graph 预训练推理图，输入输出名由图本身声明
type Graph interface {
	InputName() string
	OutputName() string
	// Predict 纯函数：张量进，张量出
	Predict(ctx context.Context, input Tensor) (Tensor, error)
	Close() error
}

// Run 在工作区上执行一次图：读取输入 blob，写回输出 blob
// 工作区必须先 Reset 并 Feed 输入
func Run(ctx context.Context, g Graph, ws *Workspace) error {
	if ws.Has(g.OutputName()) {
		return ErrStaleWorkspace
	}

	input, err := ws.Fetch(g.InputName())
	if err != nil {
		return err
	}

	output, err := g.Predict(ctx, input)
	if err != nil {
		return fmt.Errorf("run graph: %w", err)
	}

	slog.Debug("graph run", "input", g.InputName(), "inShape", input.Shape, "output", g.OutputName(), "outShape", output.Shape)
	ws.store(g.OutputName(), output)
	return nil
}

// Options ONNX Runtime 配置
type Options struct {
	// SharedLibraryPath onnxruntime 动态库路径，空则读取 ONNXRUNTIME_SHARED_LIBRARY_PATH
	SharedLibraryPath string
	// InputName/OutputName 为空时使用图声明的第一个输入/输出
	InputName  string
	OutputName string
	NumThreads int
}
