//go:build cgo

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

// initRuntime 进程内只初始化一次 ONNX Runtime
func initRuntime(libPath string) error {
	runtimeInitOnce.Do(func() {
		if libPath == "" {
			libPath = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

// ONNXGraph 基于 onnxruntime 的推理图
// 图定义文件 + 参数文件（external data，须与图定义同目录）
type ONNXGraph struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	mu         sync.Mutex
}

// LoadONNX 加载两个模型文件并创建 session
// session 创建时完成参数初始化，之后每次 Predict 只执行预测
func LoadONNX(graphPath, paramsPath string, opts Options) (Graph, error) {
	if _, err := os.Stat(graphPath); err != nil {
		return nil, fmt.Errorf("graph definition: %w", err)
	}
	if paramsPath != "" {
		if _, err := os.Stat(paramsPath); err != nil {
			return nil, fmt.Errorf("parameter file: %w", err)
		}
		if filepath.Dir(filepath.Clean(paramsPath)) != filepath.Dir(filepath.Clean(graphPath)) {
			return nil, fmt.Errorf("parameter file %s must live next to graph %s", paramsPath, graphPath)
		}
	}

	if err := initRuntime(opts.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("onnxruntime init: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(graphPath)
	if err != nil {
		return nil, fmt.Errorf("read graph io: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.New("graph declares no inputs or outputs")
	}

	inputName, outputName := opts.InputName, opts.OutputName
	if inputName == "" {
		inputName = inputs[0].Name
	}
	if outputName == "" {
		outputName = outputs[0].Name
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer func() {
		_ = sessOpts.Destroy()
	}()
	if opts.NumThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(graphPath, []string{inputName}, []string{outputName}, sessOpts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	slog.Info("loaded depth graph", "graph", graphPath, "params", paramsPath, "input", inputName, "output", outputName)

	return &ONNXGraph{
		session:    session,
		inputName:  inputName,
		outputName: outputName,
	}, nil
}

func (g *ONNXGraph) InputName() string  { return g.inputName }
func (g *ONNXGraph) OutputName() string { return g.outputName }

func (g *ONNXGraph) Predict(ctx context.Context, input Tensor) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session == nil {
		return Tensor{}, errors.New("graph is closed")
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("input tensor: %w", err)
	}
	defer func() {
		_ = in.Destroy()
	}()

	// 输出为 nil 时由 onnxruntime 按实际形状分配
	outputs := []ort.Value{nil}
	if err := g.session.Run([]ort.Value{in}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("inference: %w", err)
	}
	defer func() {
		_ = outputs[0].Destroy()
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("output %q is not a float32 tensor", g.outputName)
	}

	return Tensor{
		Shape: append([]int64(nil), out.GetShape()...),
		Data:  append([]float32(nil), out.GetData()...),
	}, nil
}

func (g *ONNXGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return nil
	}
	err := g.session.Destroy()
	g.session = nil
	return err
}
