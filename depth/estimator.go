package depth

import (
	"context"
	"fmt"
	"image"

	"github.com/chaos-io/depthlambda/depth/engine"
	"github.com/chaos-io/depthlambda/util"
)

// Estimator 预处理 -> 推理 -> 可视化
type Estimator struct {
	graph         engine.Graph
	interpolation Interpolation
	palette       Palette
}

type EstimatorOption func(*Estimator)

func WithInterpolation(i Interpolation) EstimatorOption {
	return func(e *Estimator) {
		e.interpolation = i
	}
}

func WithPalette(p Palette) EstimatorOption {
	return func(e *Estimator) {
		if p != nil {
			e.palette = p
		}
	}
}

func NewEstimator(g engine.Graph, opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		graph:         g,
		interpolation: InterpolationArea,
		palette:       DefaultPalette,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result 一次估计的全部产物
type Result struct {
	InputShape    []int64
	Output        engine.Tensor
	Disparity     *DisparityMap
	Visualization *image.RGBA
}

// Estimate 估计一张图的深度
// 调用方持有 ws；每次执行前显式 Reset，不会读到上一次请求的 blob
func (e *Estimator) Estimate(ctx context.Context, ws *engine.Workspace, img image.Image) (*Result, error) {
	defer util.Trace("estimate depth")()

	input, err := Preprocess(img, e.interpolation)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	ws.Reset()
	if err := ws.Feed(e.graph.InputName(), input); err != nil {
		return nil, err
	}
	if err := engine.Run(ctx, e.graph, ws); err != nil {
		return nil, err
	}
	output, err := ws.Fetch(e.graph.OutputName())
	if err != nil {
		return nil, err
	}

	disparity, err := NewDisparityMap(output)
	if err != nil {
		return nil, fmt.Errorf("postprocess: %w", err)
	}

	return &Result{
		InputShape:    input.Shape,
		Output:        output,
		Disparity:     disparity,
		Visualization: Visualize(disparity, e.palette),
	}, nil
}

func (e *Estimator) Close() error {
	return e.graph.Close()
}
