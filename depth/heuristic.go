package depth

import (
	"context"
	"fmt"
	"math"

	"github.com/chaos-io/depthlambda/depth/engine"
)

const (
	HeuristicGraphName = "luminance"
	heuristicInput     = "image"
	heuristicOutput    = "log_disparity"
)

// LuminanceGraph 不依赖模型的启发式“深度”：亮处当作近处
// 灰度 + gamma 校正 + 3x3 高斯模糊，输出 log 视差，shape (1, 1, H, W)
// 用于没有模型文件或 onnxruntime 的环境
type LuminanceGraph struct {
	Invert bool
}

func (g *LuminanceGraph) InputName() string  { return heuristicInput }
func (g *LuminanceGraph) OutputName() string { return heuristicOutput }
func (g *LuminanceGraph) Close() error       { return nil }

func (g *LuminanceGraph) Predict(ctx context.Context, input engine.Tensor) (engine.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return engine.Tensor{}, err
	}
	s := input.Shape
	if len(s) != 4 || s[0] != 1 || s[1] != 3 {
		return engine.Tensor{}, fmt.Errorf("%w: want (1, 3, H, W), got %v", engine.ErrShapeMismatch, s)
	}
	h, w := int(s[2]), int(s[3])
	plane := h * w
	if len(input.Data) != 3*plane {
		return engine.Tensor{}, fmt.Errorf("%w: shape %v, %d values", engine.ErrShapeMismatch, s, len(input.Data))
	}

	// 灰度化 + gamma 校正
	gray := make([]float64, plane)
	for p := 0; p < plane; p++ {
		r, gr, b := float64(input.Data[p]), float64(input.Data[plane+p]), float64(input.Data[2*plane+p])
		v := math.Pow(clamp01(0.299*r+0.587*gr+0.114*b), 1.5)
		if g.Invert {
			v = 1 - v
		}
		gray[p] = v
	}

	// 高斯模糊 (3x3)，边缘按最近像素延拓
	k := [3][3]float64{
		{1, 2, 1},
		{2, 4, 2},
		{1, 2, 1},
	}
	out := make([]float32, plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for ky := -1; ky <= 1; ky++ {
				yy := min(max(y+ky, 0), h-1)
				for kx := -1; kx <= 1; kx++ {
					xx := min(max(x+kx, 0), w-1)
					sum += gray[yy*w+xx] * k[ky+1][kx+1]
				}
			}
			// 加偏置避免 log(0)
			out[y*w+x] = float32(math.Log(sum/16 + 1e-3))
		}
	}

	return engine.NewTensor([]int64{1, 1, int64(h), int64(w)}, out)
}
