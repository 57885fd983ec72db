package depth

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/chaos-io/depthlambda/depth/engine"
)

const (
	// 可视化归一化区间取 5%-95% 分位数，压掉离群值
	lowQuantile  = 0.05
	highQuantile = 0.95
)

// DisparityMap 单通道视差图（深度的倒数，越大越近），行主序
type DisparityMap struct {
	Width  int
	Height int
	Data   []float32
}

// NewDisparityMap 去掉前导的单位维度得到 (H, W)，再取 exp 还原 log 视差
func NewDisparityMap(output engine.Tensor) (*DisparityMap, error) {
	shape := output.Shape
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("expected single-channel output, got shape %v", output.Shape)
	}

	h, w := int(shape[0]), int(shape[1])
	if h*w != len(output.Data) {
		return nil, fmt.Errorf("%w: shape %v, %d values", engine.ErrShapeMismatch, output.Shape, len(output.Data))
	}

	data := make([]float32, len(output.Data))
	for i, v := range output.Data {
		data[i] = float32(math.Exp(float64(v)))
	}

	return &DisparityMap{Width: w, Height: h, Data: data}, nil
}

func (d *DisparityMap) At(x, y int) float32 {
	return d.Data[y*d.Width+x]
}

// Range 有限值上的分位数区间
// 没有有限值时 ok 为 false
func (d *DisparityMap) Range(lowQ, highQ float64) (lo, hi float64, ok bool) {
	finite := make([]float64, 0, len(d.Data))
	for _, v := range d.Data {
		f := float64(v)
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			finite = append(finite, f)
		}
	}
	if len(finite) == 0 {
		return 0, 0, false
	}
	sort.Float64s(finite)
	lo = stat.Quantile(lowQ, stat.Empirical, finite, nil)
	hi = stat.Quantile(highQ, stat.Empirical, finite, nil)
	return lo, hi, true
}

// Normalized 按分位数区间归一化到 [0,1]
// 非有限值记为 0；常量图全为 0
func (d *DisparityMap) Normalized() []float64 {
	out := make([]float64, len(d.Data))
	lo, hi, ok := d.Range(lowQuantile, highQuantile)
	den := hi - lo
	if !ok || den <= 0 {
		return out
	}
	for i, v := range d.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out[i] = clamp01((f - lo) / den)
	}
	return out
}

// Visualize 伪彩色渲染，尺寸与视差图相同，不透明
func Visualize(d *DisparityMap, p Palette) *image.RGBA {
	if p == nil {
		p = DefaultPalette
	}
	img := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
	for i, t := range d.Normalized() {
		c := p.At(t)
		j := (i/d.Width)*img.Stride + (i%d.Width)*4
		img.Pix[j] = c.R
		img.Pix[j+1] = c.G
		img.Pix[j+2] = c.B
		img.Pix[j+3] = 255
	}
	return img
}
