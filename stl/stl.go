// Package stl 把视差图生成可打印的 ASCII STL 浮雕
package stl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/chaos-io/depthlambda/depth"
)

type Options struct {
	// ModelWidth 模型 X 方向宽度 (mm)
	ModelWidth float64
	// ModelThickness 浮雕最大高度 (mm)
	ModelThickness float64
	// BaseThickness 底座厚度 (mm)
	BaseThickness float64
	// Resolution 长边最多采样的顶点数（影响 STL 面数），0 表示不降采样
	Resolution int
}

func DefaultOptions() Options {
	return Options{ModelWidth: 50, ModelThickness: 5, BaseThickness: 2, Resolution: 128}
}

var ErrTooSmall = errors.New("depth map must be at least 2x2")

type vec3 [3]float64

// Write 生成浮雕：近处（视差大）凸起
// 顶面、底面 (Z = -BaseThickness) 和四周侧壁构成封闭网格，所有面法线朝外
func Write(w io.Writer, d *depth.DisparityMap, opts Options) error {
	if d.Width < 2 || d.Height < 2 {
		return ErrTooSmall
	}

	// 构建顶点高度
	step := GridStep(d.Width, d.Height, opts.Resolution)
	width, height := (d.Width-1)/step+1, (d.Height-1)/step+1
	norm := d.Normalized()
	heights := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			heights[y*width+x] = norm[y*step*d.Width+x*step] * opts.ModelThickness
		}
	}
	z := func(x, y int) float64 {
		return heights[y*width+x]
	}

	pixelSize := opts.ModelWidth / float64(width)
	base := -opts.BaseThickness
	px := func(x int) float64 { return float64(x) * pixelSize }
	py := func(y int) float64 { return float64(height-y-1) * pixelSize }

	bw := bufio.NewWriter(w)
	fw := &facetWriter{w: bw}

	fw.printf("solid relief_model\n")

	// 顶面、底面
	for y := 0; y < height-1; y++ {
		for x := 0; x < width-1; x++ {
			x0, x1 := px(x), px(x+1)
			y0, y1 := py(y), py(y+1)

			// y 下标增大时 Y 坐标减小，顶面按 v1 v3 v2 逆时针（俯视）
			fw.facet(vec3{x0, y0, z(x, y)}, vec3{x0, y1, z(x, y+1)}, vec3{x1, y0, z(x+1, y)})
			fw.facet(vec3{x1, y0, z(x+1, y)}, vec3{x0, y1, z(x, y+1)}, vec3{x1, y1, z(x+1, y+1)})

			fw.facet(vec3{x0, y0, base}, vec3{x1, y0, base}, vec3{x1, y1, base})
			fw.facet(vec3{x0, y0, base}, vec3{x1, y1, base}, vec3{x0, y1, base})
		}
	}

	// 前后边缘
	for x := 0; x < width-1; x++ {
		x0, x1 := px(x), px(x+1)

		yf := py(height - 1)
		fw.facet(vec3{x0, yf, base}, vec3{x1, yf, base}, vec3{x0, yf, z(x, height-1)})
		fw.facet(vec3{x1, yf, base}, vec3{x1, yf, z(x+1, height-1)}, vec3{x0, yf, z(x, height-1)})

		yb := py(0)
		fw.facet(vec3{x0, yb, base}, vec3{x0, yb, z(x, 0)}, vec3{x1, yb, base})
		fw.facet(vec3{x1, yb, base}, vec3{x0, yb, z(x, 0)}, vec3{x1, yb, z(x+1, 0)})
	}

	// 左右边缘
	for y := 0; y < height-1; y++ {
		y0, y1 := py(y), py(y+1)

		xl := px(0)
		fw.facet(vec3{xl, y0, base}, vec3{xl, y1, base}, vec3{xl, y0, z(0, y)})
		fw.facet(vec3{xl, y1, base}, vec3{xl, y1, z(0, y+1)}, vec3{xl, y0, z(0, y)})

		xr := px(width - 1)
		fw.facet(vec3{xr, y0, base}, vec3{xr, y0, z(width-1, y)}, vec3{xr, y1, base})
		fw.facet(vec3{xr, y1, base}, vec3{xr, y0, z(width-1, y)}, vec3{xr, y1, z(width-1, y+1)})
	}

	fw.printf("endsolid relief_model\n")

	if fw.err != nil {
		return fw.err
	}
	return bw.Flush()
}

// GridStep 降采样步长，使长边顶点数不超过 resolution
func GridStep(width, height, resolution int) int {
	longest := max(width, height)
	if resolution < 2 || longest <= resolution {
		return 1
	}
	return (longest-1)/(resolution-1) + 1
}

// FacetCount Write 对 width x height 视差图生成的三角面数
func FacetCount(width, height, resolution int) int {
	step := GridStep(width, height, resolution)
	gw, gh := (width-1)/step+1, (height-1)/step+1
	return 4*(gw-1)*(gh-1) + 4*(gw-1) + 4*(gh-1)
}

// facetWriter 记住第一个写错误，后续写入跳过
type facetWriter struct {
	w   io.Writer
	err error
}

func (f *facetWriter) printf(format string, args ...any) {
	if f.err != nil {
		return
	}
	_, f.err = fmt.Fprintf(f.w, format, args...)
}

// 写入 STL 面，法线由顶点顺序（右手）决定
func (f *facetWriter) facet(v1, v2, v3 vec3) {
	a := vec3{v2[0] - v1[0], v2[1] - v1[1], v2[2] - v1[2]}
	b := vec3{v3[0] - v1[0], v3[1] - v1[1], v3[2] - v1[2]}
	n := vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
	if norm := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]); norm > 0 {
		for i := range n {
			n[i] /= norm
		}
	}
	f.printf("  facet normal %f %f %f\n", n[0], n[1], n[2])
	f.printf("    outer loop\n")
	f.printf("      vertex %f %f %f\n", v1[0], v1[1], v1[2])
	f.printf("      vertex %f %f %f\n", v2[0], v2[1], v2[2])
	f.printf("      vertex %f %f %f\n", v3[0], v3[1], v3[2])
	f.printf("    endloop\n")
	f.printf("  endfacet\n")
}
