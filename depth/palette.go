package depth

import (
	"fmt"
	"image/color"
	"math"
	"strings"
)

// Palette 把 [0,1] 的相对深度映射为颜色，可替换的可视化策略
type Palette interface {
	Name() string
	At(t float64) color.RGBA
}

// lutPalette 256 级查表
type lutPalette struct {
	name string
	lut  [256]color.RGBA
}

func newLUTPalette(name string, fn func(t float64) (r, g, b float64)) *lutPalette {
	p := &lutPalette{name: name}
	for i := range p.lut {
		r, g, b := fn(float64(i) / 255.0)
		p.lut[i] = color.RGBA{R: toByte(r), G: toByte(g), B: toByte(b), A: 255}
	}
	return p
}

func (p *lutPalette) Name() string { return p.name }

func (p *lutPalette) At(t float64) color.RGBA {
	return p.lut[toByte(t)]
}

// toByte [0,1] -> [0,255]，越界截断
func toByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

var (
	// Gray 灰度，近处亮
	Gray Palette = newLUTPalette("gray", func(t float64) (float64, float64, float64) {
		return t, t, t
	})

	// Hot 黑-红-黄-白，各通道单调
	Hot Palette = newLUTPalette("hot", func(t float64) (float64, float64, float64) {
		return clamp01(3 * t), clamp01(3*t - 1), clamp01(3*t - 2)
	})

	// Turbo Google Turbo 的多项式近似
	Turbo Palette = newLUTPalette("turbo", func(t float64) (float64, float64, float64) {
		r := 0.13572138 + t*(4.61539260+t*(-42.66032258+t*(132.13108234+t*(-152.94239396+t*59.28637943))))
		g := 0.09140261 + t*(2.19418839+t*(4.84296658+t*(-14.18503333+t*(4.27729857+t*2.82956604))))
		b := 0.10667330 + t*(12.64194608+t*(-60.58204836+t*(110.36276771+t*(-89.90310912+t*27.34824973))))
		return clamp01(r), clamp01(g), clamp01(b)
	})
)

var palettes = map[string]Palette{
	Gray.Name():  Gray,
	Hot.Name():   Hot,
	Turbo.Name(): Turbo,
}

// DefaultPalette 亮度随视差单调递增
var DefaultPalette = Hot

func ParsePalette(name string) (Palette, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultPalette, nil
	}
	p, ok := palettes[name]
	if !ok {
		return nil, fmt.Errorf("unknown palette %q", name)
	}
	return p, nil
}
