package depth

import (
	"fmt"
	"image"
	"image/draw"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"
)

// Interpolation 缩放算法
type Interpolation string

const (
	// InterpolationArea 面积平均，缩小时不产生混叠
	InterpolationArea       Interpolation = "area"
	InterpolationLanczos3   Interpolation = "lanczos3"
	InterpolationBilinear   Interpolation = "bilinear"
	InterpolationCatmullRom Interpolation = "catmullrom"
)

func ParseInterpolation(s string) (Interpolation, error) {
	switch i := Interpolation(strings.ToLower(strings.TrimSpace(s))); i {
	case "":
		return InterpolationArea, nil
	case InterpolationArea, InterpolationLanczos3, InterpolationBilinear, InterpolationCatmullRom:
		return i, nil
	default:
		return "", fmt.Errorf("unknown interpolation %q", s)
	}
}

// resizeTo 缩放到 w x h，返回原点为 (0,0) 的 NRGBA
func resizeTo(img *image.NRGBA, w, h int, interp Interpolation) *image.NRGBA {
	switch interp {
	case InterpolationLanczos3:
		return toNRGBA(resize.Resize(uint(w), uint(h), img, resize.Lanczos3))
	case InterpolationBilinear:
		return toNRGBA(resize.Resize(uint(w), uint(h), img, resize.Bilinear))
	case InterpolationCatmullRom:
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		return dst
	default:
		return imaging.Resize(img, w, h, imaging.Box)
	}
}

// hasUsefulAlpha 检查 alpha 通道是否真的包含透明信息
func hasUsefulAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}

// flatten 拷贝为原点 (0,0) 的不透明 NRGBA
// 透明像素按 alpha 预乘，背景变黑
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	if hasUsefulAlpha(dst) {
		premultiply(dst)
	}
	return dst
}

// premultiply RGB × alpha，然后 alpha 置为不透明
func premultiply(img *image.NRGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		a := float64(img.Pix[i+3]) / 255.0
		img.Pix[i] = uint8(float64(img.Pix[i]) * a)
		img.Pix[i+1] = uint8(float64(img.Pix[i+1]) * a)
		img.Pix[i+2] = uint8(float64(img.Pix[i+2]) * a)
		img.Pix[i+3] = 255
	}
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
