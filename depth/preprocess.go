package depth

import (
	"errors"
	"fmt"
	"image"

	"github.com/chaos-io/depthlambda/depth/engine"
)

const (
	// TargetMaxDimension 长边缩放到的尺寸
	TargetMaxDimension = 384
	// Stride 网络下采样步长，输入宽高必须是它的整数倍
	Stride = 32
)

var (
	ErrEmptyImage     = errors.New("image has zero area")
	ErrImageTooNarrow = errors.New("image too narrow for the network stride")
)

// TargetSize 长边缩放到 384，短边等比例，再各自向下取整到 32 的倍数
// 不防止放大：小图同样会被缩放
func TargetSize(w, h int) (nw, nh int, err error) {
	if w <= 0 || h <= 0 {
		return 0, 0, ErrEmptyImage
	}

	if h > w {
		nh = TargetMaxDimension
		nw = int(float64(w*nh) / float64(h))
	} else {
		nw = TargetMaxDimension
		nh = int(float64(h*nw) / float64(w))
	}

	nw -= nw % Stride
	nh -= nh % Stride

	if nw == 0 || nh == 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrImageTooNarrow, w, h)
	}
	return nw, nh, nil
}

// Preprocess 把任意尺寸的彩色图变成推理输入
//
//	缩放到 TargetSize
//	像素 / 255 归一化到 [0,1]
//	HWC -> CHW，加 batch 维，shape (1, 3, H, W)
func Preprocess(img image.Image, interp Interpolation) (engine.Tensor, error) {
	b := img.Bounds()
	nw, nh, err := TargetSize(b.Dx(), b.Dy())
	if err != nil {
		return engine.Tensor{}, err
	}

	resized := resizeTo(flatten(img), nw, nh, interp)

	plane := nw * nh
	data := make([]float32, 3*plane)
	for y := 0; y < nh; y++ {
		row := y * resized.Stride
		for x := 0; x < nw; x++ {
			i := row + x*4
			p := y*nw + x
			data[p] = float32(float64(resized.Pix[i]) / 255.0)
			data[plane+p] = float32(float64(resized.Pix[i+1]) / 255.0)
			data[2*plane+p] = float32(float64(resized.Pix[i+2]) / 255.0)
		}
	}

	return engine.NewTensor([]int64{1, 3, int64(nh), int64(nw)}, data)
}
