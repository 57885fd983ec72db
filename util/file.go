package util

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	nhttp "github.com/chaos-io/depthlambda/util/http"
)

// Fetcher 下载并解码远程图片
type Fetcher struct {
	cli nhttp.IClient
}

func NewFetcher(cli nhttp.IClient) *Fetcher {
	if cli == nil {
		cli = nhttp.NewHTTPClient()
	}
	return &Fetcher{cli: cli}
}

// DownloadImage 下载图片，同时返回原始字节（归档用）
// 跟随重定向，不重试
func (f *Fetcher) DownloadImage(ctx context.Context, url string) (image.Image, []byte, error) {
	var imgData []byte
	err := f.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: url,
		Method:     "GET",
		Response:   &imgData,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("download %s: %w", url, err)
	}

	img, err := DecodeImage(imgData)
	if err != nil {
		return nil, nil, err
	}
	return img, imgData, nil
}

// DecodeImage 解码内存中的图片
func DecodeImage(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image (%d bytes): %w", len(data), err)
	}
	b := img.Bounds()
	slog.Debug("decoded image", "format", format, "width", b.Dx(), "height", b.Dy())
	return img, nil
}

// OpenImage 打开本地图片
func OpenImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeImage(data)
}
