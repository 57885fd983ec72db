package util

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFetcher_DownloadImage(t *testing.T) {
	data := pngBytes(t, 7, 5)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.png":
			_, _ = w.Write(data)
		case "/redirect":
			http.Redirect(w, r, "/a.png", http.StatusFound)
		case "/text":
			_, _ = w.Write([]byte("hello"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f := NewFetcher(nil)

	t.Run("成功", func(t *testing.T) {
		img, raw, err := f.DownloadImage(context.Background(), server.URL+"/a.png")
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 7, 5), img.Bounds())
		assert.Equal(t, data, raw)
	})

	t.Run("重定向", func(t *testing.T) {
		img, _, err := f.DownloadImage(context.Background(), server.URL+"/redirect")
		require.NoError(t, err)
		assert.Equal(t, 7, img.Bounds().Dx())
	})

	t.Run("不是图片", func(t *testing.T) {
		_, _, err := f.DownloadImage(context.Background(), server.URL+"/text")
		assert.ErrorContains(t, err, "decode image")
	})

	t.Run("404", func(t *testing.T) {
		_, _, err := f.DownloadImage(context.Background(), server.URL+"/missing.png")
		assert.ErrorContains(t, err, "404")
	})
}

func TestOpenImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 3, 4), 0o644))

	img, err := OpenImage(path)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dy())

	_, err = OpenImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(&buf, true)
	logger.Debug("hello", "k", 1)
	assert.Contains(t, buf.String(), "hello")

	buf.Reset()
	logger = SetupLogger(&buf, false)
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}
