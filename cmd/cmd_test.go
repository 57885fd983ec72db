package cmd

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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/depthlambda/archive"
	"github.com/chaos-io/depthlambda/depth"
)

func writePNG(t *testing.T, path string, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	if path != "" {
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	}
	return buf.Bytes()
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	cli := NewCLI()
	cli.SetArgs(args)
	return cli.ExecuteContext(context.Background())
}

func TestEstimateCommand(t *testing.T) {
	t.Setenv("DEPTH_GRAPH", depth.HeuristicGraphName)
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	writePNG(t, src, 200, 100)

	out := filepath.Join(dir, "out", "depth.png")
	stlPath := filepath.Join(dir, "out", "model.stl")
	require.NoError(t, run(t, "estimate", src, "-o", out, "--stl", stlPath))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 384, 192), img.Bounds())

	data, err := os.ReadFile(stlPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "solid relief_model"))
}

func TestEstimateCommand_Errors(t *testing.T) {
	t.Setenv("DEPTH_GRAPH", depth.HeuristicGraphName)
	dir := t.TempDir()

	err := run(t, "estimate", filepath.Join(dir, "missing.png"), "-o", filepath.Join(dir, "out.png"))
	assert.ErrorContains(t, err, "failed to load image")

	t.Setenv("DEPTH_PALETTE", "rainbow")
	src := filepath.Join(dir, "in.png")
	writePNG(t, src, 64, 64)
	assert.Error(t, run(t, "estimate", src))

	assert.Error(t, run(t, "estimate"))
}

func TestEstimateCommand_MissingGraph(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEPTH_GRAPH", filepath.Join(dir, "missing.onnx"))
	t.Setenv("DEPTH_PARAMS", filepath.Join(dir, "missing.onnx.data"))

	src := filepath.Join(dir, "in.png")
	writePNG(t, src, 64, 64)
	assert.ErrorContains(t, run(t, "estimate", src), "load graph")
}

func TestCrawlCommand(t *testing.T) {
	t.Setenv("DEPTH_GRAPH", depth.HeuristicGraphName)
	data := writePNG(t, "", 96, 64)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			_, _ = w.Write([]byte(`<img src="/images/thumb/hero_a.png/300px-hero_a.png"><img src="/images/logo.png">`))
		case "/images/hero_a.png":
			_, _ = w.Write(data)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	require.NoError(t, run(t, "crawl", server.URL+"/page", "-o", dir, "--filter", "hero", "--estimate"))

	_, err := os.Stat(filepath.Join(dir, "hero_a.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "hero_a_depth.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "logo.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuildArchive(t *testing.T) {
	t.Setenv("DEPTH_ARCHIVE_BUCKET", "")
	t.Setenv("DEPTH_ARCHIVE_DIR", "")
	store, err := buildArchive(context.Background())
	require.NoError(t, err)
	assert.IsType(t, archive.Nop{}, store)

	dir := t.TempDir()
	t.Setenv("DEPTH_ARCHIVE_DIR", dir)
	store, err = buildArchive(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &archive.DirStore{}, store)
}
