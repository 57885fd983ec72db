package depth

import (
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/depthlambda/depth/engine"
)

// failingGraph 模拟形状不匹配
type failingGraph struct{ LuminanceGraph }

func (g *failingGraph) Predict(context.Context, engine.Tensor) (engine.Tensor, error) {
	return engine.Tensor{}, engine.ErrShapeMismatch
}

func TestEstimator_Estimate(t *testing.T) {
	est := NewEstimator(&LuminanceGraph{}, WithPalette(Gray))
	ws := engine.NewWorkspace()

	res, err := est.Estimate(context.Background(), ws, gradient(200, 100))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 192, 384}, res.InputShape)
	assert.Equal(t, 384, res.Disparity.Width)
	assert.Equal(t, 192, res.Disparity.Height)
	assert.Equal(t, 384, res.Visualization.Bounds().Dx())
	assert.Equal(t, 192, res.Visualization.Bounds().Dy())

	// 亮处视差大
	row := 96 * 384
	assert.Greater(t, res.Disparity.Data[row+380], res.Disparity.Data[row+3])
	assert.Greater(t, res.Visualization.RGBAAt(380, 96).R, res.Visualization.RGBAAt(3, 96).R)

	assert.Equal(t, []string{"image", "log_disparity"}, ws.Blobs())

	f, err := os.Create(filepath.Join(t.TempDir(), ksuid.New().String()+"_depth.png"))
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	require.NoError(t, png.Encode(f, res.Visualization))
	t.Logf("generated depth map %s", f.Name())
}

func TestEstimator_Repeatable(t *testing.T) {
	est := NewEstimator(&LuminanceGraph{})
	ws := engine.NewWorkspace()
	img := gradient(123, 321)

	first, err := est.Estimate(context.Background(), ws, img)
	require.NoError(t, err)
	second, err := est.Estimate(context.Background(), ws, img)
	require.NoError(t, err)

	assert.Equal(t, first.Output.Data, second.Output.Data)
	assert.Equal(t, first.Visualization.Pix, second.Visualization.Pix)
	assert.Equal(t, 2, ws.Runs())
}

func TestEstimator_GraphError(t *testing.T) {
	est := NewEstimator(&failingGraph{})
	ws := engine.NewWorkspace()

	_, err := est.Estimate(context.Background(), ws, gradient(64, 64))
	assert.True(t, errors.Is(err, engine.ErrShapeMismatch))

	// 失败后的下一次请求从干净的工作区开始
	est = NewEstimator(&LuminanceGraph{})
	_, err = est.Estimate(context.Background(), ws, gradient(64, 64))
	assert.NoError(t, err)
}

func TestEstimator_PreprocessError(t *testing.T) {
	est := NewEstimator(&LuminanceGraph{})
	_, err := est.Estimate(context.Background(), engine.NewWorkspace(), gradient(1000, 10))
	assert.ErrorIs(t, err, ErrImageTooNarrow)
}

func TestLuminanceGraph_BadShape(t *testing.T) {
	_, err := (&LuminanceGraph{}).Predict(context.Background(), engine.Tensor{Shape: []int64{1, 1, 2, 2}, Data: make([]float32, 4)})
	assert.ErrorIs(t, err, engine.ErrShapeMismatch)
}
