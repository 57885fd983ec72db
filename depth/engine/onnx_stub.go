//go:build !cgo

package engine

// LoadONNX 非 CGO 构建没有 onnxruntime
func LoadONNX(graphPath, paramsPath string, opts Options) (Graph, error) {
	return nil, ErrCGORequired
}
