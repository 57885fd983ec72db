// Package handler 深度估计的 API Gateway 代理处理器
//
//	RECEIVED -> FETCHING -> INFERRING -> RESPONDING
//	任一步失败进入 ERROR
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"

	"github.com/chaos-io/depthlambda/archive"
	"github.com/chaos-io/depthlambda/depth"
	"github.com/chaos-io/depthlambda/depth/engine"
	"github.com/chaos-io/depthlambda/stl"
	"github.com/chaos-io/depthlambda/util"
)

const (
	FormatPNG = "png"
	FormatSTL = "stl"

	ContentTypePNG  = "image/png"
	ContentTypeSTL  = "model/stl"
	ContentTypeJSON = "application/json"
)

var ErrBadRequest = errors.New("bad request")

type State int

const (
	StateReceived State = iota
	StateFetching
	StateInferring
	StateResponding
	StateError
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "RECEIVED"
	case StateFetching:
		return "FETCHING"
	case StateInferring:
		return "INFERRING"
	case StateResponding:
		return "RESPONDING"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Fetcher 下载并解码原图
type Fetcher interface {
	DownloadImage(ctx context.Context, url string) (image.Image, []byte, error)
}

type Handler struct {
	estimator *depth.Estimator
	fetcher   Fetcher
	archive   archive.Store
	stlOpts   stl.Options

	// mu 保护 ws：同一时刻只有一次图执行
	mu sync.Mutex
	ws *engine.Workspace
}

type Option func(*Handler)

func WithFetcher(f Fetcher) Option {
	return func(h *Handler) {
		h.fetcher = f
	}
}

func WithArchive(s archive.Store) Option {
	return func(h *Handler) {
		if s != nil {
			h.archive = s
		}
	}
}

func WithSTLOptions(o stl.Options) Option {
	return func(h *Handler) {
		h.stlOpts = o
	}
}

func New(est *depth.Estimator, opts ...Option) *Handler {
	h := &Handler{
		estimator: est,
		archive:   archive.Nop{},
		stlOpts:   stl.DefaultOptions(),
		ws:        engine.NewWorkspace(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.fetcher == nil {
		h.fetcher = util.NewFetcher(nil)
	}
	return h
}

// request 单次请求的状态
type request struct {
	state  State
	src    string
	format string
	key    string
}

func (r *request) to(s State) {
	slog.Debug("state transition", "from", r.state, "to", s, "src", r.src)
	r.state = s
}

// Handle Lambda 入口：总是返回响应，错误编码在状态码里
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	r := &request{state: StateReceived}
	slog.Info("event received", "requestId", event.RequestContext.RequestID, "path", event.Path, "query", event.QueryStringParameters)

	body, contentType, err := h.serve(ctx, r, event)
	if err != nil {
		r.to(StateError)
		return errorResponse(err), nil
	}

	resp := events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Headers:         map[string]string{"Content-Type": contentType},
		Body:            base64.StdEncoding.EncodeToString(body),
		IsBase64Encoded: true,
	}
	slog.Info("response", "status", resp.StatusCode, "contentType", contentType, "bytes", len(body), "archive", r.key)
	return resp, nil
}

func (h *Handler) serve(ctx context.Context, r *request, event events.APIGatewayProxyRequest) ([]byte, string, error) {
	// 没有 queryStringParameters 时 map 为 nil，取值为空串
	// 只校验非空，空白地址交给下载失败 (500)
	r.src = event.QueryStringParameters["src"]
	if r.src == "" {
		return nil, "", ErrBadRequest
	}
	r.format = strings.ToLower(event.QueryStringParameters["format"])
	switch r.format {
	case "":
		r.format = FormatPNG
	case FormatPNG, FormatSTL:
	default:
		return nil, "", fmt.Errorf("%w: unsupported format %q", ErrBadRequest, r.format)
	}

	r.to(StateFetching)
	img, raw, err := h.fetcher.DownloadImage(ctx, r.src)
	if err != nil {
		return nil, "", err
	}

	r.to(StateInferring)
	res, err := h.estimate(ctx, img)
	if err != nil {
		return nil, "", err
	}

	r.to(StateResponding)
	var body []byte
	var contentType string
	switch r.format {
	case FormatSTL:
		var buf bytes.Buffer
		if err := stl.Write(&buf, res.Disparity, h.stlOpts); err != nil {
			return nil, "", fmt.Errorf("write stl: %w", err)
		}
		body, contentType = buf.Bytes(), ContentTypeSTL
	default:
		var buf bytes.Buffer
		if err := png.Encode(&buf, res.Visualization); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		body, contentType = buf.Bytes(), ContentTypePNG
	}

	if err := h.store(ctx, r, raw, body, contentType); err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

func (h *Handler) estimate(ctx context.Context, img image.Image) (*depth.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.estimator.Estimate(ctx, h.ws, img)
}

// store 归档原图和结果，每个请求独立 key
func (h *Handler) store(ctx context.Context, r *request, raw, body []byte, contentType string) error {
	if _, ok := h.archive.(archive.Nop); ok {
		return nil
	}
	r.key = archive.NewKey()

	srcType := http.DetectContentType(raw)
	if err := h.archive.Put(ctx, archive.ObjectName(r.key, "source", srcType), srcType, raw); err != nil {
		return fmt.Errorf("archive source: %w", err)
	}
	name := "depth." + FormatPNG
	if contentType == ContentTypeSTL {
		name = "relief." + FormatSTL
	}
	if err := h.archive.Put(ctx, archive.ObjectName(r.key, name, contentType), contentType, body); err != nil {
		return fmt.Errorf("archive result: %w", err)
	}
	return nil
}

func errorResponse(err error) events.APIGatewayProxyResponse {
	status := http.StatusInternalServerError
	msg := err.Error()
	if errors.Is(err, ErrBadRequest) {
		status = http.StatusBadRequest
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	slog.Warn("request failed", "status", status, "error", msg)

	body, _ := json.Marshal(map[string]string{"error": msg})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": ContentTypeJSON},
		Body:       string(body),
	}
}

func (h *Handler) Close() error {
	return h.estimator.Close()
}
