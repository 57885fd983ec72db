package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 描述一次请求
//
//	Body: nil / io.Reader / []byte / 任意可 JSON 序列化的值
//	Response: nil / *[]byte（原始响应体）/ JSON 反序列化目标
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	// Timeout 单次请求超时，0 表示只受 client 超时约束
	Timeout time.Duration
	// StatusCode 请求完成后回填
	StatusCode int
}
