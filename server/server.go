// Package server 本地 HTTP 入口：把 gin 请求转成 API Gateway 代理事件交给 handler
package server

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// ProxyHandler API Gateway 代理处理函数
type ProxyHandler func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

func NewEngine(handle ProxyHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/depth", proxy(handle))

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"id", c.GetString(RequestIDHeader),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

// proxy 构造代理事件，写回响应；base64 响应体解码后输出
func proxy(handle ProxyHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		event := events.APIGatewayProxyRequest{
			Path:       c.Request.URL.Path,
			HTTPMethod: c.Request.Method,
			Headers:    map[string]string{},
			RequestContext: events.APIGatewayProxyRequestContext{
				RequestID: c.GetString(RequestIDHeader),
			},
		}
		for k := range c.Request.Header {
			event.Headers[k] = c.Request.Header.Get(k)
		}
		if q := c.Request.URL.Query(); len(q) > 0 {
			event.QueryStringParameters = make(map[string]string, len(q))
			event.MultiValueQueryStringParameters = q
			for k := range q {
				event.QueryStringParameters[k] = q.Get(k)
			}
		}

		resp, err := handle(c.Request.Context(), event)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		body := []byte(resp.Body)
		if resp.IsBase64Encoded {
			body, err = base64.StdEncoding.DecodeString(resp.Body)
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": "invalid base64 body"})
				return
			}
		}

		contentType := resp.Headers["Content-Type"]
		for k, v := range resp.Headers {
			if k != "Content-Type" {
				c.Header(k, v)
			}
		}
		c.Data(resp.StatusCode, contentType, body)
	}
}
