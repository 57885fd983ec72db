package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealth(t *testing.T) {
	r := NewEngine(nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestDepth_Proxy(t *testing.T) {
	var got events.APIGatewayProxyRequest
	r := NewEngine(func(_ context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		got = event
		return events.APIGatewayProxyResponse{
			StatusCode:      http.StatusOK,
			Headers:         map[string]string{"Content-Type": "image/png"},
			Body:            base64.StdEncoding.EncodeToString([]byte("png bytes")),
			IsBase64Encoded: true,
		}, nil
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/depth?src=http%3A%2F%2Fexample.com%2Fa.jpg", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png bytes", w.Body.String())
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

	assert.Equal(t, "http://example.com/a.jpg", got.QueryStringParameters["src"])
	assert.Equal(t, "req-1", got.RequestContext.RequestID)
	assert.Equal(t, "/depth", got.Path)
}

func TestDepth_NoQuery(t *testing.T) {
	var got events.APIGatewayProxyRequest
	r := NewEngine(func(_ context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		got = event
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"bad request"}`,
		}, nil
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/depth", nil))

	assert.Nil(t, got.QueryStringParameters)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"bad request"}`, w.Body.String())
}

func TestDepth_HandlerError(t *testing.T) {
	r := NewEngine(func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return events.APIGatewayProxyResponse{}, errors.New("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/depth?src=x", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
