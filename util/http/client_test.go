package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	client := NewHTTPClient()
	httpClient, ok := client.(*HTTPClient)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, httpClient.client.Timeout)

	// 0 表示不超时
	client = NewHTTPClient(WithTimeout(0))
	httpClient, ok = client.(*HTTPClient)
	require.True(t, ok)
	assert.Zero(t, httpClient.client.Timeout)
}

func TestHTTPClient_DoHTTPRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		requestParam *RequestParam
		handler      http.HandlerFunc
		wantErrMsg   string
	}{
		{
			name:         "GET请求",
			requestParam: &RequestParam{Method: "GET"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "GET", r.Method)
				_, _ = w.Write([]byte(`{"message": "success"}`))
			},
		},
		{
			name: "POST请求带JSON body",
			requestParam: &RequestParam{
				Method: "POST",
				Body:   map[string]interface{}{"key": "value"},
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				var data map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&data))
				assert.Equal(t, "value", data["key"])
			},
		},
		{
			name: "POST请求带io.Reader body",
			requestParam: &RequestParam{
				Method: "POST",
				Body:   strings.NewReader("plain body"),
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				assert.Equal(t, "plain body", string(body))
				assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
			},
		},
		{
			name: "Header覆盖默认Content-Type",
			requestParam: &RequestParam{
				Method: "POST",
				Body:   []byte{0x89, 0x50},
				Header: map[string]string{"Content-Type": "image/png"},
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
			},
		},
		{
			name:         "服务器返回错误状态码",
			requestParam: &RequestParam{Method: "GET"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte("no such image"))
			},
			wantErrMsg: "HTTP request failed with status 404: no such image",
		},
		{
			name:         "请求超时",
			requestParam: &RequestParam{Method: "GET", Timeout: 50 * time.Millisecond},
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
			wantErrMsg: "context deadline exceeded",
		},
		{
			name:         "请求参数为nil",
			requestParam: nil,
			handler:      func(w http.ResponseWriter, r *http.Request) {},
			wantErrMsg:   "request param is nil",
		},
		{
			name:         "JSON序列化失败",
			requestParam: &RequestParam{Method: "POST", Body: make(chan int)},
			handler:      func(w http.ResponseWriter, r *http.Request) {},
			wantErrMsg:   "json: unsupported type: chan int",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			if tt.requestParam != nil {
				tt.requestParam.RequestURI = server.URL
			}

			err := NewHTTPClient().DoHTTPRequest(context.Background(), tt.requestParam)
			if tt.wantErrMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHTTPClient_DoHTTPRequest_InvalidURL(t *testing.T) {
	t.Parallel()

	err := NewHTTPClient().DoHTTPRequest(context.Background(), &RequestParam{RequestURI: "://invalid-url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing protocol scheme")
}

func TestHTTPClient_DoHTTPRequest_RawResponse(t *testing.T) {
	t.Parallel()

	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	var raw []byte
	param := &RequestParam{RequestURI: server.URL, Response: &raw}
	err := NewHTTPClient().DoHTTPRequest(context.Background(), param)
	require.NoError(t, err)
	assert.Equal(t, payload, raw)
	assert.Equal(t, http.StatusOK, param.StatusCode)
}

func TestHTTPClient_DoHTTPRequest_FollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"moved": true}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var response map[string]bool
	err := NewHTTPClient().DoHTTPRequest(context.Background(), &RequestParam{
		RequestURI: server.URL + "/old",
		Response:   &response,
	})
	require.NoError(t, err)
	assert.True(t, response["moved"])
}

func TestHTTPClient_DoHTTPRequest_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := NewHTTPClient().DoHTTPRequest(ctx, &RequestParam{RequestURI: server.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}
