// Package archive 保存请求的原图和渲染结果，每个请求一个唯一 key
package archive

import (
	"context"
	"mime"
	"path"
	"strings"

	"github.com/segmentio/ksuid"
)

// Store 归档存储
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

// NewKey 按时间排序的唯一 key，并发请求不会写到同一路径
func NewKey() string {
	return ksuid.New().String()
}

// ObjectName key + 文件名，扩展名由 Content-Type 推断
func ObjectName(key, name, contentType string) string {
	if path.Ext(name) == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			name += preferredExt(exts)
		}
	}
	return path.Join(key, name)
}

func preferredExt(exts []string) string {
	for _, e := range exts {
		switch strings.ToLower(e) {
		case ".png", ".jpg", ".gif", ".webp", ".stl":
			return e
		}
	}
	return exts[0]
}

// Nop 不归档
type Nop struct{}

func (Nop) Put(context.Context, string, string, []byte) error { return nil }
