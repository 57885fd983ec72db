// Package crawler 从网页中提取图片链接并批量下载
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	nhttp "github.com/chaos-io/depthlambda/util/http"
)

// 匹配 img 标签中的 src
var imgSrc = regexp.MustCompile(`<img[^>]+src="([^">]+)"`)

type Crawler struct {
	cli         nhttp.IClient
	concurrency int
}

func New(cli nhttp.IClient, concurrency int) *Crawler {
	if cli == nil {
		cli = nhttp.NewHTTPClient()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Crawler{cli: cli, concurrency: concurrency}
}

// ImageURLs 抓取页面并返回包含 filter 的图片绝对地址（去重，保持页面顺序）
func (c *Crawler) ImageURLs(ctx context.Context, pageURL, filter string) ([]string, error) {
	var body []byte
	err := c.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{RequestURI: pageURL, Response: &body})
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", pageURL, err)
	}
	return ExtractImageURLs(pageURL, body, filter)
}

// ExtractImageURLs 从 HTML 中提取图片地址，相对路径按 pageURL 补全
func ExtractImageURLs(pageURL string, body []byte, filter string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	seen := make(map[string]bool)
	var urls []string
	for _, m := range imgSrc.FindAllSubmatch(body, -1) {
		src := string(m[1])
		if filter != "" && !strings.Contains(src, filter) {
			continue
		}
		u, err := url.Parse(NormalizeThumbURL(src))
		if err != nil {
			continue
		}
		full := base.ResolveReference(u).String()
		if seen[full] {
			continue
		}
		seen[full] = true
		urls = append(urls, full)
	}
	return urls, nil
}

// NormalizeThumbURL MediaWiki 缩略图地址还原成原图地址
//
//	/images/thumb/a/ab/X.png/600px-X.png -> /images/a/ab/X.png
func NormalizeThumbURL(imgURL string) string {
	parts := strings.Split(imgURL, "/thumb/")
	if len(parts) != 2 {
		return imgURL
	}
	idx := strings.LastIndex(parts[1], "/")
	if idx == -1 {
		return imgURL
	}
	return parts[0] + "/" + parts[1][:idx]
}

// Download 并发下载到 dir，返回写入的文件路径；单个失败只记日志
func (c *Crawler) Download(ctx context.Context, urls []string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	names := fileNames(urls)
	paths := make([]string, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, u := range urls {
		if names[i] == "" {
			slog.Warn("download skipped", "url", u, "error", "no file name")
			continue
		}
		g.Go(func() error {
			p, err := c.save(ctx, u, filepath.Join(dir, names[i]))
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("download failed", "url", u, "error", err)
				return nil
			}
			slog.Info("downloaded", "url", u, "path", p)
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	saved := paths[:0]
	for _, p := range paths {
		if p != "" {
			saved = append(saved, p)
		}
	}
	return saved, nil
}

// fileNames 按 URL 路径的文件名命名，重名时加 _1 _2 后缀，保证并发下载不会写同一文件
// 没有文件名的 URL 对应空串
func fileNames(urls []string) []string {
	names := make([]string, len(urls))
	used := make(map[string]bool, len(urls))
	for i, imgURL := range urls {
		u, err := url.Parse(imgURL)
		if err != nil {
			continue
		}
		base := path.Base(u.Path)
		if base == "/" || base == "." {
			continue
		}
		name := base
		ext := path.Ext(base)
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), n, ext)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func (c *Crawler) save(ctx context.Context, imgURL, p string) (string, error) {
	var data []byte
	err := c.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{RequestURI: imgURL, Response: &data})
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}
