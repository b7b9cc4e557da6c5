package strategy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/shell-box/shell-box/internal/bucket"
)

// HTTPFetcher 用共享 http.Client 执行实时请求，并把响应落成快照。
// 相对 URL 基于源站地址解析，因此缓存键可以稳定使用相对路径；
// 正文整体读入内存：快照存储的是完整副本而非流。
type HTTPFetcher struct {
	client *http.Client
	base   *url.URL
}

// NewHTTPFetcher 构造基于共享客户端的 Fetcher，base 为配置的源站地址。
func NewHTTPFetcher(client *http.Client, base *url.URL) *HTTPFetcher {
	return &HTTPFetcher{client: client, base: base}
}

// Fetch 执行一次实时请求。任何网络错误原样返回，由策略层决定兜底。
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*bucket.Snapshot, error) {
	target, err := f.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	httpReq.Header.Del("Accept-Encoding")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &bucket.Snapshot{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   payload,
	}, nil
}

// resolve 把相对 URL 解析到源站；绝对 URL（外部资源）原样使用。
func (f *HTTPFetcher) resolve(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse request url: %w", err)
	}
	if parsed.Host != "" {
		return parsed.String(), nil
	}
	if f.base == nil {
		return "", fmt.Errorf("relative url without upstream base: %s", rawURL)
	}
	return f.base.ResolveReference(parsed).String(), nil
}
