package strategy

import (
	"context"
	"net/http"

	"github.com/shell-box/shell-box/internal/bucket"
)

// Request 描述一次被拦截的出站请求，仅在单次分派内存活。
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Source 标记结果来源，写入响应头与日志字段。
type Source string

const (
	SourceLive     Source = "live"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// Result 是策略执行的产出：待回写的快照及其来源。
type Result struct {
	Snapshot *bucket.Snapshot
	Source   Source
}

// Fetcher 抽象实时网络请求，便于测试注入离线/故障场景。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*bucket.Snapshot, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *Request) (*bucket.Snapshot, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*bucket.Snapshot, error) {
	return f(ctx, req)
}

// isSuccess 判断状态码是否允许写入缓存（2xx）。
func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// cacheKey 归一化 HEAD → GET，使 HEAD 请求能命中安装期写入的快照。
func cacheKey(req *Request) string {
	method := req.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	return bucket.Key(method, req.URL)
}
