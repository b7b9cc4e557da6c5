package router

import (
	"net/http"
	"net/url"
	"strings"
)

// Lane 表示一次拦截请求被分派到的处理通道。
type Lane string

const (
	// LaneBypass 不读写缓存，交给上游直连处理。
	LaneBypass Lane = "bypass"
	// LaneNetworkFirst 先网络后缓存，HTML 导航请求专用。
	LaneNetworkFirst Lane = "network-first"
	// LaneCacheFirst 先缓存后网络，静态资源兜底通道。
	LaneCacheFirst Lane = "cache-first"
)

// Classifier 按固定优先级把请求分类到三条通道之一。
// 实时数据旁路必须先于 HTML 判定：个别实时端点也可能带 HTML Accept 头。
type Classifier struct {
	realtimeFragments []string
}

// NewClassifier 以实时数据片段列表构造分类器。代理收到的是相对 URL
// （路径 + 查询串），因此片段按路径子串匹配，例如 "/live/" 或 "/api/quotes"。
func NewClassifier(realtimeFragments []string) *Classifier {
	cleaned := make([]string, 0, len(realtimeFragments))
	for _, fragment := range realtimeFragments {
		if trimmed := strings.TrimSpace(fragment); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return &Classifier{realtimeFragments: cleaned}
}

// Classify 返回请求所属通道，首个命中规则生效：
//  1. 非检索方法 → bypass
//  2. URL 含实时数据片段 → bypass（永不缓存）
//  3. Accept 含 text/html，或路径为根/以 .html 结尾 → network-first
//  4. 其余（脚本、样式、图片、字体等） → cache-first
func (c *Classifier) Classify(method, rawURL, accept string) Lane {
	if !isRetrieval(method) {
		return LaneBypass
	}

	for _, fragment := range c.realtimeFragments {
		if strings.Contains(rawURL, fragment) {
			return LaneBypass
		}
	}

	if wantsHTML(rawURL, accept) {
		return LaneNetworkFirst
	}

	return LaneCacheFirst
}

func isRetrieval(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func wantsHTML(rawURL, accept string) bool {
	if strings.Contains(accept, "text/html") {
		return true
	}

	path := rawURL
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" {
		path = parsed.Path
	}
	return path == "/" || strings.HasSuffix(path, ".html")
}
