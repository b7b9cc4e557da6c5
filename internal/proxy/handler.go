package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shell-box/shell-box/internal/bucket"
	"github.com/shell-box/shell-box/internal/logging"
	"github.com/shell-box/shell-box/internal/router"
	"github.com/shell-box/shell-box/internal/server"
	"github.com/shell-box/shell-box/internal/strategy"
)

// Handler 负责 orchestrate “分类 → 策略执行 → 回写响应” 的全流程：
// bypass 通道直连上游，network-first/cache-first 通道走快照策略。
type Handler struct {
	logger       *logrus.Logger
	classifier   *router.Classifier
	networkFirst *strategy.NetworkFirst
	cacheFirst   *strategy.CacheFirst
	fetch        strategy.Fetcher
}

// NewHandler 构造拦截处理器，所有依赖在启动时注入一次。
func NewHandler(
	logger *logrus.Logger,
	classifier *router.Classifier,
	networkFirst *strategy.NetworkFirst,
	cacheFirst *strategy.CacheFirst,
	fetch strategy.Fetcher,
) *Handler {
	return &Handler{
		logger:       logger,
		classifier:   classifier,
		networkFirst: networkFirst,
		cacheFirst:   cacheFirst,
		fetch:        fetch,
	}
}

// Handle 实现 server.ProxyHandler。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	method := c.Method()
	rawURL := requestURL(c)
	accept := c.Get(fiber.HeaderAccept)

	lane := h.classifier.Classify(method, rawURL, accept)

	var ctx context.Context = context.Background()
	if fctx := c.Context(); fctx != nil {
		ctx = fctx
	}

	req := &strategy.Request{
		Method: method,
		URL:    rawURL,
		Header: fiberHeadersAsHTTP(c),
	}

	switch lane {
	case router.LaneNetworkFirst:
		result, err := h.networkFirst.Do(ctx, req)
		if err != nil {
			return h.failRequest(c, lane, req, requestID, started, err)
		}
		return h.writeResult(c, lane, req, result, requestID, started)

	case router.LaneCacheFirst:
		result, err := h.cacheFirst.Do(ctx, req)
		if err != nil {
			return h.failRequest(c, lane, req, requestID, started, err)
		}
		return h.writeResult(c, lane, req, result, requestID, started)

	default:
		return h.passThrough(c, ctx, req, requestID, started)
	}
}

// passThrough 直连上游：不读缓存、不写缓存，浏览器默认行为的代理等价物。
func (h *Handler) passThrough(c fiber.Ctx, ctx context.Context, req *strategy.Request, requestID string, started time.Time) error {
	req.Body = append([]byte(nil), c.Body()...)

	snap, err := h.fetch.Fetch(ctx, req)
	if err != nil {
		return h.failRequest(c, router.LaneBypass, req, requestID, started, err)
	}
	return h.writeSnapshot(c, router.LaneBypass, req, snap, "bypass", requestID, started)
}

func (h *Handler) writeResult(c fiber.Ctx, lane router.Lane, req *strategy.Request, result *strategy.Result, requestID string, started time.Time) error {
	return h.writeSnapshot(c, lane, req, result.Snapshot, string(result.Source), requestID, started)
}

func (h *Handler) writeSnapshot(c fiber.Ctx, lane router.Lane, req *strategy.Request, snap *bucket.Snapshot, source string, requestID string, started time.Time) error {
	copyResponseHeaders(c, snap.Header)
	c.Set("X-Shell-Box-Lane", string(lane))
	c.Set("X-Shell-Box-Source", source)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(snap.Status)

	h.logResult(lane, req, source, snap.Status, requestID, started, nil)

	if req.Method == http.MethodHead {
		return nil
	}
	return c.Send(snap.Body)
}

func (h *Handler) failRequest(c fiber.Ctx, lane router.Lane, req *strategy.Request, requestID string, started time.Time, err error) error {
	h.logResult(lane, req, "", fiber.StatusBadGateway, requestID, started, err)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Set("X-Shell-Box-Lane", string(lane))
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
}

func (h *Handler) logResult(lane router.Lane, req *strategy.Request, source string, status int, requestID string, started time.Time, err error) {
	fields := logging.RequestFields(string(lane), req.Method, req.URL, source)
	fields["action"] = "intercept"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("intercept_failed")
		return
	}
	h.logger.WithFields(fields).Info("intercept_complete")
}

// requestURL 还原客户端请求的相对 URL（路径 + 查询串）。
func requestURL(c fiber.Ctx) string {
	uri := c.Request().URI()
	raw := string(uri.Path())
	if raw == "" {
		raw = "/"
	}
	if query := uri.QueryString(); len(query) > 0 {
		raw += "?" + string(query)
	}
	return raw
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
