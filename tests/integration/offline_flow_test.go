package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shell-box/shell-box/internal/bucket"
	"github.com/shell-box/shell-box/internal/config"
	"github.com/shell-box/shell-box/internal/lifecycle"
	"github.com/shell-box/shell-box/internal/notify"
	"github.com/shell-box/shell-box/internal/proxy"
	"github.com/shell-box/shell-box/internal/router"
	"github.com/shell-box/shell-box/internal/server"
	"github.com/shell-box/shell-box/internal/server/routes"
	"github.com/shell-box/shell-box/internal/strategy"
)

// originStub 模拟源站：提供页面与静态资源，并记录每次命中的路径。
type originStub struct {
	server *httptest.Server

	mu   sync.Mutex
	hits []string
}

func newOriginStub(t *testing.T) *originStub {
	t.Helper()

	stub := &originStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>home</html>"))
	})
	mux.HandleFunc("/offline.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>offline shell</html>"))
	})
	mux.HandleFunc("/static/app.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("body{margin:0}"))
	})
	mux.HandleFunc("/live/quotes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price":42}`))
	})

	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.hits = append(stub.hits, r.URL.Path)
		stub.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *originStub) Hits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hits...)
}

// proxyEnv 承载一条完整的拦截链路及其内部句柄，便于测试断言。
type proxyEnv struct {
	app          *fiber.App
	manager      *lifecycle.Manager
	networkFirst *strategy.NetworkFirst
	cacheFirst   *strategy.CacheFirst
}

// newProxyEnv 按启动顺序组装代理：配置 → 存储 → install → activate → Fiber。
func newProxyEnv(t *testing.T, upstreamURL string) *proxyEnv {
	t.Helper()

	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:  5000,
			StoragePath: t.TempDir(),
		},
		Shell: config.ShellConfig{
			Upstream:       upstreamURL,
			CacheVersion:   "app-shell-v2",
			OfflinePath:    "/offline.html",
			Precache:       []string{"/offline.html", "/static/app.css"},
			RealtimeBypass: []string{"/live/"},
			AlertKeyword:   "urgent",
			PushTitle:      "Shell Box",
		},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := bucket.NewStore(cfg.Global.StoragePath)
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	upstream, err := cfg.Shell.UpstreamURL()
	if err != nil {
		t.Fatalf("解析上游地址失败: %v", err)
	}

	client := server.NewUpstreamClient(cfg)
	fetch := strategy.NewHTTPFetcher(client, upstream)

	manager := lifecycle.NewManager(store, fetch, logger, cfg.Shell)
	if err := manager.Install(context.Background()); err != nil {
		t.Fatalf("install 失败: %v", err)
	}
	if err := manager.Activate(context.Background()); err != nil {
		t.Fatalf("activate 失败: %v", err)
	}

	classifier := router.NewClassifier(cfg.Shell.RealtimeBypass)
	networkFirst := strategy.NewNetworkFirst(fetch, manager.Current(), logger, cfg.Shell.OfflinePath)
	cacheFirst := strategy.NewCacheFirst(fetch, manager.Current(), logger, upstream.Host)
	handler := proxy.NewHandler(logger, classifier, networkFirst, cacheFirst, fetch)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      handler,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("NewApp 失败: %v", err)
	}
	routes.RegisterControlRoutes(app, routes.ControlOptions{
		Logger:    logger,
		Lifecycle: manager,
		Center:    notify.NewCenter(notify.DefaultsFromShell(cfg.Shell), upstream.Host, logger),
	})

	return &proxyEnv{
		app:          app,
		manager:      manager,
		networkFirst: networkFirst,
		cacheFirst:   cacheFirst,
	}
}

func (e *proxyEnv) get(t *testing.T, target, accept string) *http.Response {
	t.Helper()
	req := httptest.NewRequest("GET", "http://proxy.local"+target, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test 失败: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("读取响应失败: %v", err)
	}
	return string(body)
}

func TestNavigationSurvivesUpstreamOutage(t *testing.T) {
	origin := newOriginStub(t)
	env := newProxyEnv(t, origin.server.URL)

	// 在线：导航请求实时返回并后台落快照。
	resp := env.get(t, "/", "text/html")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", resp.StatusCode)
	}
	if source := resp.Header.Get("X-Shell-Box-Source"); source != "live" {
		t.Fatalf("在线时应实时返回, 实际 %q", source)
	}
	if body := readBody(t, resp); body != "<html>home</html>" {
		t.Fatalf("响应体不符: %q", body)
	}
	env.networkFirst.Flush()

	// 离线：精确快照兜底。
	origin.server.Close()
	resp = env.get(t, "/", "text/html")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("离线命中快照应 200, 实际 %d", resp.StatusCode)
	}
	if source := resp.Header.Get("X-Shell-Box-Source"); source != "cache" {
		t.Fatalf("离线时应回放快照, 实际 %q", source)
	}
	resp.Body.Close()

	// 离线且无精确快照：退回预缓存的离线壳。
	resp = env.get(t, "/never-visited.html", "text/html")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("离线壳兜底应 200, 实际 %d", resp.StatusCode)
	}
	if source := resp.Header.Get("X-Shell-Box-Source"); source != "fallback" {
		t.Fatalf("期望离线壳兜底, 实际 %q", source)
	}
	if body := readBody(t, resp); body != "<html>offline shell</html>" {
		t.Fatalf("应返回离线壳文档, 实际 %q", body)
	}
}

func TestPrecachedAssetServedWithoutNetwork(t *testing.T) {
	origin := newOriginStub(t)
	env := newProxyEnv(t, origin.server.URL)

	installHits := len(origin.Hits())

	resp := env.get(t, "/static/app.css", "text/css")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", resp.StatusCode)
	}
	if source := resp.Header.Get("X-Shell-Box-Source"); source != "cache" {
		t.Fatalf("预缓存资源应直接命中, 实际 %q", source)
	}
	if body := readBody(t, resp); body != "body{margin:0}" {
		t.Fatalf("响应体不符: %q", body)
	}
	if len(origin.Hits()) != installHits {
		t.Fatalf("缓存命中不应触发上游请求: %v", origin.Hits())
	}

	// 上游下线后仍可继续服务。
	origin.server.Close()
	resp = env.get(t, "/static/app.css", "text/css")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("离线命中预缓存应 200, 实际 %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRealtimeBypassAlwaysHitsUpstream(t *testing.T) {
	origin := newOriginStub(t)
	env := newProxyEnv(t, origin.server.URL)

	before, err := env.manager.Current().Len()
	if err != nil {
		t.Fatalf("统计快照失败: %v", err)
	}

	for i := 0; i < 2; i++ {
		resp := env.get(t, "/live/quotes?symbol=ACME", "application/json")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("期望 200, 实际 %d", resp.StatusCode)
		}
		if lane := resp.Header.Get("X-Shell-Box-Lane"); lane != "bypass" {
			t.Fatalf("实时数据应走 bypass, 实际 %q", lane)
		}
		resp.Body.Close()
	}

	live := 0
	for _, path := range origin.Hits() {
		if path == "/live/quotes" {
			live++
		}
	}
	if live != 2 {
		t.Fatalf("每次实时请求都应到达上游, 实际 %d 次", live)
	}

	env.networkFirst.Flush()
	env.cacheFirst.Flush()
	after, err := env.manager.Current().Len()
	if err != nil {
		t.Fatalf("统计快照失败: %v", err)
	}
	if after != before {
		t.Fatalf("bypass 响应不应写入快照: %d -> %d", before, after)
	}
}

func TestClearCacheCommandRemovesFallbacks(t *testing.T) {
	origin := newOriginStub(t)
	env := newProxyEnv(t, origin.server.URL)
	origin.server.Close()

	req := httptest.NewRequest("POST", "http://proxy.local/-/message", strings.NewReader("CLEAR_CACHE"))
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test 失败: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("清缓存命令应 200, 实际 %d", resp.StatusCode)
	}
	resp.Body.Close()

	count, err := env.manager.Current().Len()
	if err != nil {
		t.Fatalf("统计快照失败: %v", err)
	}
	if count != 0 {
		t.Fatalf("清空后应 0 条快照, 实际 %d", count)
	}

	// 快照清空且上游离线，导航请求只能失败。
	resp = env.get(t, "/", "text/html")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("无兜底时应 502, 实际 %d", resp.StatusCode)
	}
	resp.Body.Close()
}
