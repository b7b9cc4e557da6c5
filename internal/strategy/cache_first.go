package strategy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shell-box/shell-box/internal/bucket"
	"github.com/shell-box/shell-box/internal/logging"
)

// CacheFirst 优先返回已有快照；未命中才发起实时请求，并在响应为同源
// 成功响应时后台写入。跨源响应无法安全复用，始终实时获取、从不存储。
type CacheFirst struct {
	fetch      Fetcher
	current    *bucket.Bucket
	logger     *logrus.Logger
	originHost string

	stores sync.WaitGroup
}

// NewCacheFirst 构造 cache-first 执行器；originHost 用于同源判定。
func NewCacheFirst(fetch Fetcher, current *bucket.Bucket, logger *logrus.Logger, originHost string) *CacheFirst {
	return &CacheFirst{
		fetch:      fetch,
		current:    current,
		logger:     logger,
		originHost: strings.ToLower(originHost),
	}
}

// Do 执行策略。命中快照时不产生任何网络请求；未命中时实时获取，
// 获取失败直接向调用方传播。
func (s *CacheFirst) Do(ctx context.Context, req *Request) (*Result, error) {
	key := cacheKey(req)

	snap, err := s.current.Get(ctx, key)
	if err == nil {
		return &Result{Snapshot: snap, Source: SourceCache}, nil
	}
	if !errors.Is(err, bucket.ErrNotFound) {
		fields := logging.RequestFields("cache-first", req.Method, req.URL, string(SourceCache))
		fields["action"] = "snapshot_lookup"
		fields["error"] = err.Error()
		s.logger.WithFields(fields).Warn("snapshot_lookup_failed")
	}

	live, fetchErr := s.fetch.Fetch(ctx, req)
	if fetchErr != nil {
		return nil, fetchErr
	}

	// HEAD 响应没有正文，落盘会让后续 GET 命中空快照。
	if isSuccess(live.Status) && req.Method != http.MethodHead && s.isSameOrigin(req.URL) {
		s.storeDetached(key, req, live.Clone())
	}
	return &Result{Snapshot: live, Source: SourceLive}, nil
}

// Flush 等待在途的后台写入完成，仅用于优雅退出与测试。
func (s *CacheFirst) Flush() {
	s.stores.Wait()
}

// isSameOrigin 判断请求是否指向配置的源站：相对路径视为同源，
// 绝对 URL 要求 Host 匹配。
func (s *CacheFirst) isSameOrigin(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Host == "" {
		return true
	}
	return strings.EqualFold(parsed.Host, s.originHost)
}

func (s *CacheFirst) storeDetached(key string, req *Request, snap *bucket.Snapshot) {
	snap.StoredAt = time.Now().UTC()
	s.stores.Add(1)
	go func() {
		defer s.stores.Done()
		if err := s.current.Put(context.Background(), key, snap); err != nil {
			fields := logging.RequestFields("cache-first", req.Method, req.URL, string(SourceLive))
			fields["action"] = "snapshot_store"
			fields["error"] = err.Error()
			s.logger.WithFields(fields).Warn("snapshot_store_failed")
		}
	}()
}
