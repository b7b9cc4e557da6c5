package strategy

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shell-box/shell-box/internal/bucket"
	"github.com/shell-box/shell-box/internal/logging"
)

// NetworkFirst 先尝试实时请求；失败时退回精确快照，再退回离线壳文档。
// 成功响应的缓存写入是后台任务，绝不阻塞响应返回。
type NetworkFirst struct {
	fetch       Fetcher
	current     *bucket.Bucket
	logger      *logrus.Logger
	fallbackKey string

	stores sync.WaitGroup
}

// NewNetworkFirst 构造 network-first 执行器；fallbackPath 指向离线壳文档。
func NewNetworkFirst(fetch Fetcher, current *bucket.Bucket, logger *logrus.Logger, fallbackPath string) *NetworkFirst {
	return &NetworkFirst{
		fetch:       fetch,
		current:     current,
		logger:      logger,
		fallbackKey: bucket.Key("GET", fallbackPath),
	}
}

// Do 执行策略。实时请求成功时立即返回，同时后台写入快照；
// 失败时按 精确键 → 离线壳 两级兜底，全部未命中才传播原始错误。
func (s *NetworkFirst) Do(ctx context.Context, req *Request) (*Result, error) {
	key := cacheKey(req)

	live, fetchErr := s.fetch.Fetch(ctx, req)
	if fetchErr == nil {
		// HEAD 响应没有正文，落盘会让后续 GET 命中空快照。
		if isSuccess(live.Status) && req.Method != http.MethodHead {
			s.storeDetached(key, req, live.Clone())
		}
		return &Result{Snapshot: live, Source: SourceLive}, nil
	}

	if snap, err := s.current.Get(ctx, key); err == nil {
		return &Result{Snapshot: snap, Source: SourceCache}, nil
	} else if !errors.Is(err, bucket.ErrNotFound) {
		s.logLookupError("network_first", req, err)
	}

	if snap, err := s.current.Get(ctx, s.fallbackKey); err == nil {
		return &Result{Snapshot: snap, Source: SourceFallback}, nil
	} else if !errors.Is(err, bucket.ErrNotFound) {
		s.logLookupError("network_first", req, err)
	}

	return nil, fetchErr
}

// Flush 等待在途的后台写入完成，仅用于优雅退出与测试。
func (s *NetworkFirst) Flush() {
	s.stores.Wait()
}

// storeDetached 以脱离请求生命周期的上下文写入快照；失败只记日志。
func (s *NetworkFirst) storeDetached(key string, req *Request, snap *bucket.Snapshot) {
	snap.StoredAt = time.Now().UTC()
	s.stores.Add(1)
	go func() {
		defer s.stores.Done()
		if err := s.current.Put(context.Background(), key, snap); err != nil {
			fields := logging.RequestFields("network-first", req.Method, req.URL, string(SourceLive))
			fields["action"] = "snapshot_store"
			fields["error"] = err.Error()
			s.logger.WithFields(fields).Warn("snapshot_store_failed")
		}
	}()
}

func (s *NetworkFirst) logLookupError(lane string, req *Request, err error) {
	fields := logging.RequestFields(lane, req.Method, req.URL, string(SourceCache))
	fields["action"] = "snapshot_lookup"
	fields["error"] = err.Error()
	s.logger.WithFields(fields).Warn("snapshot_lookup_failed")
}
