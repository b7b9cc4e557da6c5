package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shell-box/shell-box/internal/bucket"
	"github.com/shell-box/shell-box/internal/config"
	"github.com/shell-box/shell-box/internal/logging"
	"github.com/shell-box/shell-box/internal/strategy"
)

// State 描述代理生命周期阶段。
type State string

const (
	StateIdle      State = "idle"
	StateInstalled State = "installed"
	StateActive    State = "active"
)

// Manager 承载 install/activate/wipe 三个生命周期事件：
// 安装期按清单预缓存，激活期清理旧版本 Bucket 并立即接管服务。
type Manager struct {
	store   *bucket.Store
	fetch   strategy.Fetcher
	logger  *logrus.Logger
	version string
	assets  []string

	mu       sync.Mutex
	current  *bucket.Bucket
	state    State
	precache precacheSummary
}

type precacheSummary struct {
	Stored  int
	Skipped int
}

// NewManager 构造生命周期管理器；version 即当前 Bucket 名称。
func NewManager(store *bucket.Store, fetch strategy.Fetcher, logger *logrus.Logger, shell config.ShellConfig) *Manager {
	return &Manager{
		store:   store,
		fetch:   fetch,
		logger:  logger,
		version: shell.CacheVersion,
		assets:  append([]string(nil), shell.Precache...),
		state:   StateIdle,
	}
}

// Install 打开当前版本 Bucket 并预缓存固定资源清单。
// 单个资源失败只记日志并跳过，绝不中断其余资源；
// 全部尝试落定后立即进入 installed 状态（相当于跳过等待）。
func (m *Manager) Install(ctx context.Context) error {
	current, err := m.store.Open(m.version)
	if err != nil {
		return fmt.Errorf("open current bucket: %w", err)
	}

	summary := precacheSummary{}
	for _, asset := range m.assets {
		if err := m.precacheAsset(ctx, current, asset); err != nil {
			summary.Skipped++
			fields := logging.LifecycleFields("precache", m.version)
			fields["asset"] = asset
			fields["error"] = err.Error()
			m.logger.WithFields(fields).Warn("precache_asset_skipped")
			continue
		}
		summary.Stored++
	}

	m.mu.Lock()
	m.current = current
	m.state = StateInstalled
	m.precache = summary
	m.mu.Unlock()

	fields := logging.LifecycleFields("install", m.version)
	fields["stored"] = summary.Stored
	fields["skipped"] = summary.Skipped
	m.logger.WithFields(fields).Info("install_complete")
	return nil
}

// Activate 删除所有名称不等于当前版本的 Bucket，随后立即接管。
// 删除失败原样传播，不做特殊恢复。
func (m *Manager) Activate(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	names, err := m.store.Names()
	if err != nil {
		return fmt.Errorf("enumerate buckets: %w", err)
	}

	removed := 0
	for _, name := range names {
		if name == m.version {
			continue
		}
		if err := m.store.Delete(name); err != nil {
			return fmt.Errorf("delete stale bucket %s: %w", name, err)
		}
		removed++
	}

	m.mu.Lock()
	if m.current == nil {
		current, err := m.store.Open(m.version)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("open current bucket: %w", err)
		}
		m.current = current
	}
	m.state = StateActive
	m.mu.Unlock()

	fields := logging.LifecycleFields("activate", m.version)
	fields["removed"] = removed
	m.logger.WithFields(fields).Info("activate_complete")
	return nil
}

// Wipe 清空当前 Bucket 的全部快照（CLEAR_CACHE 命令）。
func (m *Manager) Wipe(ctx context.Context) error {
	current := m.Current()
	if current == nil {
		return fmt.Errorf("current bucket not installed")
	}
	if err := current.Wipe(ctx); err != nil {
		return err
	}
	m.logger.WithFields(logging.LifecycleFields("wipe", m.version)).Info("bucket_wiped")
	return nil
}

// Current 返回当前版本 Bucket；Install 前为 nil。
func (m *Manager) Current() *bucket.Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Version 返回当前版本标签。
func (m *Manager) Version() string {
	return m.version
}

// State 返回当前生命周期阶段。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status 汇总诊断端需要的生命周期信息。
type Status struct {
	Version  string   `json:"version"`
	State    State    `json:"state"`
	Buckets  []string `json:"buckets"`
	Entries  int      `json:"entries"`
	Stored   int      `json:"precache_stored"`
	Skipped  int      `json:"precache_skipped"`
	Reported int64    `json:"reported_at_unix"`
}

// Describe 生成 Status 快照，供 /-/status 输出。
func (m *Manager) Describe() (Status, error) {
	names, err := m.store.Names()
	if err != nil {
		return Status{}, err
	}

	m.mu.Lock()
	current := m.current
	state := m.state
	summary := m.precache
	m.mu.Unlock()

	entries := 0
	if current != nil {
		entries, err = current.Len()
		if err != nil {
			return Status{}, err
		}
	}

	return Status{
		Version:  m.version,
		State:    state,
		Buckets:  names,
		Entries:  entries,
		Stored:   summary.Stored,
		Skipped:  summary.Skipped,
		Reported: time.Now().Unix(),
	}, nil
}

// precacheAsset 抓取并存储单个清单项，失败返回错误由调用方记日志。
func (m *Manager) precacheAsset(ctx context.Context, current *bucket.Bucket, asset string) error {
	snap, err := m.fetch.Fetch(ctx, &strategy.Request{Method: http.MethodGet, URL: asset})
	if err != nil {
		return err
	}
	if snap.Status < 200 || snap.Status >= 300 {
		return fmt.Errorf("unexpected status %d", snap.Status)
	}
	snap.StoredAt = time.Now().UTC()
	return current.Put(ctx, bucket.Key(http.MethodGet, asset), snap)
}
