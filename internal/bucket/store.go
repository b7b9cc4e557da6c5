package bucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// 快照键统一加前缀，保留扩展其他记录类型的空间。
const snapshotPrefix = "s:"

// Store 管理 basePath 下全部命名 Bucket，整个进程复用一份实例。
type Store struct {
	basePath string

	mu   sync.Mutex
	open map[string]*Bucket
}

// Bucket 是单个命名快照库的句柄，由 Store.Open 返回并复用。
type Bucket struct {
	name string
	db   *leveldb.DB
}

// NewStore 以 basePath 为根目录构建快照存储。
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &Store{
		basePath: abs,
		open:     make(map[string]*Bucket),
	}, nil
}

// Open 打开（不存在则创建）指定名称的 Bucket，重复调用返回同一句柄。
func (s *Store) Open(name string) (*Bucket, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.open[name]; ok {
		return b, nil
	}

	db, err := leveldb.OpenFile(filepath.Join(s.basePath, name), nil)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", name, err)
	}

	b := &Bucket{name: name, db: db}
	s.open[name] = b
	return b, nil
}

// Names 枚举当前存在的全部 Bucket 名称（目录序）。
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Delete 销毁整个 Bucket：已打开的句柄先关闭再删除目录。
func (s *Store) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	if b, ok := s.open[name]; ok {
		if err := b.db.Close(); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("close bucket %s: %w", name, err)
		}
		delete(s.open, name)
	}
	s.mu.Unlock()

	return os.RemoveAll(filepath.Join(s.basePath, name))
}

// Close 关闭全部已打开的 Bucket，进程退出前调用。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, b := range s.open {
		if err := b.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close bucket %s: %w", name, err)
		}
		delete(s.open, name)
	}
	return firstErr
}

// Name 返回 Bucket 的版本标签名称。
func (b *Bucket) Name() string {
	return b.name
}

// Get 返回指定键的快照，不存在时返回 ErrNotFound。
func (b *Bucket) Get(ctx context.Context, key string) (*Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	raw, err := b.db.Get([]byte(snapshotPrefix+key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// Put 写入快照，同键覆盖旧值（last-write-wins）。
func (b *Bucket) Put(ctx context.Context, key string, snap *Snapshot) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if snap == nil {
		return errors.New("nil snapshot")
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	return b.db.Put([]byte(snapshotPrefix+key), raw, nil)
}

// Wipe 清空 Bucket 内全部快照，目录与句柄保留。
func (b *Bucket) Wipe(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	batch := new(leveldb.Batch)
	iter := b.db.NewIterator(util.BytesPrefix([]byte(snapshotPrefix)), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	return b.db.Write(batch, nil)
}

// Len 返回当前快照条数。
func (b *Bucket) Len() (int, error) {
	count := 0
	iter := b.db.NewIterator(util.BytesPrefix([]byte(snapshotPrefix)), nil)
	for iter.Next() {
		count++
	}
	iter.Release()
	return count, iter.Error()
}

// Keys 返回全部存储键，供诊断端输出。
func (b *Bucket) Keys() ([]string, error) {
	var keys []string
	iter := b.db.NewIterator(util.BytesPrefix([]byte(snapshotPrefix)), nil)
	for iter.Next() {
		keys = append(keys, strings.TrimPrefix(string(iter.Key()), snapshotPrefix))
	}
	iter.Release()
	return keys, iter.Error()
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("bucket name required")
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("invalid bucket name: %s", name)
	}
	return nil
}
