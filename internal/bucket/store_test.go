package bucket

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestBucketPutAndGet(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Open("app-shell-v1")
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	key := Key(http.MethodGet, "https://app.example.com/app.js")
	snap := &Snapshot{
		Status:   200,
		Header:   http.Header{"Content-Type": {"application/javascript"}},
		Body:     []byte("console.log('shell')"),
		StoredAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := b.Put(context.Background(), key, snap); err != nil {
		t.Fatalf("put error: %v", err)
	}

	got, err := b.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if got.Status != snap.Status {
		t.Fatalf("status mismatch: %d", got.Status)
	}
	if string(got.Body) != string(snap.Body) {
		t.Fatalf("body mismatch: %s", string(got.Body))
	}
	if got.Header.Get("Content-Type") != "application/javascript" {
		t.Fatalf("header mismatch: %v", got.Header)
	}
}

func TestBucketGetMissing(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Open("app-shell-v1")
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if _, err := b.Get(context.Background(), Key("GET", "/missing")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBucketOverwriteLastWriteWins(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Open("app-shell-v1")
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	key := Key("GET", "/index.html")
	if err := b.Put(context.Background(), key, &Snapshot{Status: 200, Body: []byte("old")}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := b.Put(context.Background(), key, &Snapshot{Status: 200, Body: []byte("new")}); err != nil {
		t.Fatalf("second put error: %v", err)
	}

	got, err := b.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if string(got.Body) != "new" {
		t.Fatalf("expected overwrite, got %s", string(got.Body))
	}
}

func TestStoreNamesAndDelete(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"app-shell-v1", "app-shell-v2"} {
		if _, err := store.Open(name); err != nil {
			t.Fatalf("open %s error: %v", name, err)
		}
	}

	names, err := store.Names()
	if err != nil {
		t.Fatalf("names error: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 buckets, got %v", names)
	}

	if err := store.Delete("app-shell-v1"); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	names, err = store.Names()
	if err != nil {
		t.Fatalf("names error: %v", err)
	}
	if len(names) != 1 || names[0] != "app-shell-v2" {
		t.Fatalf("expected only app-shell-v2, got %v", names)
	}
}

func TestBucketWipeRemovesAllEntries(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Open("app-shell-v1")
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	for _, u := range []string{"/a.js", "/b.css", "/c.png"} {
		if err := b.Put(context.Background(), Key("GET", u), &Snapshot{Status: 200, Body: []byte(u)}); err != nil {
			t.Fatalf("put %s error: %v", u, err)
		}
	}

	if err := b.Wipe(context.Background()); err != nil {
		t.Fatalf("wipe error: %v", err)
	}
	count, err := b.Len()
	if err != nil {
		t.Fatalf("len error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty bucket after wipe, got %d entries", count)
	}
}

func TestStoreRejectsUnsafeNames(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"", "..", "a/b"} {
		if _, err := store.Open(name); err == nil {
			t.Fatalf("expected error for name %q", name)
		}
	}
}

// newTestStore returns a Store rooted at a temporary directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
