package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/quotaguard/pkg/cache"
)

func newTestCache(t *testing.T, namespace string) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, namespace, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutAndGet(t *testing.T) {
	c := newTestCache(t, "market")
	ctx := context.Background()
	key := cache.Key(map[string]string{"symbol": "IBM"})

	if err := c.Put(ctx, key, []byte(`{"price":"1.00"}`), time.Hour); err != nil {
		t.Fatal(err)
	}

	data, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != `{"price":"1.00"}` {
		t.Errorf("unexpected data: %s", data)
	}

	if _, ok := c.Get(ctx, cache.Key(map[string]string{"symbol": "MSFT"})); ok {
		t.Error("expected cache miss for different key")
	}
}

func TestPutOverwrites(t *testing.T) {
	c := newTestCache(t, "market")
	ctx := context.Background()

	_ = c.Put(ctx, "k", []byte("old"), time.Hour)
	_ = c.Put(ctx, "k", []byte("new"), time.Hour)

	data, ok := c.Get(ctx, "k")
	if !ok || string(data) != "new" {
		t.Errorf("expected overwrite, got %q %v", data, ok)
	}
	stats, _ := c.Stats(ctx)
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
}

func TestTTLExpiration(t *testing.T) {
	c := newTestCache(t, "market")
	ctx := context.Background()

	_ = c.Put(ctx, "k", []byte("v"), time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected cache miss after TTL expiration")
	}
}

func TestExpiredEvictedOnRead(t *testing.T) {
	c := newTestCache(t, "market")
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Put(ctx, "quote", []byte("q"), 30*time.Minute)
	_ = c.Put(ctx, "news", []byte("n"), 12*time.Hour)

	now = now.Add(30 * time.Minute)
	stats, _ := c.Stats(ctx)
	if stats.Entries != 2 {
		t.Fatalf("expired rows stay until read, got %d entries", stats.Entries)
	}

	if _, ok := c.Get(ctx, "quote"); ok {
		t.Error("entry at cachedAt+ttl should be expired")
	}
	if _, ok := c.Get(ctx, "news"); !ok {
		t.Error("news should still be valid")
	}
	stats, _ = c.Stats(ctx)
	if stats.Entries != 1 {
		t.Errorf("expected expired entry evicted, got %d entries", stats.Entries)
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, "market")
	ctx := context.Background()

	_ = c.Put(ctx, "k", []byte("v"), time.Hour)
	c.Get(ctx, "k")       // hit
	c.Get(ctx, "missing") // miss

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestClearAllScopedToNamespace(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	a, err := New(dbPath, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := New(dbPath, "b", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	_ = a.Put(ctx, "k", []byte("a"), time.Hour)
	_ = b.Put(ctx, "k", []byte("b"), time.Hour)

	if err := a.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Get(ctx, "k"); ok {
		t.Error("expected namespace a cleared")
	}
	data, ok := b.Get(ctx, "k")
	if !ok || string(data) != "b" {
		t.Error("namespace b should be untouched")
	}
}

func TestClearExpired(t *testing.T) {
	c := newTestCache(t, "market")
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Put(ctx, "short", []byte("1"), time.Minute)
	_ = c.Put(ctx, "long", []byte("2"), time.Hour)
	now = now.Add(2 * time.Minute)

	n, err := c.ClearExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if _, ok := c.Get(ctx, "long"); !ok {
		t.Error("expected unexpired entry kept")
	}
}

func TestGetAfterCloseIsMiss(t *testing.T) {
	c := newTestCache(t, "market")
	ctx := context.Background()
	_ = c.Put(ctx, "k", []byte("v"), time.Hour)
	_ = c.Close()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("storage errors should be reported as a miss")
	}
}
