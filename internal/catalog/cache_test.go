package catalog

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, false, errors.New("cache down")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("cache down")
	}
	m.data[key] = value
	return nil
}

func (m *memCache) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errors.New("cache down")
	}
	n, _ := strconv.ParseInt(string(m.data[key]), 10, 64)
	n++
	m.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// countingStore counts list reads that reach the underlying store.
type countingStore struct {
	Store
	latestCalls int
}

func (c *countingStore) Latest(ctx context.Context, limit int) ([]Wallpaper, error) {
	c.latestCalls++
	return c.Store.Latest(ctx, limit)
}

func TestCachedStore_ServesFromCacheUntilInvalidated(t *testing.T) {
	inner := &countingStore{Store: newTestSQLStore(t)}
	cs := NewCachedStore(inner, newMemCache(), time.Minute)
	ctx := context.Background()

	if err := cs.InsertWallpaper(ctx, testWallpaper("sakura", 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	for i := 0; i < 3; i++ {
		rows, err := cs.Latest(ctx, 3)
		if err != nil {
			t.Fatalf("Latest: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected 1 row, got %d", len(rows))
		}
	}
	if inner.latestCalls != 1 {
		t.Errorf("expected 1 store read, got %d", inner.latestCalls)
	}

	if err := cs.InsertWallpaper(ctx, testWallpaper("sakura", 2)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rows, err := cs.Latest(ctx, 3)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected fresh read with 2 rows, got %d", len(rows))
	}
	if inner.latestCalls != 2 {
		t.Errorf("expected invalidation to force a store read, got %d reads", inner.latestCalls)
	}
}

func TestCachedStore_DownloadInvalidates(t *testing.T) {
	cs := NewCachedStore(newTestSQLStore(t), newMemCache(), time.Minute)
	ctx := context.Background()

	if err := cs.InsertWallpaper(ctx, testWallpaper("sakura", 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := cs.TopDownloads(ctx, 10); err != nil {
		t.Fatalf("TopDownloads: %v", err)
	}
	if _, err := cs.IncrementDownloads(ctx, "sakura_00001"); err != nil {
		t.Fatalf("IncrementDownloads: %v", err)
	}
	top, err := cs.TopDownloads(ctx, 10)
	if err != nil {
		t.Fatalf("TopDownloads: %v", err)
	}
	if top[0].Downloads != 1 {
		t.Errorf("expected refreshed download count 1, got %d", top[0].Downloads)
	}
}

func TestCachedStore_AdvanceCounterInvalidates(t *testing.T) {
	cs := NewCachedStore(newTestSQLStore(t), newMemCache(), time.Minute)
	ctx := context.Background()

	if _, err := cs.AdvanceCounter(ctx, "sakura"); err != nil {
		t.Fatalf("AdvanceCounter: %v", err)
	}
	if _, err := cs.ListCounters(ctx); err != nil {
		t.Fatalf("ListCounters: %v", err)
	}

	// No row is inserted for the second number, as after a failed finalization.
	if _, err := cs.AdvanceCounter(ctx, "sakura"); err != nil {
		t.Fatalf("AdvanceCounter: %v", err)
	}
	if _, err := cs.AdvanceCounter(ctx, "kawaii"); err != nil {
		t.Fatalf("AdvanceCounter: %v", err)
	}
	counters, err := cs.ListCounters(ctx)
	if err != nil {
		t.Fatalf("ListCounters: %v", err)
	}
	got := make(map[string]int, len(counters))
	for _, c := range counters {
		got[c.Category] = c.Count
	}
	if got["sakura"] != 2 || got["kawaii"] != 1 {
		t.Errorf("expected fresh counters sakura=2 kawaii=1, got %v", got)
	}
}

func TestCachedStore_FallsThroughWhenCacheFails(t *testing.T) {
	cache := newMemCache()
	cache.fail = true
	cs := NewCachedStore(newTestSQLStore(t), cache, time.Minute)
	ctx := context.Background()

	if _, err := cs.AdvanceCounter(ctx, "sakura"); err != nil {
		t.Fatalf("AdvanceCounter: %v", err)
	}
	if err := cs.InsertWallpaper(ctx, testWallpaper("sakura", 1)); err != nil {
		t.Fatalf("insert with failing cache: %v", err)
	}
	counters, err := cs.ListCounters(ctx)
	if err != nil {
		t.Fatalf("ListCounters: %v", err)
	}
	if len(counters) != 1 || counters[0].Count != 1 {
		t.Errorf("unexpected counters %+v", counters)
	}
}
