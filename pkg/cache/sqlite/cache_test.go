package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeyDeterministic(t *testing.T) {
	a := Key("prompt", "flags")
	b := Key("prompt", "flags")
	if a != b {
		t.Errorf("same parts produced different keys: %s vs %s", a, b)
	}
	if Key("prompt", "flags") == Key("promptflags") {
		t.Error("part boundaries must affect the key")
	}
	if Key("a", "b") == Key("b", "a") {
		t.Error("part order must affect the key")
	}
}

func TestSetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if _, ok := c.Get(ctx, NamespaceClassification, "missing"); ok {
		t.Error("expected miss for absent key")
	}

	if err := c.Set(ctx, NamespaceClassification, "k1", []byte("v1"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := c.Get(ctx, NamespaceClassification, "k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "v1" {
		t.Errorf("got %q, want v1", got)
	}
}

func TestNamespacesIsolated(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, NamespaceClassification, "k", []byte("classification"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, NamespaceEnhancement, "k", []byte("enhancement"), time.Hour); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Get(ctx, NamespaceClassification, "k")
	if !ok || string(got) != "classification" {
		t.Errorf("classification namespace: got %q, %t", got, ok)
	}
	got, ok = c.Get(ctx, NamespaceEnhancement, "k")
	if !ok || string(got) != "enhancement" {
		t.Errorf("enhancement namespace: got %q, %t", got, ok)
	}
	if _, ok := c.Get(ctx, NamespaceParams, "k"); ok {
		t.Error("params namespace must not see other namespaces' keys")
	}
}

func TestExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// Zero TTL expires immediately.
	if err := c.Set(ctx, NamespaceClassification, "short", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, ok := c.Get(ctx, NamespaceClassification, "short"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestSetReplaces(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, NamespaceParams, "k", []byte("old"), time.Hour)
	_ = c.Set(ctx, NamespaceParams, "k", []byte("new"), time.Hour)

	got, ok := c.Get(ctx, NamespaceParams, "k")
	if !ok || string(got) != "new" {
		t.Errorf("got %q, %t, want new", got, ok)
	}
}

func TestIncrement(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := c.Increment(ctx, NamespaceLimits, "counter", 1, time.Hour)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if n != i {
			t.Errorf("increment %d returned %d", i, n)
		}
	}

	n, err := c.Increment(ctx, NamespaceLimits, "counter", 10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 13 {
		t.Errorf("got %d, want 13", n)
	}
}

func TestIncrementConcurrent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	const workers = 10
	const perWorker = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := c.Increment(ctx, NamespaceLimits, "shared", 1, time.Hour); err != nil {
					t.Errorf("Increment: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	n, err := c.Increment(ctx, NamespaceLimits, "shared", 0, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != workers*perWorker {
		t.Errorf("lost updates: got %d, want %d", n, workers*perWorker)
	}
}

func TestIncrementExpiredRestarts(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if _, err := c.Increment(ctx, NamespaceLimits, "window", 5, 0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1100 * time.Millisecond)

	n, err := c.Increment(ctx, NamespaceLimits, "window", 3, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expired counter should restart from amount, got %d", n)
	}
}

func TestGetOrCompute(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	calls := 0
	compute := func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	got, hit, err := c.GetOrCompute(ctx, NamespaceParams, "k", time.Hour, compute)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("first call must not be a hit")
	}
	if string(got) != "computed" {
		t.Errorf("got %q", got)
	}

	got, hit, err = c.GetOrCompute(ctx, NamespaceParams, "k", time.Hour, compute)
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Error("second call must be a hit")
	}
	if string(got) != "computed" {
		t.Errorf("got %q", got)
	}
	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}
}

func TestGetOrComputeError(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	wantErr := errors.New("compute failed")
	_, _, err := c.GetOrCompute(ctx, NamespaceParams, "k", time.Hour, func() ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}

	// A failed compute must not poison the key.
	got, _, err := c.GetOrCompute(ctx, NamespaceParams, "k", time.Hour, func() ([]byte, error) {
		return []byte("ok"), nil
	})
	if err != nil || string(got) != "ok" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, NamespaceClassification, "k", []byte("v"), time.Hour)
	_, _ = c.Increment(ctx, NamespaceLimits, "n", 1, time.Hour)

	c.Get(ctx, NamespaceClassification, "k")       // hit
	c.Get(ctx, NamespaceClassification, "missing") // miss

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("entries = %d, want 1", stats.Entries)
	}
	if stats.Counters != 1 {
		t.Errorf("counters = %d, want 1", stats.Counters)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, NamespaceClassification, "live", []byte("v"), time.Hour)
	_ = c.Set(ctx, NamespaceClassification, "dead", []byte("v"), 0)
	time.Sleep(1100 * time.Millisecond)

	if err := c.Clear(true); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, NamespaceClassification, "live"); !ok {
		t.Error("live entry must survive expired-only clear")
	}

	if err := c.Clear(false); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, NamespaceClassification, "live"); ok {
		t.Error("full clear must remove everything")
	}
}
