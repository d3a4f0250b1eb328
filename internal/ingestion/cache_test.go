package ingestion

import (
	"testing"
	"time"
)

func TestTTLCache(t *testing.T) {
	clock := newTestClock()
	cache := NewTTLCache[int](time.Minute, clock.Now)

	if _, ok := cache.Get("k"); ok {
		t.Fatal("empty cache should miss")
	}

	cache.Set("k", 1)
	if v, ok := cache.Get("k"); !ok || v != 1 {
		t.Fatalf("expected fresh hit, got %v %v", v, ok)
	}

	clock.Advance(time.Minute)
	if _, ok := cache.Get("k"); ok {
		t.Fatal("entry at its TTL should be expired")
	}
	if v, ok := cache.Stale("k"); !ok || v != 1 {
		t.Fatalf("expired entry should remain available as stale, got %v %v", v, ok)
	}

	clock.Advance(time.Hour)
	if removed := cache.Prune(30 * time.Minute); removed != 1 {
		t.Errorf("expected prune to remove 1 entry, got %d", removed)
	}
	if _, ok := cache.Stale("k"); ok {
		t.Error("pruned entry should be gone")
	}

	cache.Set("k", 2)
	cache.Invalidate("k")
	if _, ok := cache.Stale("k"); ok {
		t.Error("invalidated entry should be gone")
	}
}
