package websearch

import (
	"testing"
	"time"
)

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewCache(2)
	cache.Set("a", 1, time.Hour)
	cache.Set("b", 2, time.Hour)
	if _, ok := cache.Get("a"); !ok {
		t.Fatalf("expected a to be cached")
	}
	cache.Set("c", 3, time.Hour)

	if _, ok := cache.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Fatalf("expected recently used a to survive")
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
}

func TestCacheExpiresEntries(t *testing.T) {
	now := time.Now()
	cache := NewCache(10)
	cache.now = func() time.Time { return now }
	cache.Set("a", 1, time.Minute)

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("a"); ok {
		t.Fatalf("expected entry to expire")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry to be dropped")
	}
}

func TestCacheKeySeparatesParts(t *testing.T) {
	if cacheKey("search", "ab", "c") == cacheKey("search", "a", "bc") {
		t.Fatalf("expected distinct keys")
	}
	if len(cacheKey("fetch", "https://go.dev")) != 64 {
		t.Fatalf("expected hex sha256 key")
	}
}
