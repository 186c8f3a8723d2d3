// ABOUTME: Tests for the render cache covering TTL-based expiry, cache hits, and concurrent access.
// ABOUTME: Validates Cache wraps markdown conversion with sha256-keyed in-memory caching.
package render

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeConverter is a test double that counts invocations and returns fixed output.
type fakeConverter struct {
	callCount atomic.Int64
	output    string
}

func (f *fakeConverter) convert(markdown string) string {
	f.callCount.Add(1)
	return f.output
}

func TestCacheReturnsCachedResult(t *testing.T) {
	converter := &fakeConverter{output: "<p>test</p>"}
	cache := NewCache(converter.convert, 5*time.Minute)

	markdown := "# Heading\n\nbody"

	// First call should invoke the converter
	html1 := cache.Convert(markdown)
	if html1 != "<p>test</p>" {
		t.Errorf("expected <p>test</p>, got %s", html1)
	}
	if converter.callCount.Load() != 1 {
		t.Errorf("expected 1 converter call, got %d", converter.callCount.Load())
	}

	// Second call with same input should use cache
	html2 := cache.Convert(markdown)
	if html2 != "<p>test</p>" {
		t.Errorf("expected cached result, got %s", html2)
	}
	if converter.callCount.Load() != 1 {
		t.Errorf("expected still 1 converter call (cached), got %d", converter.callCount.Load())
	}
}

func TestCacheDifferentInputsDifferentEntries(t *testing.T) {
	converter := &fakeConverter{output: "<p>out</p>"}
	cache := NewCache(converter.convert, 5*time.Minute)

	cache.Convert("first card body")
	cache.Convert("second card body")

	if converter.callCount.Load() != 2 {
		t.Errorf("expected 2 converter calls for different inputs, got %d", converter.callCount.Load())
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	converter := &fakeConverter{output: "<p>out</p>"}
	// Use a very short TTL for testing
	cache := NewCache(converter.convert, 50*time.Millisecond)

	markdown := "# Heading"

	cache.Convert(markdown)
	if converter.callCount.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", converter.callCount.Load())
	}

	// Wait for TTL to expire
	time.Sleep(100 * time.Millisecond)

	// Should re-convert after expiry
	cache.Convert(markdown)
	if converter.callCount.Load() != 2 {
		t.Errorf("expected 2 calls after TTL expiry, got %d", converter.callCount.Load())
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	converter := &fakeConverter{output: "<p>concurrent</p>"}
	cache := NewCache(converter.convert, 5*time.Minute)

	markdown := "shared card body"

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			html := cache.Convert(markdown)
			if html != "<p>concurrent</p>" {
				t.Errorf("expected '<p>concurrent</p>', got %s", html)
			}
		}()
	}
	wg.Wait()

	// Due to concurrency, there might be a few calls, but not 20
	if converter.callCount.Load() > 5 {
		t.Errorf("expected much fewer than 20 converter calls with caching, got %d", converter.callCount.Load())
	}
}

func TestCacheKeyIsContentHash(t *testing.T) {
	markdown := "# Heading"

	expected := fmt.Sprintf("%x", sha256.Sum256([]byte(markdown)))

	key := cacheKey(markdown)
	if key != expected {
		t.Errorf("expected cache key %q, got %q", expected, key)
	}
}

func TestCacheLen(t *testing.T) {
	converter := &fakeConverter{output: "<p>out</p>"}
	cache := NewCache(converter.convert, 5*time.Minute)

	if cache.Len() != 0 {
		t.Errorf("expected 0 entries initially, got %d", cache.Len())
	}

	cache.Convert("first")
	cache.Convert("second")

	if cache.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", cache.Len())
	}
}

func TestCacheClear(t *testing.T) {
	converter := &fakeConverter{output: "<p>out</p>"}
	cache := NewCache(converter.convert, 5*time.Minute)

	cache.Convert("card body")
	cache.Clear()

	if cache.Len() != 0 {
		t.Errorf("expected 0 entries after clear, got %d", cache.Len())
	}

	// After clearing, a re-conversion should happen
	cache.Convert("card body")
	if converter.callCount.Load() != 2 {
		t.Errorf("expected 2 converter calls after clear, got %d", converter.callCount.Load())
	}
}
