// ABOUTME: In-memory cache that wraps markdown-to-HTML conversion with sha256-keyed caching.
// ABOUTME: Supports TTL-based expiry, concurrent access, and manual cache clearing.
package render

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// ConvertFunc is the signature for a markdown conversion function that the cache wraps.
type ConvertFunc func(markdown string) string

// cacheEntry holds a single cached conversion result with its creation timestamp.
type cacheEntry struct {
	html      string
	createdAt time.Time
}

// Cache wraps a markdown conversion function with an in-memory cache.
// Cache keys are derived from the sha256 hash of the markdown content.
// Entries expire after the configured TTL.
type Cache struct {
	convertFn ConvertFunc
	ttl       time.Duration
	entries   map[string]*cacheEntry
	mu        sync.RWMutex
}

// NewCache creates a Cache wrapping the given conversion function.
// Cached entries expire after the specified TTL duration.
func NewCache(convertFn ConvertFunc, ttl time.Duration) *Cache {
	return &Cache{
		convertFn: convertFn,
		ttl:       ttl,
		entries:   make(map[string]*cacheEntry),
	}
}

// Convert returns the HTML for the given markdown, using a cached result
// when a non-expired entry exists.
func (c *Cache) Convert(markdown string) string {
	key := cacheKey(markdown)

	// Check cache under read lock
	c.mu.RLock()
	if entry, ok := c.entries[key]; ok {
		if time.Since(entry.createdAt) < c.ttl {
			html := entry.html
			c.mu.RUnlock()
			return html
		}
	}
	c.mu.RUnlock()

	// Cache miss or expired: convert
	html := c.convertFn(markdown)

	c.mu.Lock()
	c.entries[key] = &cacheEntry{
		html:      html,
		createdAt: time.Now(),
	}
	c.mu.Unlock()

	return html
}

// Len returns the number of entries currently in the cache (including expired ones).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// cacheKey generates a deterministic cache key from the markdown content.
func cacheKey(markdown string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(markdown)))
}
