package content

import (
	"sync"
	"time"

	"elementd/pkg/types"
)

// Cache memoizes resolved content by fingerprint.
type Cache interface {
	Get(key string) (types.RenderingContent, bool)
	// Set stores c; ttl <= 0 means the entry never expires.
	Set(key string, c types.RenderingContent, ttl time.Duration)
	Has(key string) bool
	Delete(key string)
	Clear()
	Len() int
}

type cacheEntry struct {
	content   types.RenderingContent
	expiresAt time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is an in-memory Cache. Expiry is checked lazily on access;
// there is no capacity bound.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), now: time.Now}
}

func (c *MemoryCache) Get(key string) (types.RenderingContent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return types.RenderingContent{}, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return types.RenderingContent{}, false
	}
	return e.content, true
}

func (c *MemoryCache) Set(key string, content types.RenderingContent, ttl time.Duration) {
	e := cacheEntry{content: content}
	c.mu.Lock()
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *MemoryCache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet touched.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every expired entry and returns how many were removed.
func (c *MemoryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
