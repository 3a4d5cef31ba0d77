package router

import (
	"strings"
	"sync"
	"time"
)

// contextCache is the router's bounded, time-expiring cache of assembled
// context strings. Keys are normalized request texts; values remember when
// they were built so stale entries read as misses. When the size cap is
// exceeded the oldest-timestamp entries are evicted first.
type contextCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	maxSize int
}

type cacheEntry struct {
	context   string
	timestamp time.Time
}

func newContextCache(ttl time.Duration, maxSize int) *contextCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &contextCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// cacheKey normalizes request text into a cache key: lower-cased with runs
// of whitespace collapsed to single spaces.
func cacheKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// get returns the cached context for key and whether the entry was fresh
// enough to use.
func (c *contextCache) get(key string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if now.Sub(entry.timestamp) > c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.context, true
}

// put stores the assembled context under key and evicts the oldest entries
// until the cache is back under its size cap.
func (c *contextCache) put(key, context string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{context: context, timestamp: now}
	for len(c.entries) > c.maxSize {
		oldestKey := ""
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.timestamp.Before(oldest) {
				oldestKey = k
				oldest = e.timestamp
			}
		}
		delete(c.entries, oldestKey)
	}
}

// len reports the current entry count.
func (c *contextCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
