package server

import (
	"encoding/json"
	"sync"
	"time"
)

// cacheKey identifies one read-only query.
type cacheKey struct {
	action  string
	payload string
}

// cacheEntry holds a cached result with its timestamp.
type cacheEntry struct {
	result    json.RawMessage
	timestamp time.Time
}

// ResultCache is a TTL cache for read-only query results. Any command that
// can change a page, and any mutation report, clears it.
type ResultCache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewResultCache creates a new cache. A ttl of 0 disables caching.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		entries: make(map[cacheKey]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a cached result if within TTL, otherwise runs fetch and keeps
// its result.
func (c *ResultCache) Get(action string, payload json.RawMessage, fetch func() (json.RawMessage, error)) (json.RawMessage, error) {
	if c.ttl == 0 {
		return fetch()
	}
	key := cacheKey{action: action, payload: string(payload)}

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && c.now().Sub(entry.timestamp) < c.ttl {
		c.mu.Unlock()
		return entry.result, nil
	}
	c.mu.Unlock()

	res, err := fetch()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{result: res, timestamp: c.now()}
	c.mu.Unlock()
	return res, nil
}

// InvalidateAll clears the entire cache.
func (c *ResultCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}
