package caching

import (
	"sync"
	"time"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/metrics"
)

type responseEntry struct {
	payload  *analytics.Payload
	storedAt time.Time
}

// ResponseCache holds completed analytics payloads for a short TTL.
// Expired entries are swept on every write; there is no background timer.
type ResponseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]responseEntry
}

// NewResponseCache creates a cache whose entries expire after ttl.
func NewResponseCache(ttl time.Duration, now func() time.Time) *ResponseCache {
	if now == nil {
		now = time.Now
	}
	return &ResponseCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]responseEntry),
	}
}

// Get returns the payload stored under key if it is younger than the TTL.
func (c *ResponseCache) Get(key string) (*analytics.Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		metrics.ResponseCacheMisses.Inc()
		return nil, false
	}
	metrics.ResponseCacheHits.Inc()
	return e.payload, true
}

// Set stores a payload and sweeps expired entries.
func (c *ResponseCache) Set(key string, payload *analytics.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			metrics.ResponseCacheEvictions.Inc()
		}
	}
	c.entries[key] = responseEntry{payload: payload, storedAt: now}
}

// Len returns the number of stored entries, expired or not.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]responseEntry)
}
