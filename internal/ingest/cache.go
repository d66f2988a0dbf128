package ingest

import (
	"sync"
	"time"
)

// seenCache remembers posting hashes for a short window so that a posting
// surfacing in several queries or pages of the same cycle is upserted once.
// The TTL stays below the fast ingest cadence; cross-cycle freshness
// (last_seen_at) is still driven by the store upsert.
type seenCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]time.Time
}

func newSeenCache(ttl time.Duration) *seenCache {
	return &seenCache{ttl: ttl, items: make(map[string]time.Time)}
}

// Seen reports whether hash was marked within the TTL and marks it either
// way, so the first caller gets false and does the write.
func (c *seenCache) Seen(hash string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.items[hash]
	c.items[hash] = now.Add(c.ttl)
	if ok && now.Before(exp) {
		return true
	}
	if len(c.items) > 1 && len(c.items)%4096 == 0 {
		c.prune(now)
	}
	return false
}

func (c *seenCache) prune(now time.Time) {
	for h, exp := range c.items {
		if now.After(exp) {
			delete(c.items, h)
		}
	}
}
