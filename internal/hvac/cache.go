package hvac

import (
	"time"

	"github.com/jluzny/hag/internal/models"
)

// pruneThreshold bounds cache growth under long-running event bursts.
const pruneThreshold = 256

type cacheEntry struct {
	result   models.EvaluationResult
	storedAt time.Time
}

// resultCache memoizes evaluation results for a short TTL so that a
// burst of sensor-changed notifications arriving within the same
// instant does not recompute the identical decision. Entries carry
// wall-clock timestamps and are checked defensively: an entry stored
// "in the future" (clock stepped backwards) counts as expired.
type resultCache struct {
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// get returns a fresh memoized result for key, if any. Callers
// synchronize externally (the engine holds its mutex).
func (c *resultCache) get(key string, now time.Time) (models.EvaluationResult, bool) {
	if c.ttl <= 0 {
		return models.EvaluationResult{}, false
	}
	e, ok := c.entries[key]
	if !ok {
		return models.EvaluationResult{}, false
	}
	age := now.Sub(e.storedAt)
	if age < 0 || age > c.ttl {
		delete(c.entries, key)
		return models.EvaluationResult{}, false
	}
	return e.result, true
}

func (c *resultCache) put(key string, res models.EvaluationResult, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	if len(c.entries) >= pruneThreshold {
		c.prune(now)
	}
	c.entries[key] = cacheEntry{result: res, storedAt: now}
}

// invalidate drops every entry. Called when internal engine state
// (the defrost timestamp) changes underneath memoized results.
func (c *resultCache) invalidate() {
	c.entries = make(map[string]cacheEntry)
}

// prune removes expired entries; if everything is still fresh the map
// is reset anyway so a put can never grow it unboundedly.
func (c *resultCache) prune(now time.Time) {
	for k, e := range c.entries {
		age := now.Sub(e.storedAt)
		if age < 0 || age > c.ttl {
			delete(c.entries, k)
		}
	}
	if len(c.entries) >= pruneThreshold {
		c.entries = make(map[string]cacheEntry)
	}
}
