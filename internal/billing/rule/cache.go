package rule

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// cacheTTL matches cache.py's BillingCache TTL: resolved rules are cheap
// to recompute but looked up on every request, so a short TTL avoids
// repeated config JSON decoding without risking long-lived staleness.
const cacheTTL = 300 * time.Second

// Cache memoizes Resolve results by CacheKey. patrickmn/go-cache gives
// per-entry TTL eviction directly; it has no built-in bound on entry
// count, so unlike cache.py's 2048-entry LRU cap this cache relies on TTL
// alone to bound memory — see DESIGN.md for why the count-based eviction
// was not reproduced.
type Cache struct {
	store *gocache.Cache
}

// NewCache constructs a Cache with cache.py's TTL and a cleanup interval
// of twice the TTL, matching the go-cache idiom of janitor-interval >
// item-ttl.
func NewCache() *Cache {
	return &Cache{store: gocache.New(cacheTTL, 2*cacheTTL)}
}

// Get returns a previously cached Result for key, if present and unexpired.
func (c *Cache) Get(key string) (*Result, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	result, ok := v.(*Result)
	return result, ok
}

// Set stores result under key with the cache's default TTL.
func (c *Cache) Set(key string, result *Result) {
	c.store.SetDefault(key, result)
}
