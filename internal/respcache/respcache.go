// Package respcache is a small in-memory response cache placed in front of
// remote calls: named sub-caches, each with its own TTL and a fixed maximum
// entry count, evicting the oldest-inserted entry on overflow.
//
// It is purely an optimization layer. Nothing here is durable and nothing
// here participates in the identity store's consistency model.
package respcache

import (
	"sync"
	"time"

	"github.com/castlight/rolodex/internal/clock"
)

// Well-known sub-cache names used by the engine's collaborators.
const (
	CacheSearch          = "search"
	CacheProfile         = "profile"
	CacheChannelMeta     = "channel_meta"
	CacheConversationMap = "conversation_map"
)

// Stats is a hit/miss snapshot for one sub-cache.
type Stats struct {
	Name    string
	Entries int
	Hits    int64
	Misses  int64
}

// HitRate returns hits / (hits+misses), or 0 with no lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	value      any
	insertedAt time.Time
}

type subCache struct {
	ttl        time.Duration
	maxEntries int
	entries    map[string]entry
	order      []string // insertion order, oldest first
	hits       int64
	misses     int64
}

// Cache is a set of named, independently-TTL'd sub-caches.
//
// Thread-safety: all methods are safe for concurrent use via one mutex;
// the critical sections are map lookups, never remote calls.
type Cache struct {
	mu     sync.Mutex
	clk    clock.Clock
	caches map[string]*subCache
}

// New creates an empty cache using the given clock for TTL decisions.
func New(clk clock.Clock) *Cache {
	return &Cache{
		clk:    clk,
		caches: make(map[string]*subCache),
	}
}

// Configure creates or reconfigures a named sub-cache. Existing entries
// survive a reconfigure; overflow beyond the new maximum is evicted oldest
// first on the next Put.
func (c *Cache) Configure(name string, ttl time.Duration, maxEntries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc := c.caches[name]
	if sc == nil {
		sc = &subCache{entries: make(map[string]entry)}
		c.caches[name] = sc
	}
	sc.ttl = ttl
	sc.maxEntries = maxEntries
}

// Get returns the cached value for key in the named sub-cache. Expired
// entries count as misses and are dropped.
func (c *Cache) Get(name, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sc := c.caches[name]
	if sc == nil {
		return nil, false
	}
	e, ok := sc.entries[key]
	if !ok {
		sc.misses++
		return nil, false
	}
	if sc.ttl > 0 && c.clk.Now().Sub(e.insertedAt) >= sc.ttl {
		sc.remove(key)
		sc.misses++
		return nil, false
	}
	sc.hits++
	return e.value, true
}

// Put stores a value in the named sub-cache, evicting the oldest-inserted
// entries when the bound is exceeded. A Put into an unconfigured sub-cache
// is dropped.
func (c *Cache) Put(name, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sc := c.caches[name]
	if sc == nil {
		return
	}
	if _, exists := sc.entries[key]; exists {
		sc.remove(key)
	}
	sc.entries[key] = entry{value: value, insertedAt: c.clk.Now()}
	sc.order = append(sc.order, key)

	for sc.maxEntries > 0 && len(sc.entries) > sc.maxEntries {
		oldest := sc.order[0]
		sc.remove(oldest)
	}
}

// Invalidate drops a single key from the named sub-cache.
func (c *Cache) Invalidate(name, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sc := c.caches[name]; sc != nil {
		sc.remove(key)
	}
}

// Reset empties one named sub-cache. Hit/miss counters are preserved.
func (c *Cache) Reset(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sc := c.caches[name]; sc != nil {
		sc.entries = make(map[string]entry)
		sc.order = nil
	}
}

// Flush empties every sub-cache. Hit/miss counters are preserved.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sc := range c.caches {
		sc.entries = make(map[string]entry)
		sc.order = nil
	}
}

// StatsSnapshot returns per-sub-cache statistics in map order; callers sort
// if they need stable output.
func (c *Cache) StatsSnapshot() []Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Stats, 0, len(c.caches))
	for name, sc := range c.caches {
		out = append(out, Stats{
			Name:    name,
			Entries: len(sc.entries),
			Hits:    sc.hits,
			Misses:  sc.misses,
		})
	}
	return out
}

// HitRate returns the aggregate hit rate across all sub-caches.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hits, total int64
	for _, sc := range c.caches {
		hits += sc.hits
		total += sc.hits + sc.misses
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// remove drops key from the entry map and the insertion-order slice.
func (sc *subCache) remove(key string) {
	delete(sc.entries, key)
	for i, k := range sc.order {
		if k == key {
			sc.order = append(sc.order[:i], sc.order[i+1:]...)
			break
		}
	}
}
