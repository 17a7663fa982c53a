package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// CacheKey identifies one memoized lookup. Queries are stored normalized and
// matched exactly; "spring" never serves "spr".
type CacheKey struct {
	Level     Level
	HasParent bool
	ParentID  EntityID
	Query     string
}

// NewCacheKey builds a key from lookup coordinates, normalizing query.
func NewCacheKey(level Level, parentID *EntityID, query string) CacheKey {
	key := CacheKey{Level: level, Query: NormalizeQuery(query)}
	if parentID != nil {
		key.HasParent = true
		key.ParentID = *parentID
	}
	return key
}

func (k CacheKey) String() string {
	parent := "-"
	if k.HasParent {
		parent = string(k.ParentID)
	}
	return fmt.Sprintf("%d|%s|%s", k.Level, parent, k.Query)
}

// flightKey encodes k one-to-one; String is for display and may collide.
func (k CacheKey) flightKey() string {
	return fmt.Sprintf("%d\x00%t\x00%q\x00%q", k.Level, k.HasParent, k.ParentID, k.Query)
}

// CacheOption configures a SuggestionCache.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	ttl      time.Duration
	capacity uint64
}

// CacheWithTTL expires entries after ttl. Zero keeps entries for the lifetime
// of the cache.
func CacheWithTTL(ttl time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// CacheWithCapacity bounds the number of entries, evicting the least recently
// used first. Zero means unbounded.
func CacheWithCapacity(capacity uint64) CacheOption {
	return func(cfg *cacheConfig) {
		cfg.capacity = capacity
	}
}

// SuggestionCache memoizes provider results per (level, parent, query). It is
// safe for concurrent use.
type SuggestionCache struct {
	items  *ttlcache.Cache[CacheKey, []Entity]
	flight singleflight.Group
}

// NewSuggestionCache constructs an empty cache. With no options entries never
// expire and are removed only by invalidation.
func NewSuggestionCache(opts ...CacheOption) *SuggestionCache {
	cfg := cacheConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cacheOpts := []ttlcache.Option[CacheKey, []Entity]{
		ttlcache.WithDisableTouchOnHit[CacheKey, []Entity](),
	}
	if cfg.ttl > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithTTL[CacheKey, []Entity](cfg.ttl))
	}
	if cfg.capacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[CacheKey, []Entity](cfg.capacity))
	}
	return &SuggestionCache{items: ttlcache.New(cacheOpts...)}
}

// Get returns the entry stored for an exact key match. The returned slice is
// shared with the cache and must not be mutated.
func (c *SuggestionCache) Get(level Level, parentID *EntityID, query string) ([]Entity, bool) {
	return c.get(NewCacheKey(level, parentID, query))
}

// Put stores or overwrites an entry.
func (c *SuggestionCache) Put(level Level, parentID *EntityID, query string, entities []Entity) {
	c.put(NewCacheKey(level, parentID, query), entities)
}

// InvalidateSubtree removes every entry at level or deeper. parentID names the
// parent that changed; entries of other parents at those levels go too since
// they can no longer be reached from the current selection. Returns the number
// of removed entries.
func (c *SuggestionCache) InvalidateSubtree(level Level, parentID *EntityID) int {
	_ = parentID
	removed := 0
	for _, key := range c.items.Keys() {
		if key.Level >= level {
			c.items.Delete(key)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *SuggestionCache) Clear() {
	c.items.DeleteAll()
}

// Len returns the number of stored entries.
func (c *SuggestionCache) Len() int {
	return c.items.Len()
}

func (c *SuggestionCache) get(key CacheKey) ([]Entity, bool) {
	item := c.items.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (c *SuggestionCache) put(key CacheKey, entities []Entity) {
	if entities == nil {
		entities = []Entity{}
	}
	c.items.Set(key, entities, ttlcache.DefaultTTL)
}

// load serves key from the cache or runs fetch, collapsing concurrent misses
// for the same key into a single call. Results are not written back: callers
// decide whether the result is still current before calling put.
func (c *SuggestionCache) load(ctx context.Context, key CacheKey, fetch func(context.Context) ([]Entity, error)) ([]Entity, bool, error) {
	if entities, ok := c.get(key); ok {
		return entities, true, nil
	}
	value, err, _ := c.flight.Do(key.flightKey(), func() (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return nil, false, err
	}
	entities, _ := value.([]Entity)
	return entities, false, nil
}
