package cascade

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Option configures a Resolver.
type Option func(*resolverConfig)

type resolverConfig struct {
	debounce       time.Duration
	clock          clockwork.Clock
	cache          *SuggestionCache
	cacheOpts      []CacheOption
	logger         LookupLogger
	activity       activityConfig
	ruleEvaluator  Evaluator
	ruleExpr       string
	maxSuggestions int
}

func applyOptions(opts []Option) resolverConfig {
	cfg := resolverConfig{
		debounce: DefaultDebounce,
		logger:   noopLookupLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.clock == nil {
		cfg.clock = clockwork.NewRealClock()
	}
	if cfg.cache == nil {
		cfg.cache = NewSuggestionCache(cfg.cacheOpts...)
	}
	return cfg
}

// WithDebounce sets the quiet window between the last keystroke and the
// lookup. Zero or negative values dispatch lookups immediately.
func WithDebounce(window time.Duration) Option {
	return func(cfg *resolverConfig) {
		if window < 0 {
			window = 0
		}
		cfg.debounce = window
	}
}

// WithClock replaces the clock driving debounce timers. Tests pass a
// clockwork.FakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(cfg *resolverConfig) {
		cfg.clock = clock
	}
}

// WithCache shares an existing suggestion cache. Cache options are ignored
// when a cache is supplied.
func WithCache(cache *SuggestionCache) Option {
	return func(cfg *resolverConfig) {
		cfg.cache = cache
	}
}

// WithCacheTTL expires cached suggestion lists after ttl.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *resolverConfig) {
		cfg.cacheOpts = append(cfg.cacheOpts, CacheWithTTL(ttl))
	}
}

// WithCacheCapacity bounds the number of cached suggestion lists.
func WithCacheCapacity(capacity uint64) Option {
	return func(cfg *resolverConfig) {
		cfg.cacheOpts = append(cfg.cacheOpts, CacheWithCapacity(capacity))
	}
}

// WithMaxSuggestions caps the visible suggestion list per level. The cache
// keeps the full provider result.
func WithMaxSuggestions(limit int) Option {
	return func(cfg *resolverConfig) {
		if limit < 0 {
			limit = 0
		}
		cfg.maxSuggestions = limit
	}
}
