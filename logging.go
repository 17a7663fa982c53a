package cascade

import "time"

// LookupLogEvent describes a lookup attempt for logging.
type LookupLogEvent struct {
	Level    Level
	Name     string
	ParentID *EntityID
	Query    string
	Duration time.Duration
	Results  int
	Rejected int
	CacheHit bool
	// Stale is set when the result was dropped because a newer lookup or a
	// parent change superseded it.
	Stale  bool
	Direct bool
	Err    error
}

// LookupLogger records lookup events.
type LookupLogger interface {
	LogLookup(LookupLogEvent)
}

// LookupLoggerFunc adapts a function to LookupLogger.
type LookupLoggerFunc func(LookupLogEvent)

// LogLookup implements LookupLogger.
func (f LookupLoggerFunc) LogLookup(event LookupLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLookupLogger struct{}

func (noopLookupLogger) LogLookup(LookupLogEvent) {}

// WithLogger attaches a lookup logger to the resolver.
func WithLogger(logger LookupLogger) Option {
	return func(cfg *resolverConfig) {
		if logger == nil {
			cfg.logger = noopLookupLogger{}
			return
		}
		cfg.logger = logger
	}
}
