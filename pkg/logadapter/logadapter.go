// Package logadapter bridges cascade lookup events to structured loggers.
package logadapter

import (
	"context"
	"log/slog"

	cascade "github.com/goliatone/go-cascade"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const lookupMessage = "cascade lookup"

// Zap logs lookups on logger. Failures log at warn, stale results at debug
// and everything else at info.
func Zap(logger *zap.Logger) cascade.LookupLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return cascade.LookupLoggerFunc(func(event cascade.LookupLogEvent) {
		fields := []zap.Field{
			zap.Int("depth", int(event.Level)),
			zap.String("level_name", event.Name),
			zap.String("query", event.Query),
			zap.Duration("duration", event.Duration),
			zap.Int("results", event.Results),
			zap.Int("rejected", event.Rejected),
			zap.Bool("cache_hit", event.CacheHit),
		}
		if event.ParentID != nil {
			fields = append(fields, zap.String("parent_id", string(*event.ParentID)))
		}
		if event.Direct {
			fields = append(fields, zap.Bool("direct", true))
		}
		if event.Stale {
			fields = append(fields, zap.Bool("stale", true))
		}
		if event.Err != nil {
			fields = append(fields, zap.Error(event.Err))
		}
		logger.Log(zapLevel(event), lookupMessage, fields...)
	})
}

func zapLevel(event cascade.LookupLogEvent) zapcore.Level {
	switch {
	case event.Err != nil:
		return zapcore.WarnLevel
	case event.Stale:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Slog logs lookups on logger with the same levels as Zap. A nil logger uses
// slog.Default.
func Slog(logger *slog.Logger) cascade.LookupLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return cascade.LookupLoggerFunc(func(event cascade.LookupLogEvent) {
		attrs := []slog.Attr{
			slog.Int("depth", int(event.Level)),
			slog.String("level_name", event.Name),
			slog.String("query", event.Query),
			slog.Duration("duration", event.Duration),
			slog.Int("results", event.Results),
			slog.Int("rejected", event.Rejected),
			slog.Bool("cache_hit", event.CacheHit),
		}
		if event.ParentID != nil {
			attrs = append(attrs, slog.String("parent_id", string(*event.ParentID)))
		}
		if event.Direct {
			attrs = append(attrs, slog.Bool("direct", true))
		}
		if event.Stale {
			attrs = append(attrs, slog.Bool("stale", true))
		}
		if event.Err != nil {
			attrs = append(attrs, slog.Any("error", event.Err))
		}
		logger.LogAttrs(context.Background(), slogLevel(event), lookupMessage, attrs...)
	})
}

func slogLevel(event cascade.LookupLogEvent) slog.Level {
	switch {
	case event.Err != nil:
		return slog.LevelWarn
	case event.Stale:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
