package cascade

import (
	"context"

	"github.com/goliatone/go-cascade/pkg/activity"
)

type activityConfig struct {
	hooks    activity.Hooks
	channel  string
	actorID  string
	userID   string
	tenantID string
}

// WithActivityHooks attaches activity hooks that receive selection.committed,
// selection.cleared and lookup.failed events. Nil entries are dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *resolverConfig) {
		cfg.activity.hooks = normalized
	}
}

// WithActivityActor stamps emitted events with the acting identity.
func WithActivityActor(actorID, userID, tenantID string) Option {
	return func(cfg *resolverConfig) {
		cfg.activity.actorID = actorID
		cfg.activity.userID = userID
		cfg.activity.tenantID = tenantID
	}
}

// WithActivityChannel overrides the channel recorded on emitted events.
func WithActivityChannel(channel string) Option {
	return func(cfg *resolverConfig) {
		cfg.activity.channel = channel
	}
}

func (c activityConfig) emitter() *activity.Emitter {
	return activity.NewEmitter(c.hooks, activity.Config{
		Enabled:  len(c.hooks) > 0,
		Channel:  c.channel,
		ActorID:  c.actorID,
		UserID:   c.userID,
		TenantID: c.tenantID,
	})
}

// emitActivity is best effort; hook failures never affect resolver state.
func emitActivity(emitter *activity.Emitter, event activity.Event) {
	if !emitter.Enabled() {
		return
	}
	_ = emitter.Emit(context.Background(), event)
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
