package cascade

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const waitTimeout = 2 * time.Second

type fetchReply struct {
	entities []Entity
	err      error
}

type fetchCall struct {
	Level  Level
	Parent *EntityID
	Query  string
	reply  chan fetchReply
}

func (c *fetchCall) respond(entities []Entity, err error) {
	c.reply <- fetchReply{entities: entities, err: err}
}

// gatedProvider hands every fetch to the test, which answers it explicitly.
type gatedProvider struct {
	calls chan *fetchCall
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{calls: make(chan *fetchCall, 64)}
}

func (p *gatedProvider) FetchChildren(ctx context.Context, level Level, parentID *EntityID, query string) ([]Entity, error) {
	call := &fetchCall{Level: level, Parent: parentID, Query: query, reply: make(chan fetchReply, 1)}
	p.calls <- call
	select {
	case reply := <-call.reply:
		return reply.entities, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *gatedProvider) next(t *testing.T) *fetchCall {
	t.Helper()
	select {
	case call := <-p.calls:
		return call
	case <-time.After(waitTimeout):
		t.Fatalf("expected provider call")
		return nil
	}
}

func (p *gatedProvider) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case call := <-p.calls:
		t.Fatalf("unexpected provider call level=%d parent=%v query=%q", call.Level, idString(call.Parent), call.Query)
	case <-time.After(wait):
	}
}

type harness struct {
	t        *testing.T
	clock    *clockwork.FakeClock
	provider *gatedProvider
	resolver *Resolver
	changes  chan Change
	lookups  chan LookupLogEvent
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clock:    clockwork.NewFakeClock(),
		provider: newGatedProvider(),
		changes:  make(chan Change, 256),
		lookups:  make(chan LookupLogEvent, 256),
	}
	base := []Option{
		WithClock(h.clock),
		WithLogger(LookupLoggerFunc(func(event LookupLogEvent) { h.lookups <- event })),
	}
	resolver, err := New(GeographicHierarchy(), h.provider, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	resolver.Subscribe(func(change Change) { h.changes <- change })
	h.resolver = resolver
	t.Cleanup(func() {
		_ = resolver.Close()
	})
	return h
}

// typeAndWait records text and lets the debounce window elapse.
func (h *harness) typeAndWait(level Level, text string) {
	h.t.Helper()
	if err := h.resolver.TextChanged(level, text); err != nil {
		h.t.Fatalf("text changed: %v", err)
	}
	h.clock.Advance(DefaultDebounce)
}

func (h *harness) waitChange(match func(Change) bool) Change {
	h.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case change := <-h.changes:
			if match(change) {
				return change
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for change")
			return Change{}
		}
	}
}

func (h *harness) waitSuggestions(level Level) SelectionState {
	h.t.Helper()
	return h.waitChange(func(c Change) bool {
		return c.Level == level && (c.Reason == ReasonSuggestions || c.Reason == ReasonLookupFailed)
	}).State
}

func (h *harness) waitLookup(match func(LookupLogEvent) bool) LookupLogEvent {
	h.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case event := <-h.lookups:
			if match(event) {
				return event
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for lookup event")
			return LookupLogEvent{}
		}
	}
}

func (h *harness) mustSelect(level Level, entity Entity) {
	h.t.Helper()
	if err := h.resolver.Select(level, entity); err != nil {
		h.t.Fatalf("select level %d %s: %v", level, entity.ID, err)
	}
}

func (h *harness) mustState(level Level) SelectionState {
	h.t.Helper()
	state, err := h.resolver.State(level)
	if err != nil {
		h.t.Fatalf("state level %d: %v", level, err)
	}
	return state
}

func entity(id, name string, parent ...string) Entity {
	e := Entity{ID: EntityID(id), DisplayName: name}
	if len(parent) > 0 {
		e.ParentID = IDPtr(EntityID(parent[0]))
	}
	return e
}

func ids(entities []Entity) []EntityID {
	out := make([]EntityID, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}

var (
	argentina   = entity("13", "Argentina")
	chile       = entity("250", "Chile")
	cordoba     = entity("2", "Córdoba", "13")
	buenosAires = entity("1", "Buenos Aires", "13")
	santiago    = entity("7", "Santiago", "250")
	rioCuarto   = entity("201", "Río Cuarto", "2")
	villaMaria  = entity("202", "Villa María", "2")
)
