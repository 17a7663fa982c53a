package cascade

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDebounce is the quiet period between the last keystroke and the
// lookup it triggers.
const DefaultDebounce = 300 * time.Millisecond

// debouncer keeps at most one pending timer per level. Scheduling again
// before the window elapses replaces the pending call.
type debouncer struct {
	clock  clockwork.Clock
	window time.Duration

	mu      sync.Mutex
	pending map[Level]*pendingCall
	gen     uint64
	stopped bool
}

type pendingCall struct {
	timer clockwork.Timer
	gen   uint64
}

func newDebouncer(clock clockwork.Clock, window time.Duration) *debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &debouncer{
		clock:   clock,
		window:  window,
		pending: make(map[Level]*pendingCall),
	}
}

// schedule runs fn after the quiet window unless another schedule or cancel
// for the same level happens first.
func (d *debouncer) schedule(level Level, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if prev, ok := d.pending[level]; ok {
		prev.timer.Stop()
		delete(d.pending, level)
	}
	if d.window <= 0 {
		go fn()
		return
	}
	d.gen++
	gen := d.gen
	call := &pendingCall{gen: gen}
	call.timer = d.clock.AfterFunc(d.window, func() {
		if !d.take(level, gen) {
			return
		}
		fn()
	})
	d.pending[level] = call
}

// take removes the pending entry if it still belongs to gen.
func (d *debouncer) take(level Level, gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	call, ok := d.pending[level]
	if !ok || call.gen != gen || d.stopped {
		return false
	}
	delete(d.pending, level)
	return true
}

func (d *debouncer) cancel(level Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if call, ok := d.pending[level]; ok {
		call.timer.Stop()
		delete(d.pending, level)
	}
}

func (d *debouncer) cancelFrom(level Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for l, call := range d.pending {
		if l >= level {
			call.timer.Stop()
			delete(d.pending, l)
		}
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for level, call := range d.pending {
		call.timer.Stop()
		delete(d.pending, level)
	}
}
