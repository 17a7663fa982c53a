package cascade

import (
	"sync"

	"github.com/goliatone/go-cascade/pkg/activity"
)

// MultiSelect is a searchable single-level picker that accumulates an
// ordered set of entities, e.g. the activities a professional offers.
type MultiSelect struct {
	resolver *Resolver

	mu       sync.Mutex
	selected []Entity
}

// NewMultiSelect builds a multi-select for one level backed by provider.
func NewMultiSelect(spec LevelSpec, provider Provider, opts ...Option) (*MultiSelect, error) {
	hierarchy, err := NewHierarchy(spec)
	if err != nil {
		return nil, err
	}
	resolver, err := New(hierarchy, provider, opts...)
	if err != nil {
		return nil, err
	}
	return &MultiSelect{resolver: resolver}, nil
}

// Resolver exposes the underlying single-level resolver for subscriptions.
func (m *MultiSelect) Resolver() *Resolver {
	return m.resolver
}

// TextChanged records search text and schedules a debounced lookup.
func (m *MultiSelect) TextChanged(text string) error {
	return m.resolver.TextChanged(0, text)
}

// Focus fetches suggestions for the current text right away.
func (m *MultiSelect) Focus() error {
	return m.resolver.Focus(0)
}

// Add appends entity to the selection and resets the search text. Adding an
// entity twice keeps the original position.
func (m *MultiSelect) Add(entity Entity) error {
	if entity.malformed() {
		return ErrMalformedEntity
	}
	m.mu.Lock()
	if m.resolver.isClosed() {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.indexLocked(entity.ID) >= 0 {
		m.mu.Unlock()
		return nil
	}
	m.selected = append(m.selected, entity.Clone())
	m.mu.Unlock()

	if err := m.resolver.resetText(0); err != nil {
		return err
	}
	input := m.resolver.eventInput(0)
	input.EntityID = string(entity.ID)
	input.EntityName = entity.DisplayName
	emitActivity(m.resolver.emitter, activity.BuildSelectionCommittedEvent(input))
	return nil
}

// Remove drops id from the selection. It reports whether id was selected.
func (m *MultiSelect) Remove(id EntityID) bool {
	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	removed := m.selected[idx]
	m.selected = append(m.selected[:idx], m.selected[idx+1:]...)
	m.mu.Unlock()

	input := m.resolver.eventInput(0)
	input.EntityID = string(removed.ID)
	input.EntityName = removed.DisplayName
	emitActivity(m.resolver.emitter, activity.BuildSelectionClearedEvent(input))
	return true
}

// Selected returns the selected entities in insertion order.
func (m *MultiSelect) Selected() []Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneEntities(m.selected)
}

// IDs returns the ids of the selected entities in insertion order.
func (m *MultiSelect) IDs() []EntityID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]EntityID, len(m.selected))
	for i, entity := range m.selected {
		ids[i] = entity.ID
	}
	return ids
}

// Suggestions returns the current suggestions minus entities already
// selected.
func (m *MultiSelect) Suggestions() []Entity {
	state, err := m.resolver.State(0)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entity, 0, len(state.Suggestions))
	for _, entity := range state.Suggestions {
		if m.indexLocked(entity.ID) < 0 {
			out = append(out, entity)
		}
	}
	return out
}

// Close releases the underlying resolver.
func (m *MultiSelect) Close() error {
	return m.resolver.Close()
}

func (m *MultiSelect) indexLocked(id EntityID) int {
	for i, entity := range m.selected {
		if entity.ID == id {
			return i
		}
	}
	return -1
}

func (r *Resolver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// resetText empties level's text and suggestions without touching its
// commitment or emitting activity.
func (r *Resolver) resetText(level Level) error {
	r.mu.Lock()
	if err := r.checkLocked(level); err != nil {
		r.mu.Unlock()
		return err
	}
	r.debouncer.cancel(level)
	st := &r.levels[level]
	st.seq++
	st.rawText = ""
	st.suggestions = nil
	st.loading = false
	change := r.changeLocked(level, ReasonCleared)
	subs := r.subscribersLocked()
	r.mu.Unlock()

	publish(subs, []Change{change})
	return nil
}
