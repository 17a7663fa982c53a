package cascade

import (
	"fmt"

	"github.com/goliatone/go-cascade/pkg/activity"
)

// Select commits entity at level and clears every dependent level. Selecting
// the entity already committed is a no-op. At dependent levels the entity
// must belong to the committed parent; a missing ParentID is filled in.
func (r *Resolver) Select(level Level, entity Entity) error {
	if entity.malformed() {
		return ErrMalformedEntity
	}
	r.mu.Lock()
	if err := r.checkLocked(level); err != nil {
		r.mu.Unlock()
		return err
	}
	entity = entity.Clone()
	if err := r.scopeLocked(level, &entity); err != nil {
		r.mu.Unlock()
		return err
	}
	st := &r.levels[level]
	if st.committed != nil && st.committed.ID == entity.ID {
		r.mu.Unlock()
		return nil
	}

	r.debouncer.cancel(level)
	st.seq++
	st.committed = &entity
	st.rawText = entity.DisplayName
	st.suggestions = nil
	st.loading = false
	changes := []Change{r.changeLocked(level, ReasonCommitted)}
	cascaded, cleared := r.cascadeLocked(level)
	changes = append(changes, cascaded...)
	subs := r.subscribersLocked()
	r.mu.Unlock()

	publish(subs, changes)

	input := r.eventInput(level)
	input.EntityID = string(entity.ID)
	input.EntityName = entity.DisplayName
	input.ParentID = idString(entity.ParentID)
	input.Cascaded = cleared
	emitActivity(r.emitter, activity.BuildSelectionCommittedEvent(input))
	return nil
}

// Clear empties level and every dependent level.
func (r *Resolver) Clear(level Level) error {
	r.mu.Lock()
	if err := r.checkLocked(level); err != nil {
		r.mu.Unlock()
		return err
	}
	st := &r.levels[level]
	previous := st.committed

	r.debouncer.cancel(level)
	st.seq++
	st.committed = nil
	st.rawText = ""
	st.suggestions = nil
	st.loading = false
	changes := []Change{r.changeLocked(level, ReasonCleared)}
	cascaded, cleared := r.cascadeLocked(level)
	changes = append(changes, cascaded...)
	subs := r.subscribersLocked()
	r.mu.Unlock()

	publish(subs, changes)

	if previous != nil {
		input := r.eventInput(level)
		input.EntityID = string(previous.ID)
		input.EntityName = previous.DisplayName
		input.ParentID = idString(previous.ParentID)
		input.Cascaded = cleared
		emitActivity(r.emitter, activity.BuildSelectionClearedEvent(input))
	}
	return nil
}

// Preload replaces the whole selection with path, one entity per level
// starting at the root, in a single step. Levels past the path are emptied.
// Used to open edit forms on an existing record.
func (r *Resolver) Preload(path ...Entity) error {
	if len(path) > r.hierarchy.Len() {
		return fmt.Errorf("cascade: preload path has %d entities for %d levels: %w", len(path), r.hierarchy.Len(), ErrUnknownLevel)
	}
	committed := make([]Entity, len(path))
	for i, entity := range path {
		if entity.malformed() {
			return fmt.Errorf("cascade: preload level %d: %w", i, ErrMalformedEntity)
		}
		entity = entity.Clone()
		if i > 0 {
			parent := committed[i-1].ID
			switch {
			case entity.ParentID == nil:
				entity.ParentID = IDPtr(parent)
			case *entity.ParentID != parent:
				return fmt.Errorf("cascade: preload level %d: %w", i, ErrParentMismatch)
			}
		}
		committed[i] = entity
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.debouncer.cancelFrom(0)
	changes := make([]Change, 0, len(r.levels))
	for i := range r.levels {
		st := &r.levels[i]
		seq := st.seq + 1
		*st = levelState{seq: seq}
		reason := ReasonCascade
		if i < len(committed) {
			entity := committed[i]
			st.committed = &entity
			st.rawText = entity.DisplayName
			reason = ReasonCommitted
		}
		changes = append(changes, r.changeLocked(Level(i), reason))
	}
	r.cache.InvalidateSubtree(1, nil)
	subs := r.subscribersLocked()
	r.mu.Unlock()

	publish(subs, changes)
	return nil
}

// Reset empties every level and drops all cached suggestions.
func (r *Resolver) Reset() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.debouncer.cancelFrom(0)
	changes := make([]Change, 0, len(r.levels))
	for i := range r.levels {
		r.levels[i] = levelState{seq: r.levels[i].seq + 1}
		changes = append(changes, r.changeLocked(Level(i), ReasonReset))
	}
	r.cache.Clear()
	subs := r.subscribersLocked()
	r.mu.Unlock()

	publish(subs, changes)
	return nil
}

// scopeLocked checks that entity may be committed at level given the
// current parent selection.
func (r *Resolver) scopeLocked(level Level, entity *Entity) error {
	if level == 0 {
		return nil
	}
	parent := r.levels[level-1].committed
	if parent == nil {
		if r.hierarchy.levels[level].Independent {
			return nil
		}
		return fmt.Errorf("cascade: select %s: %w", r.hierarchy.name(level), ErrParentRequired)
	}
	if entity.ParentID == nil {
		entity.ParentID = IDPtr(parent.ID)
		return nil
	}
	if *entity.ParentID != parent.ID {
		return fmt.Errorf("cascade: select %s %s under %s: %w", r.hierarchy.name(level), entity.ID, parent.ID, ErrParentMismatch)
	}
	return nil
}

// cascadeLocked clears every level below level in ascending order, drops
// their pending timers, bumps their seq so in-flight lookups are discarded,
// and invalidates the cached subtree. It returns the published changes and
// the names of levels that held a value.
func (r *Resolver) cascadeLocked(level Level) ([]Change, []string) {
	var changes []Change
	var cleared []string
	for l := level + 1; r.hierarchy.valid(l); l++ {
		st := &r.levels[l]
		dirty := st.committed != nil || st.rawText != "" || len(st.suggestions) > 0 || st.loading
		*st = levelState{seq: st.seq + 1}
		if dirty {
			cleared = append(cleared, r.hierarchy.name(l))
			changes = append(changes, r.changeLocked(l, ReasonCascade))
		}
	}
	r.debouncer.cancelFrom(level + 1)
	var parent *EntityID
	if committed := r.levels[level].committed; committed != nil {
		parent = IDPtr(committed.ID)
	}
	r.cache.InvalidateSubtree(level+1, parent)
	return changes, cleared
}
