package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	cascade "github.com/goliatone/go-cascade"
	"github.com/google/uuid"
)

// Pather exposes a resolver's committed selections.
type Pather interface {
	Path() []cascade.Entity
	Filter() map[string]string
}

// Preloader commits a saved path in one step.
type Preloader interface {
	Preload(path ...cascade.Entity) error
}

// Selections saves and restores committed paths through a Store.
type Selections struct {
	Store Store[Snapshot]
	// Now stamps Meta.UpdatedAt. Defaults to time.Now.
	Now func() time.Time
}

// Save stores the committed path of source. A non-empty meta.ETag must match
// the stored ETag. Every save issues a fresh ETag.
func (s Selections) Save(ctx context.Context, ref Ref, source Pather, meta Meta) (Meta, error) {
	if source == nil {
		return Meta{}, fmt.Errorf("state: source is required")
	}
	snapshot := Snapshot{Path: source.Path(), Filter: source.Filter()}
	_, saved, err := s.Mutate(ctx, ref, meta, func(current *Snapshot) error {
		*current = snapshot
		return nil
	})
	return saved, err
}

// Restore loads the snapshot for ref and preloads it into target. ok is false
// when nothing was saved.
func (s Selections) Restore(ctx context.Context, ref Ref, target Preloader) (Meta, bool, error) {
	if s.Store == nil {
		return Meta{}, false, fmt.Errorf("state: store is required")
	}
	if target == nil {
		return Meta{}, false, fmt.Errorf("state: target is required")
	}
	snapshot, meta, ok, err := s.Store.Load(ctx, ref)
	if err != nil {
		return Meta{}, false, fmt.Errorf("state: load %q for scope %q: %w", ref.Form, ref.Scope, err)
	}
	if !ok || len(snapshot.Path) == 0 {
		return meta, false, nil
	}
	if err := target.Preload(snapshot.Path...); err != nil {
		return meta, false, fmt.Errorf("state: preload %q: %w", ref.Form, err)
	}
	return meta, true, nil
}

// Mutate loads one snapshot, applies fn, and saves the result. The save fails
// with ErrETagMismatch when another writer saved in between.
func (s Selections) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator) (Snapshot, Meta, error) {
	if s.Store == nil {
		return Snapshot{}, Meta{}, fmt.Errorf("state: store is required")
	}
	if _, err := ref.Identifier(); err != nil {
		return Snapshot{}, Meta{}, fmt.Errorf("state: %w", err)
	}
	if fn == nil {
		return Snapshot{}, Meta{}, fmt.Errorf("state: mutator is required")
	}

	snapshot, loadedMeta, ok, err := s.Store.Load(ctx, ref)
	if err != nil {
		return Snapshot{}, Meta{}, fmt.Errorf("state: load %q for scope %q: %w", ref.Form, ref.Scope, err)
	}
	if !ok {
		snapshot = Snapshot{}
		loadedMeta = Meta{}
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return Snapshot{}, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if err := fn(&snapshot); err != nil {
		return Snapshot{}, loadedMeta, err
	}

	saveMeta := mergeMeta(loadedMeta, Meta{Extra: meta.Extra, SnapshotID: meta.SnapshotID})
	if saveMeta.SnapshotID == "" {
		saveMeta.SnapshotID = uuid.NewString()
	}
	saveMeta.ETag = uuid.NewString()
	saveMeta.UpdatedAt = s.now()

	savedMeta, err := s.Store.Save(ctx, ref, snapshot, saveMeta, loadedMeta.ETag)
	if errors.Is(err, ErrETagMismatch) {
		return Snapshot{}, loadedMeta, err
	}
	if err != nil {
		return Snapshot{}, loadedMeta, fmt.Errorf("state: save %q for scope %q: %w", ref.Form, ref.Scope, err)
	}
	return snapshot, savedMeta, nil
}

func (s Selections) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
