package state_test

import (
	"context"
	"errors"
	"testing"
	"time"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/pkg/state"
	"github.com/goliatone/go-cascade/provider/memory"
)

var (
	argentina = cascade.Entity{ID: "13", DisplayName: "Argentina"}
	cordoba   = cascade.Entity{ID: "2", DisplayName: "Córdoba", ParentID: cascade.IDPtr("13")}
	rioCuarto = cascade.Entity{ID: "201", DisplayName: "Río Cuarto", ParentID: cascade.IDPtr("2")}
	editForm  = state.Ref{Form: "users.edit", Scope: "user", ID: "u-1"}
)

func newResolver(t *testing.T) *cascade.Resolver {
	t.Helper()
	resolver, err := cascade.New(cascade.GeographicHierarchy(), memory.New())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	t.Cleanup(func() { _ = resolver.Close() })
	return resolver
}

func TestSaveAndRestoreSelection(t *testing.T) {
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	selections := state.Selections{Store: state.NewMemoryStore(), Now: func() time.Time { return fixed }}
	ctx := context.Background()

	source := newResolver(t)
	if err := source.Preload(argentina, cordoba, rioCuarto); err != nil {
		t.Fatalf("preload: %v", err)
	}
	meta, err := selections.Save(ctx, editForm, source, state.Meta{Extra: map[string]string{"by": "admin"}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if meta.SnapshotID == "" || meta.ETag == "" || !meta.UpdatedAt.Equal(fixed) || meta.Extra["by"] != "admin" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	target := newResolver(t)
	restored, ok, err := selections.Restore(ctx, editForm, target)
	if err != nil || !ok {
		t.Fatalf("restore: ok=%v err=%v", ok, err)
	}
	if restored.ETag != meta.ETag {
		t.Fatalf("expected etag %q, got %q", meta.ETag, restored.ETag)
	}
	got, ok := target.Selected(cascade.LevelLocality)
	if !ok || got.ID != "201" {
		t.Fatalf("expected Río Cuarto restored, got %+v ok=%v", got, ok)
	}
	if filter := target.Filter(); filter["city"] != "201" || filter["province"] != "2" {
		t.Fatalf("unexpected filter %v", filter)
	}
}

func TestRestoreMissingSelection(t *testing.T) {
	selections := state.Selections{Store: state.NewMemoryStore()}
	_, ok, err := selections.Restore(context.Background(), editForm, newResolver(t))
	if err != nil || ok {
		t.Fatalf("expected nothing restored, got ok=%v err=%v", ok, err)
	}
}

func TestSaveRejectsStaleETag(t *testing.T) {
	selections := state.Selections{Store: state.NewMemoryStore()}
	ctx := context.Background()
	source := newResolver(t)
	if err := source.Preload(argentina); err != nil {
		t.Fatalf("preload: %v", err)
	}

	first, err := selections.Save(ctx, editForm, source, state.Meta{})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	second, err := selections.Save(ctx, editForm, source, state.Meta{ETag: first.ETag})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.ETag == first.ETag || second.SnapshotID != first.SnapshotID {
		t.Fatalf("expected fresh etag and stable snapshot id, got %+v then %+v", first, second)
	}
	if _, err := selections.Save(ctx, editForm, source, state.Meta{ETag: first.ETag}); !errors.Is(err, state.ErrETagMismatch) {
		t.Fatalf("expected ErrETagMismatch, got %v", err)
	}
}

func TestConcurrentWritersWithSameETag(t *testing.T) {
	store := state.NewMemoryStore()
	selections := state.Selections{Store: store}
	ctx := context.Background()

	_, seeded, err := selections.Mutate(ctx, editForm, state.Meta{}, func(s *state.Snapshot) error {
		s.Filter = map[string]string{"writer": "init"}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	checked := make(chan struct{})
	release := make(chan struct{})
	errA := make(chan error, 1)
	go func() {
		_, _, err := selections.Mutate(ctx, editForm, state.Meta{ETag: seeded.ETag}, func(s *state.Snapshot) error {
			close(checked)
			<-release
			s.Filter = map[string]string{"writer": "A"}
			return nil
		})
		errA <- err
	}()

	<-checked
	_, _, errB := selections.Mutate(ctx, editForm, state.Meta{ETag: seeded.ETag}, func(s *state.Snapshot) error {
		s.Filter = map[string]string{"writer": "B"}
		return nil
	})
	close(release)

	if errB != nil {
		t.Fatalf("writer B: %v", errB)
	}
	if err := <-errA; !errors.Is(err, state.ErrETagMismatch) {
		t.Fatalf("expected writer A to lose with ErrETagMismatch, got %v", err)
	}
	stored, _, _, err := store.Load(ctx, editForm)
	if err != nil || stored.Filter["writer"] != "B" {
		t.Fatalf("expected writer B stored, got %v err=%v", stored.Filter, err)
	}
}

func TestMemoryStoreSaveChecksETag(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Save(ctx, editForm, state.Snapshot{}, state.Meta{ETag: "e1"}, "e0"); !errors.Is(err, state.ErrETagMismatch) {
		t.Fatalf("expected mismatch on missing record, got %v", err)
	}
	if _, err := store.Save(ctx, editForm, state.Snapshot{}, state.Meta{ETag: "e1"}, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Save(ctx, editForm, state.Snapshot{}, state.Meta{ETag: "e2"}, ""); !errors.Is(err, state.ErrETagMismatch) {
		t.Fatalf("expected mismatch on second create, got %v", err)
	}
	if _, err := store.Save(ctx, editForm, state.Snapshot{}, state.Meta{ETag: "e2"}, "e1"); err != nil {
		t.Fatalf("update: %v", err)
	}
}

type failingStore struct {
	loadErr error
	saveErr error
}

func (s failingStore) Load(context.Context, state.Ref) (state.Snapshot, state.Meta, bool, error) {
	return state.Snapshot{}, state.Meta{}, false, s.loadErr
}

func (s failingStore) Save(context.Context, state.Ref, state.Snapshot, state.Meta, string) (state.Meta, error) {
	return state.Meta{}, s.saveErr
}

func TestMutateErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	if _, _, err := (state.Selections{}).Mutate(ctx, editForm, state.Meta{}, func(*state.Snapshot) error { return nil }); err == nil {
		t.Fatalf("expected store required error")
	}
	selections := state.Selections{Store: failingStore{loadErr: boom}}
	if _, _, err := selections.Mutate(ctx, editForm, state.Meta{}, func(*state.Snapshot) error { return nil }); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	selections = state.Selections{Store: failingStore{saveErr: boom}}
	if _, _, err := selections.Mutate(ctx, editForm, state.Meta{}, func(*state.Snapshot) error { return nil }); !errors.Is(err, boom) {
		t.Fatalf("expected save error, got %v", err)
	}
	if _, _, err := selections.Mutate(ctx, editForm, state.Meta{}, func(*state.Snapshot) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	if _, _, err := selections.Mutate(ctx, state.Ref{Form: "x", Scope: "user"}, state.Meta{}, func(*state.Snapshot) error { return nil }); err == nil {
		t.Fatalf("expected identifier error")
	}
}

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	local := cascade.Entity{
		ID:          "2",
		DisplayName: "Córdoba",
		ParentID:    cascade.IDPtr("13"),
		Attributes:  map[string]any{"region": "centro"},
	}
	snapshot := state.Snapshot{Path: []cascade.Entity{local}, Filter: map[string]string{"province": "2"}}
	if _, err := store.Save(ctx, editForm, snapshot, state.Meta{ETag: "e1", Extra: map[string]string{"k": "v"}}, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	*snapshot.Path[0].ParentID = "999"
	snapshot.Path[0].Attributes["region"] = "norte"
	snapshot.Filter["province"] = "x"

	loaded, meta, ok, err := store.Load(ctx, editForm)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if *loaded.Path[0].ParentID != "13" || loaded.Filter["province"] != "2" || meta.Extra["k"] != "v" {
		t.Fatalf("store shares memory with caller: %+v", loaded)
	}
	if loaded.Path[0].Attributes["region"] != "centro" {
		t.Fatalf("store shares attributes with caller: %v", loaded.Path[0].Attributes)
	}
	loaded.Path[0].Attributes["region"] = "sur"
	again, _, _, _ := store.Load(ctx, editForm)
	if again.Path[0].Attributes["region"] != "centro" {
		t.Fatalf("load shares attributes with store: %v", again.Path[0].Attributes)
	}
	if _, _, _, err := store.Load(ctx, state.Ref{Scope: "system"}); err == nil {
		t.Fatalf("expected identifier error")
	}
}
