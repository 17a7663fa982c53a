package state

import (
	"context"
	"fmt"
	"sync"

	cascade "github.com/goliatone/go-cascade"
)

// MemoryStore is a minimal in-memory Store implementation intended for tests
// and examples. It uses Ref.Identifier() as its deterministic key.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	snapshot Snapshot
	meta     Meta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]memoryRecord{}}
}

func (s *MemoryStore) Load(_ context.Context, ref Ref) (Snapshot, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Snapshot{}, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, Meta{}, false, nil
	}
	return cloneSnapshot(record.snapshot), cloneMeta(record.meta), true, nil
}

func (s *MemoryStore) Save(_ context.Context, ref Ref, snapshot Snapshot, meta Meta, expect string) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current := s.records[key].meta.ETag; current != expect {
		return Meta{}, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, expect, current)
	}
	s.records[key] = memoryRecord{snapshot: cloneSnapshot(snapshot), meta: cloneMeta(meta)}
	return cloneMeta(meta), nil
}

func cloneSnapshot(snapshot Snapshot) Snapshot {
	out := Snapshot{Path: make([]cascade.Entity, len(snapshot.Path))}
	for i, entity := range snapshot.Path {
		out.Path[i] = entity.Clone()
	}
	if snapshot.Filter != nil {
		out.Filter = make(map[string]string, len(snapshot.Filter))
		for k, v := range snapshot.Filter {
			out.Filter[k] = v
		}
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
