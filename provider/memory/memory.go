// Package memory provides an in-memory cascade.Provider for tests, examples
// and offline tooling.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/internal/hydrate"
)

// Provider serves entities stored per level. Parent scoping uses
// Entity.ParentID; a nil parent returns every entity of the level.
type Provider struct {
	mu      sync.RWMutex
	levels  map[cascade.Level][]cascade.Entity
	latency time.Duration
	calls   atomic.Int64
}

// Option configures a Provider.
type Option func(*Provider)

// WithLatency delays every fetch, honouring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.latency = d
		}
	}
}

func New(opts ...Option) *Provider {
	p := &Provider{levels: map[cascade.Level][]cascade.Entity{}}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Add appends entities to level.
func (p *Provider) Add(level cascade.Level, entities ...cascade.Entity) {
	p.mu.Lock()
	p.levels[level] = append(p.levels[level], entities...)
	p.mu.Unlock()
}

// Calls reports how many fetches reached the provider.
func (p *Provider) Calls() int64 {
	return p.calls.Load()
}

// FetchChildren implements cascade.Provider. query is matched as a folded
// substring of the display name or code.
func (p *Provider) FetchChildren(ctx context.Context, level cascade.Level, parentID *cascade.EntityID, query string) ([]cascade.Entity, error) {
	p.calls.Add(1)
	if ctx == nil {
		ctx = context.Background()
	}
	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query = cascade.NormalizeQuery(query)
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]cascade.Entity, 0)
	for _, entity := range p.levels[level] {
		if parentID != nil && !entity.ChildOf(parentID) {
			continue
		}
		if query != "" &&
			!strings.Contains(cascade.NormalizeQuery(entity.DisplayName), query) &&
			!strings.Contains(cascade.NormalizeQuery(entity.Code), query) {
			continue
		}
		out = append(out, copyEntity(entity))
	}
	return out, nil
}

// LoadFixture reads a JSON fixture keyed by level name:
//
//	{"country": [{"id": 13, "name": "Argentina"}],
//	 "state":   [{"id": 2, "name": "Córdoba", "parent_id": 13}]}
//
// Each level accepts a bare array or a {"data": [...]} envelope. Fields other
// than id, name, parent_id and code become attributes.
func LoadFixture(path string, hierarchy cascade.Hierarchy, opts ...Option) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memory: read fixture: %w", err)
	}
	return ParseFixture(data, hierarchy, opts...)
}

// ParseFixture is LoadFixture over raw bytes.
func ParseFixture(data []byte, hierarchy cascade.Hierarchy, opts ...Option) (*Provider, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("memory: parse fixture: %w", err)
	}
	decoder := hydrate.NewDecoder[cascade.Entity](hydrate.WithCustomDecoder[cascade.Entity](fixtureEntity))
	p := New(opts...)
	for name, body := range raw {
		level, ok := hierarchy.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("memory: fixture level %q: %w", name, cascade.ErrUnknownLevel)
		}
		records, err := hydrate.Records(body)
		if err != nil {
			return nil, fmt.Errorf("memory: fixture level %q: %w", name, err)
		}
		entities, err := decoder.DecodeAll(name, records)
		if err != nil {
			return nil, fmt.Errorf("memory: %w", err)
		}
		p.Add(level, entities...)
	}
	return p, nil
}

var fixtureFields = map[string]struct{}{"id": {}, "name": {}, "parent_id": {}, "code": {}}

func fixtureEntity(_ hydrate.Context, record map[string]any) (cascade.Entity, error) {
	var out cascade.Entity
	id, ok := hydrate.Scalar(record["id"])
	if !ok {
		return out, fmt.Errorf("id must be a string or integer, got %T", record["id"])
	}
	out.ID = cascade.EntityID(id)
	if name, ok := record["name"].(string); ok {
		out.DisplayName = name
	}
	if parent, ok := hydrate.Scalar(record["parent_id"]); ok {
		out.ParentID = cascade.IDPtr(cascade.EntityID(parent))
	}
	if code, ok := hydrate.Scalar(record["code"]); ok {
		out.Code = code
	}
	for key, value := range record {
		if _, reserved := fixtureFields[key]; reserved {
			continue
		}
		if out.Attributes == nil {
			out.Attributes = map[string]any{}
		}
		out.Attributes[key] = hydrate.Plain(value)
	}
	return out, nil
}

func copyEntity(entity cascade.Entity) cascade.Entity {
	out := entity
	if entity.ParentID != nil {
		out.ParentID = cascade.IDPtr(*entity.ParentID)
	}
	if entity.Attributes != nil {
		out.Attributes = make(map[string]any, len(entity.Attributes))
		for k, v := range entity.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
