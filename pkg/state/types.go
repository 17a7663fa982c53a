package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cascade "github.com/goliatone/go-cascade"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

// Ref identifies one persisted selection for one form.
type Ref struct {
	Form  string
	Scope string
	// ID names the scope owner, e.g. the user id for scope "user".
	ID string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one snapshot for a single reference. Save replaces the
// record only while its ETag still equals expect ("" for a missing record)
// and fails with ErrETagMismatch otherwise.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta, expect string) (Meta, error)
}

// Snapshot is a committed root-to-leaf path plus the filter payload it
// produced.
type Snapshot struct {
	Path   []cascade.Entity  `json:"path"`
	Filter map[string]string `json:"filter,omitempty"`
}

type Mutator func(*Snapshot) error

func (r Ref) Identifier() (string, error) {
	form := strings.TrimSpace(r.Form)
	if form == "" {
		return "", fmt.Errorf("form is required")
	}
	switch r.Scope {
	case "system":
		return fmt.Sprintf("system/%s", form), nil
	case "tenant", "org", "team", "user":
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return "", fmt.Errorf("missing id for scope %q", r.Scope)
		}
		return fmt.Sprintf("%s/%s/%s", r.Scope, id, form), nil
	default:
		return "", fmt.Errorf("unsupported scope name %q", r.Scope)
	}
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
