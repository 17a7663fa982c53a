package cascade

import (
	"fmt"
	"strings"
)

// EntityID is an opaque identifier, unique within a single level.
type EntityID string

// IDPtr returns a pointer to id, handy when building Entity literals.
func IDPtr(id EntityID) *EntityID {
	return &id
}

// Entity is a selectable item at one level of a hierarchy.
type Entity struct {
	ID          EntityID       `json:"id"`
	DisplayName string         `json:"display_name"`
	ParentID    *EntityID      `json:"parent_id,omitempty"`
	Code        string         `json:"code,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// ChildOf reports whether the entity belongs to parent. A nil parent only
// matches root entities.
func (e Entity) ChildOf(parent *EntityID) bool {
	return sameID(e.ParentID, parent)
}

func (e Entity) malformed() bool {
	return strings.TrimSpace(string(e.ID)) == "" || strings.TrimSpace(e.DisplayName) == ""
}

// Clone returns a deep copy of the entity, including its attributes.
func (e Entity) Clone() Entity {
	out := e
	if e.ParentID != nil {
		out.ParentID = IDPtr(*e.ParentID)
	}
	out.Attributes = copyAttributes(e.Attributes)
	return out
}

func sameID(a, b *EntityID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func idString(id *EntityID) string {
	if id == nil {
		return ""
	}
	return string(*id)
}

// Level is the zero-based position of a picker inside a Hierarchy.
type Level int

// LevelSpec describes one level of a hierarchy.
type LevelSpec struct {
	Name  string
	Label string
	// FilterKey names the level in filter payloads. Defaults to Name.
	FilterKey string
	// Independent levels can be searched without a committed parent, e.g.
	// postal codes looked up by raw code.
	Independent bool
}

func (s LevelSpec) filterKey() string {
	if s.FilterKey != "" {
		return s.FilterKey
	}
	return s.Name
}

const maxLevels = 8

// Hierarchy is a statically defined, ordered list of levels.
type Hierarchy struct {
	levels []LevelSpec
}

// NewHierarchy validates levels and returns an immutable Hierarchy.
func NewHierarchy(levels ...LevelSpec) (Hierarchy, error) {
	if len(levels) == 0 {
		return Hierarchy{}, fmt.Errorf("cascade: hierarchy requires at least one level")
	}
	if len(levels) > maxLevels {
		return Hierarchy{}, fmt.Errorf("cascade: hierarchy supports at most %d levels, got %d", maxLevels, len(levels))
	}
	seen := make(map[string]struct{}, len(levels))
	copied := make([]LevelSpec, len(levels))
	for i, spec := range levels {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" {
			return Hierarchy{}, fmt.Errorf("cascade: level %d: name is required", i)
		}
		if _, ok := seen[spec.Name]; ok {
			return Hierarchy{}, fmt.Errorf("cascade: duplicate level name %q", spec.Name)
		}
		seen[spec.Name] = struct{}{}
		if spec.Label == "" {
			spec.Label = spec.Name
		}
		copied[i] = spec
	}
	return Hierarchy{levels: copied}, nil
}

// MustHierarchy is NewHierarchy that panics on error. Intended for package
// level definitions.
func MustHierarchy(levels ...LevelSpec) Hierarchy {
	h, err := NewHierarchy(levels...)
	if err != nil {
		panic(err)
	}
	return h
}

// Geographic levels used by the portal's user and zone screens.
const (
	LevelCountry Level = iota
	LevelState
	LevelLocality
	LevelZipCode
)

// GeographicHierarchy returns the Country → State → Locality → Zip code
// hierarchy. Zip codes can be searched directly by code.
func GeographicHierarchy() Hierarchy {
	return MustHierarchy(
		LevelSpec{Name: "country", Label: "País"},
		LevelSpec{Name: "state", Label: "Provincia / Estado", FilterKey: "province"},
		LevelSpec{Name: "locality", Label: "Localidad", FilterKey: "city"},
		LevelSpec{Name: "zip_code", Label: "Código Postal", FilterKey: "postal_code", Independent: true},
	)
}

// Len returns the number of levels.
func (h Hierarchy) Len() int {
	return len(h.levels)
}

// Spec returns the spec for level.
func (h Hierarchy) Spec(level Level) (LevelSpec, bool) {
	if !h.valid(level) {
		return LevelSpec{}, false
	}
	return h.levels[level], true
}

// Lookup finds a level by name.
func (h Hierarchy) Lookup(name string) (Level, bool) {
	for i, spec := range h.levels {
		if spec.Name == name {
			return Level(i), true
		}
	}
	return 0, false
}

// Levels returns a copy of the level specs.
func (h Hierarchy) Levels() []LevelSpec {
	return append([]LevelSpec(nil), h.levels...)
}

func (h Hierarchy) valid(level Level) bool {
	return level >= 0 && int(level) < len(h.levels)
}

func (h Hierarchy) name(level Level) string {
	if !h.valid(level) {
		return fmt.Sprintf("level-%d", level)
	}
	return h.levels[level].Name
}

// Phase is the per-level state machine position.
type Phase int

const (
	// PhaseEmpty has no text and no selection.
	PhaseEmpty Phase = iota
	// PhaseTyping has raw text but no committed entity.
	PhaseTyping
	// PhaseCommitted holds an explicitly selected entity.
	PhaseCommitted
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseTyping:
		return "typing"
	case PhaseCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// SelectionState is a snapshot of one level.
type SelectionState struct {
	Level       Level
	Name        string
	Committed   *Entity
	RawText     string
	Suggestions []Entity
	Loading     bool
}

// Phase derives the state machine position from the snapshot.
func (s SelectionState) Phase() Phase {
	switch {
	case s.Committed != nil:
		return PhaseCommitted
	case strings.TrimSpace(s.RawText) != "":
		return PhaseTyping
	default:
		return PhaseEmpty
	}
}

// ChangeReason explains why a level snapshot was published.
type ChangeReason string

const (
	ReasonTyped        ChangeReason = "typed"
	ReasonLoading      ChangeReason = "loading"
	ReasonSuggestions  ChangeReason = "suggestions"
	ReasonLookupFailed ChangeReason = "lookup_failed"
	ReasonCommitted    ChangeReason = "committed"
	ReasonCleared      ChangeReason = "cleared"
	ReasonCascade      ChangeReason = "cascade"
	ReasonReset        ChangeReason = "reset"
)

// Change is delivered to subscribers after a transition is applied.
type Change struct {
	Level  Level
	State  SelectionState
	Reason ChangeReason
}

func copyAttributes(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}

func cloneEntities(entities []Entity) []Entity {
	if entities == nil {
		return nil
	}
	out := make([]Entity, len(entities))
	for i := range entities {
		out[i] = entities[i].Clone()
	}
	return out
}
