package activity

import (
	"strings"
	"time"
)

// Verbs emitted by the resolver.
const (
	VerbSelectionCommitted = "selection.committed"
	VerbSelectionCleared   = "selection.cleared"
	VerbLookupFailed       = "lookup.failed"
)

// SelectionEventInput describes the common fields for selection events.
type SelectionEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Channel    string
	Level      int
	LevelName  string
	EntityID   string
	EntityName string
	ParentID   string
	Query      string
	// Cascaded lists the dependent levels cleared by this transition.
	Cascaded   []string
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildSelectionCommittedEvent records an explicit suggestion pick.
func BuildSelectionCommittedEvent(input SelectionEventInput) Event {
	return buildSelectionEvent(VerbSelectionCommitted, "selection", input.EntityID, input)
}

// BuildSelectionClearedEvent records a level being cleared by the user.
func BuildSelectionClearedEvent(input SelectionEventInput) Event {
	return buildSelectionEvent(VerbSelectionCleared, "selection", input.LevelName, input)
}

// BuildLookupFailedEvent records a provider failure that degraded a level to
// an empty suggestion list.
func BuildLookupFailedEvent(input SelectionEventInput) Event {
	return buildSelectionEvent(VerbLookupFailed, "lookup", input.LevelName, input)
}

func buildSelectionEvent(verb, objectType, objectID string, input SelectionEventInput) Event {
	metadata := cloneMap(input.Metadata)
	metadata = ensureMetadata(metadata)
	metadata["level"] = input.Level
	if input.LevelName != "" {
		metadata["level_name"] = input.LevelName
	}
	if input.EntityName != "" {
		metadata["entity_name"] = input.EntityName
	}
	if input.ParentID != "" {
		metadata["parent_id"] = input.ParentID
	}
	if input.Query != "" {
		metadata["query"] = input.Query
	}
	if len(input.Cascaded) > 0 {
		metadata["cascaded"] = append([]string{}, input.Cascaded...)
	}
	if input.Err != nil {
		metadata["error"] = input.Err.Error()
	}

	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.LevelName)
	}
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
