package activity

import (
	"strings"
	"time"
)

// EngineEventInput describes the common fields for engine lifecycle events.
type EngineEventInput struct {
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	Params     []string
	RevisionID string
	Label      string
	Periods    []int
	Period     int
	OccurredAt time.Time
}

// BuildParamsUpdatedEvent constructs a normalized activity event for an
// applied revision.
func BuildParamsUpdatedEvent(input EngineEventInput) Event {
	return buildEngineEvent("params.updated", "params", input)
}

// BuildParamsExtendedEvent constructs a normalized activity event for an
// extension pass.
func BuildParamsExtendedEvent(input EngineEventInput) Event {
	return buildEngineEvent("params.extended", "params", input)
}

// BuildYearAdvancedEvent constructs a normalized activity event for a window
// cursor move.
func BuildYearAdvancedEvent(input EngineEventInput) Event {
	return buildEngineEvent("params.year_advanced", "params.window", input)
}

func buildEngineEvent(verb, objectType string, input EngineEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if len(input.Params) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["params"] = append([]string{}, input.Params...)
	}
	if input.RevisionID != "" {
		metadata = ensureMetadata(metadata)
		metadata["revision_id"] = input.RevisionID
	}
	if input.Label != "" {
		metadata = ensureMetadata(metadata)
		metadata["label"] = input.Label
	}
	if len(input.Periods) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["periods"] = append([]int{}, input.Periods...)
	}
	if input.Period != 0 {
		metadata = ensureMetadata(metadata)
		metadata["period"] = input.Period
	}

	objectID := strings.TrimSpace(input.ObjectID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.RevisionID)
	}
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
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
