package activity

import (
	"testing"
	"time"
)

func TestBuildParamsUpdatedEventCarriesRevisionMetadata(t *testing.T) {
	input := EngineEventInput{
		Params:     []string{"real_param", "str_param"},
		RevisionID: "rev-123",
		Metadata:   map[string]any{"custom": "value"},
		OccurredAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	evt := BuildParamsUpdatedEvent(input)

	if evt.Verb != "params.updated" || evt.ObjectType != "params" {
		t.Fatalf("unexpected event identity: %+v", evt)
	}
	if evt.ObjectID != "rev-123" {
		t.Fatalf("expected object id to fall back to revision id, got %q", evt.ObjectID)
	}
	params, ok := evt.Metadata["params"].([]string)
	if !ok || len(params) != 2 || params[0] != "real_param" {
		t.Fatalf("expected params metadata, got %+v", evt.Metadata)
	}
	if evt.Metadata["revision_id"] != "rev-123" {
		t.Fatalf("expected revision metadata, got %+v", evt.Metadata)
	}
	if evt.Metadata["custom"] != "value" {
		t.Fatalf("expected caller metadata preserved, got %+v", evt.Metadata)
	}
	if !evt.OccurredAt.Equal(input.OccurredAt) {
		t.Fatalf("expected occurred_at preserved, got %v", evt.OccurredAt)
	}
}

func TestBuildParamsExtendedEventCarriesAxisMetadata(t *testing.T) {
	evt := BuildParamsExtendedEvent(EngineEventInput{
		Params:  []string{"one_dim"},
		Label:   "year",
		Periods: []int{2021, 2022},
	})

	if evt.Verb != "params.extended" {
		t.Fatalf("unexpected verb %q", evt.Verb)
	}
	if evt.ObjectID != "params" {
		t.Fatalf("expected object id fallback to object type, got %q", evt.ObjectID)
	}
	if evt.Metadata["label"] != "year" {
		t.Fatalf("expected label metadata, got %+v", evt.Metadata)
	}
	periods, ok := evt.Metadata["periods"].([]int)
	if !ok || len(periods) != 2 || periods[1] != 2022 {
		t.Fatalf("expected periods metadata, got %+v", evt.Metadata)
	}
}

func TestBuildYearAdvancedEventCarriesPeriod(t *testing.T) {
	evt := BuildYearAdvancedEvent(EngineEventInput{Period: 2024})

	if evt.Verb != "params.year_advanced" || evt.ObjectType != "params.window" {
		t.Fatalf("unexpected event identity: %+v", evt)
	}
	if evt.Metadata["period"] != 2024 {
		t.Fatalf("expected period metadata, got %+v", evt.Metadata)
	}
}

func TestBuildEngineEventDoesNotMutateCallerMetadata(t *testing.T) {
	meta := map[string]any{"custom": "value"}
	_ = BuildParamsUpdatedEvent(EngineEventInput{Metadata: meta, RevisionID: "rev"})
	if len(meta) != 1 {
		t.Fatalf("expected caller metadata untouched, got %+v", meta)
	}
}
