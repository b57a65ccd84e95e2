package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizeEventTrimsClonesAndDefaults(t *testing.T) {
	meta := map[string]any{"k": "v"}
	evt := Event{
		Verb:       " params.updated ",
		ObjectType: " params ",
		ObjectID:   " 42 ",
		Channel:    " params ",
		Metadata:   meta,
	}

	got := NormalizeEvent(evt)

	if got.Verb != "params.updated" || got.ObjectType != "params" || got.ObjectID != "42" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.Channel != "params" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	if got.Metadata["k"] != "v" {
		t.Fatalf("expected metadata value preserved: %+v", got.Metadata)
	}
	got.Metadata["k"] = "changed"
	if evt.Metadata["k"] != "v" {
		t.Fatalf("expected original metadata untouched: %+v", evt.Metadata)
	}
}

func TestHooksNotifyShortCircuitsMissingRequired(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}
	if err := hooks.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events()) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events()))
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	errBoom1 := errors.New("boom1")
	errBoom2 := errors.New("boom2")
	capture := &CaptureHook{}
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, event Event) error {
			if ctx != nil {
				ctxSeen = true
			}
			return nil
		}),
		capture,
		HookFunc(func(_ context.Context, _ Event) error { return errBoom1 }),
		nil,
		HookFunc(func(_ context.Context, _ Event) error { return errBoom2 }),
	}

	err := hooks.Notify(nil, Event{Verb: "params.updated", ObjectType: "params", ObjectID: "1"})
	if err == nil || !errors.Is(err, errBoom1) || !errors.Is(err, errBoom2) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	if len(capture.Events()) != 1 {
		t.Fatalf("expected event to be captured once, got %d", len(capture.Events()))
	}
}

func TestEmitterDisabledAndEnabled(t *testing.T) {
	capture := &CaptureHook{}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.Emit(context.Background(), Event{Verb: "params.updated", ObjectType: "params", ObjectID: "1"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events()) != 0 {
		t.Fatalf("expected no events captured when disabled")
	}

	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: ""})
	if !enabled.Enabled() {
		t.Fatalf("expected emitter to be enabled")
	}
	if err := enabled.Emit(context.Background(), Event{Verb: "params.updated", ObjectType: "params", ObjectID: "1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := capture.Events()
	if len(got) != 1 {
		t.Fatalf("expected one event captured, got %d", len(got))
	}
	if got[0].Channel != "params" {
		t.Fatalf("expected default channel applied, got %q", got[0].Channel)
	}
}

func TestEmitterPreservesExplicitChannel(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "default"})

	err := emitter.Emit(context.Background(), Event{
		Verb:       "params.updated",
		ObjectType: "params",
		ObjectID:   "1",
		Channel:    "custom",
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := capture.Events()
	if got[0].Channel != "custom" {
		t.Fatalf("expected explicit channel preserved, got %q", got[0].Channel)
	}
	if got[0].OccurredAt != time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("expected occurred_at preserved, got %v", got[0].OccurredAt)
	}
}

func TestCaptureHookCopiesAndResets(t *testing.T) {
	capture := &CaptureHook{}
	if err := capture.Notify(context.Background(), Event{Verb: "params.updated", ObjectType: "params", ObjectID: "1"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	first := capture.Events()
	first[0].Verb = "mutated"
	if capture.Events()[0].Verb != "params.updated" {
		t.Fatalf("expected recorded event untouched, got %q", capture.Events()[0].Verb)
	}
	capture.Reset()
	if len(capture.Events()) != 0 {
		t.Fatalf("expected reset to discard events")
	}
}
