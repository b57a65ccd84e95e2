package params

import (
	"errors"
	"testing"
)

func TestWrapRuleErrorCreatesMetadata(t *testing.T) {
	base := errors.New("boom")
	err := wrapRuleError("expr", "value <= 0.6", "gated_param", base)

	var ruleErr *RuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleError, got %T", err)
	}
	if ruleErr.Engine != "expr" {
		t.Fatalf("expected engine expr, got %q", ruleErr.Engine)
	}
	if ruleErr.Expr != "value <= 0.6" {
		t.Fatalf("expected expression metadata, got %q", ruleErr.Expr)
	}
	if ruleErr.Param != "gated_param" {
		t.Fatalf("expected param metadata, got %q", ruleErr.Param)
	}
	if !errors.Is(ruleErr.Err, base) {
		t.Fatalf("wrapped error should unwrap to base error")
	}
}

func TestWrapRuleErrorAugmentsExisting(t *testing.T) {
	base := errors.New("compile failure")
	existing := &RuleError{
		Engine: "cel",
		Err:    base,
	}

	err := wrapRuleError("expr", "value <= 0.6", "gated_param", existing)
	if !errors.Is(err, base) {
		t.Fatalf("expected base error to unwrap")
	}
	if existing.Engine != "cel" {
		t.Fatalf("existing engine should not be overwritten, got %q", existing.Engine)
	}
	if existing.Expr != "value <= 0.6" {
		t.Fatalf("expression should be filled, got %q", existing.Expr)
	}
	if existing.Param != "gated_param" {
		t.Fatalf("param should be filled, got %q", existing.Param)
	}
}

func TestWrapRuleErrorNil(t *testing.T) {
	if err := wrapRuleError("expr", "value <= 0.6", "gated_param", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestRuleErrorFormatting(t *testing.T) {
	err := &RuleError{Engine: "expr", Expr: "value <= 0.6", Param: "gated_param", Err: errors.New("boom")}
	want := `params: expr rule expr="value <= 0.6" param=gated_param: boom`
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}

	noExpr := &RuleError{Engine: "cel", Param: "gated_param", Err: errors.New("boom")}
	want = "params: cel rule expr=<empty> param=gated_param: boom"
	if noExpr.Error() != want {
		t.Fatalf("Error() = %q, want %q", noExpr.Error(), want)
	}
}

func TestWrapEngineError(t *testing.T) {
	if err := wrapEngineError("expr", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	existing := &RuleError{Engine: "expr", Err: errors.New("boom")}
	if got, ok := wrapEngineError("cel", existing).(*RuleError); !ok || got != existing {
		t.Fatalf("existing rule error should pass through unchanged")
	}

	namespaced := errors.New("params: already namespaced")
	if got := wrapEngineError("expr", namespaced); got != namespaced {
		t.Fatalf("namespaced error should pass through, got %v", got)
	}

	plain := errors.New("plain failure")
	wrapped := wrapEngineError("js", plain)
	if wrapped.Error() != "params: js rule engine: plain failure" {
		t.Fatalf("wrapped error = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, plain) {
		t.Fatalf("wrapped error should unwrap to the original")
	}
}
