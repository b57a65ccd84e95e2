package params

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

const ruleDefaults = `{
	"schema": {
		"labels": {
			"year": {"type": "int", "validators": {"range": {"min": 2001, "max": 2010}}}
		},
		"operators": {"label_to_extend": "year"}
	},
	"gated_param": {
		"type": "float",
		"value": 0.1,
		"validators": {"rule": {"expr": "value <= 0.6 || period >= 2005"}}
	}
}`

func newRuleEngine(t *testing.T, doc string, opts ...Option) *Parameters {
	t.Helper()
	p, err := New([]byte(doc), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Initialize(2001, 10); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p
}

func TestRuleValidatorGatesRevisions(t *testing.T) {
	cases := []struct {
		name    string
		period  int
		value   float64
		wantRow string
	}{
		{name: "value under the cap", period: 2003, value: 0.5},
		{name: "late periods are exempt", period: 2006, value: 0.9},
		{
			name:    "early excess fails",
			period:  2003,
			value:   0.9,
			wantRow: `gated_param[year=2003] rule "value <= 0.6 || period >= 2005" failed`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newRuleEngine(t, ruleDefaults)
			err := p.Adjust(Revision{"gated_param": map[int]any{tc.period: tc.value}})
			if tc.wantRow == "" {
				if err != nil {
					t.Fatalf("Adjust: %v", err)
				}
				if got := valueAt(t, p, "gated_param", tc.period); !closeEnough(got.Float(), tc.value) {
					t.Fatalf("gated_param@%d = %v, want %v", tc.period, got, tc.value)
				}
				return
			}
			wantErrorRow(t, err, "gated_param", tc.wantRow)
			if got := valueAt(t, p, "gated_param", tc.period); !closeEnough(got.Float(), 0.1) {
				t.Fatalf("rejected revision changed the value: %v", got)
			}
		})
	}
}

const engineDefaults = `{
	"schema": {
		"labels": {
			"year": {"type": "int", "validators": {"range": {"min": 2001, "max": 2010}}}
		},
		"operators": {"label_to_extend": "year"}
	},
	"expr_gate": {
		"type": "float",
		"value": 0.1,
		"validators": {"rule": {"expr": "value <= 0.6 || period >= 2005", "engine": "expr"}}
	},
	"cel_gate": {
		"type": "float",
		"value": 0.1,
		"validators": {"rule": {"expr": "value <= 0.6 || period >= 2005", "engine": "cel"}}
	}
}`

func TestRuleEnginesExprAndCEL(t *testing.T) {
	p := newRuleEngine(t, engineDefaults)
	err := p.Update(Revision{
		"expr_gate": map[int]any{2003: 0.9},
		"cel_gate":  map[int]any{2003: 0.9},
	}, false, true)
	wantErrorRow(t, err, "expr_gate", `expr_gate[year=2003] rule "value <= 0.6 || period >= 2005" failed`)
	wantErrorRow(t, err, "cel_gate", `cel_gate[year=2003] rule "value <= 0.6 || period >= 2005" failed`)

	if err := p.Adjust(Revision{
		"expr_gate": map[int]any{2003: 0.4},
		"cel_gate":  map[int]any{2006: 0.9},
	}); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if got := valueAt(t, p, "cel_gate", 2006); !closeEnough(got.Float(), 0.9) {
		t.Fatalf("cel_gate@2006 = %v, want 0.9", got)
	}
}

const arithmeticRuleDefaults = `{
	"schema": {
		"labels": {
			"year": {"type": "int", "validators": {"range": {"min": 2001, "max": 2010}}}
		},
		"operators": {"label_to_extend": "year"}
	},
	"scaled_param": {
		"type": "float",
		"value": 0.1,
		"validators": {"rule": {"expr": "value * 2.0"}}
	}
}`

func TestRuleNonBooleanResultRejected(t *testing.T) {
	p := newRuleEngine(t, arithmeticRuleDefaults)
	err := p.Adjust(Revision{"scaled_param": map[int]any{2003: 0.9}})
	wantErrorRow(t, err, "scaled_param", `scaled_param[year=2003] rule "value * 2.0" returned float64, want bool`)
}

const customFnDefaults = `{
	"schema": {
		"labels": {
			"year": {"type": "int", "validators": {"range": {"min": 2001, "max": 2010}}}
		},
		"operators": {"label_to_extend": "year"}
	},
	"capped_param": {
		"type": "float",
		"value": 0.1,
		"validators": {"rule": {"expr": "withincap(value, 0.6)"}}
	},
	"called_param": {
		"type": "float",
		"value": 0.1,
		"validators": {"rule": {"expr": "call(\"withincap\", value, 0.6)"}}
	}
}`

func withinCap(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("withincap wants 2 args, got %d", len(args))
	}
	value, ok := args[0].(float64)
	limit, okLimit := args[1].(float64)
	if !ok || !okLimit {
		return nil, fmt.Errorf("withincap wants float args")
	}
	return value <= limit, nil
}

func TestCustomFunctionsInRules(t *testing.T) {
	t.Run("registered individually", func(t *testing.T) {
		p := newRuleEngine(t, customFnDefaults, WithCustomFunction("withincap", withinCap))
		if err := p.Adjust(Revision{"capped_param": map[int]any{2003: 0.5}}); err != nil {
			t.Fatalf("Adjust: %v", err)
		}
		err := p.Adjust(Revision{"capped_param": map[int]any{2003: 0.9}})
		wantErrorRow(t, err, "capped_param", `capped_param[year=2003] rule "withincap(value, 0.6)" failed`)
	})

	t.Run("shared registry and call helper", func(t *testing.T) {
		registry := NewFunctionRegistry()
		if err := registry.Register("withincap", withinCap); err != nil {
			t.Fatalf("Register: %v", err)
		}
		p := newRuleEngine(t, customFnDefaults, WithFunctionRegistry(registry))
		if err := p.Adjust(Revision{"called_param": map[int]any{2003: 0.5}}); err != nil {
			t.Fatalf("Adjust: %v", err)
		}
		err := p.Adjust(Revision{"called_param": map[int]any{2003: 0.9}})
		wantErrorRow(t, err, "called_param", `called_param[year=2003] rule "call(\"withincap\", value, 0.6)" failed`)
	})
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	double := func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("double wants 1 arg")
		}
		v, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("double wants a float")
		}
		return v * 2, nil
	}
	if err := registry.Register("Double", double); err != nil {
		t.Fatalf("Register: %v", err)
	}

	t.Run("lookups are case-insensitive", func(t *testing.T) {
		got, err := registry.Call("double", 3.0)
		if err != nil || got != 6.0 {
			t.Fatalf("Call(double, 3) = %v, %v", got, err)
		}
		got, err = registry.Call("DOUBLE", 3.0)
		if err != nil || got != 6.0 {
			t.Fatalf("Call(DOUBLE, 3) = %v, %v", got, err)
		}
	})

	t.Run("rejects bad registrations", func(t *testing.T) {
		if err := registry.Register("DOUBLE", double); err == nil {
			t.Fatalf("Register accepted a duplicate name")
		}
		if err := registry.Register("", double); err == nil {
			t.Fatalf("Register accepted an empty name")
		}
		if err := registry.Register("nilfn", nil); err == nil {
			t.Fatalf("Register accepted a nil function")
		}
	})

	t.Run("unknown function", func(t *testing.T) {
		if _, err := registry.Call("missing"); err == nil {
			t.Fatalf("Call succeeded for an unregistered function")
		}
	})

	t.Run("clone is independent", func(t *testing.T) {
		clone := registry.Clone()
		if err := clone.Register("triple", double); err != nil {
			t.Fatalf("Register on clone: %v", err)
		}
		if names := registry.Names(); len(names) != 1 || names[0] != "double" {
			t.Fatalf("clone registration leaked into the original: %v", names)
		}
		if names := clone.Names(); len(names) != 2 || names[0] != "double" || names[1] != "triple" {
			t.Fatalf("clone names = %v", names)
		}
	})
}

func TestRuleLoggerObservesEvaluations(t *testing.T) {
	var events []RuleLogEvent
	p := newRuleEngine(t, ruleDefaults, WithRuleLogger(RuleLoggerFunc(func(e RuleLogEvent) {
		events = append(events, e)
	})))

	if err := p.Adjust(Revision{"gated_param": map[int]any{2003: 0.5}}); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("logged %d events, want 1", len(events))
	}
	e := events[0]
	if e.Engine != "expr" || e.Param != "gated_param" {
		t.Fatalf("event = %+v", e)
	}
	if e.Expr != "value <= 0.6 || period >= 2005" {
		t.Fatalf("event expr = %q", e.Expr)
	}
	if e.Err != nil {
		t.Fatalf("passing evaluation logged an error: %v", e.Err)
	}

	// A rule returning false is a validation outcome, not an engine error.
	_ = p.Adjust(Revision{"gated_param": map[int]any{2003: 0.9}})
	if len(events) != 2 || events[1].Err != nil {
		t.Fatalf("failed rule logged an engine error: %+v", events)
	}
}

const brokenRuleDefaults = `{
	"schema": {
		"labels": {
			"year": {"type": "int", "validators": {"range": {"min": 2001, "max": 2010}}}
		},
		"operators": {"label_to_extend": "year"}
	},
	"broken_param": {
		"type": "float",
		"value": 0.1,
		"validators": {"rule": {"expr": "value <<< 2"}}
	}
}`

func TestRuleEvaluationErrorsSurface(t *testing.T) {
	var events []RuleLogEvent
	p := newRuleEngine(t, brokenRuleDefaults, WithRuleLogger(RuleLoggerFunc(func(e RuleLogEvent) {
		events = append(events, e)
	})))
	err := p.Adjust(Revision{"broken_param": map[int]any{2003: 0.9}})
	wantErrorRow(t, err, "broken_param", `params: expr rule expr="value <<< 2" param=broken_param`)

	if len(events) != 1 || events[0].Err == nil {
		t.Fatalf("events = %+v, want one with an error", events)
	}
	var ruleErr *RuleError
	if !errors.As(events[0].Err, &ruleErr) {
		t.Fatalf("logged error is %T, want *RuleError", events[0].Err)
	}
	if ruleErr.Engine != "expr" || ruleErr.Param != "broken_param" {
		t.Fatalf("rule error = %+v", ruleErr)
	}
}

type recordingEvaluator struct {
	result any
	calls  []string
}

func (e *recordingEvaluator) Evaluate(ctx RuleContext, expr string) (any, error) {
	e.calls = append(e.calls, ctx.Param+": "+expr)
	return e.result, nil
}

func (e *recordingEvaluator) Compile(expr string, _ ...CompileOption) (CompiledRule, error) {
	return nil, fmt.Errorf("recordingEvaluator does not compile")
}

func TestCustomEvaluatorHandlesRules(t *testing.T) {
	eval := &recordingEvaluator{result: true}
	var events []RuleLogEvent
	p := newRuleEngine(t, ruleDefaults,
		WithRuleEvaluator(eval),
		WithRuleLogger(RuleLoggerFunc(func(e RuleLogEvent) { events = append(events, e) })))

	// The custom evaluator approves everything, including a value the builtin
	// expression would reject.
	if err := p.Adjust(Revision{"gated_param": map[int]any{2003: 0.9}}); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if got := valueAt(t, p, "gated_param", 2003); !closeEnough(got.Float(), 0.9) {
		t.Fatalf("gated_param@2003 = %v, want 0.9", got)
	}
	if len(eval.calls) != 1 || eval.calls[0] != "gated_param: value <= 0.6 || period >= 2005" {
		t.Fatalf("evaluator calls = %v", eval.calls)
	}
	if len(events) != 1 || events[0].Engine != "custom" {
		t.Fatalf("events = %+v, want one tagged custom", events)
	}
}

type countingCache struct {
	store map[string]any
	hits  int
	sets  int
}

func (c *countingCache) Get(key string) (any, bool) {
	v, ok := c.store[key]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *countingCache) Set(key string, value any) {
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.sets++
	c.store[key] = value
}

func TestProgramCacheReusesCompiledRules(t *testing.T) {
	cache := &countingCache{}
	p := newRuleEngine(t, ruleDefaults, WithProgramCache(cache))

	if err := p.Adjust(Revision{"gated_param": map[int]any{2003: 0.3}}); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if err := p.Adjust(Revision{"gated_param": map[int]any{2004: 0.4}}); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("compiled %d times, want 1", cache.sets)
	}
	if cache.hits != 1 {
		t.Fatalf("cache hits = %d, want 1", cache.hits)
	}
}

const advisoryRuleDefaults = `{
	"schema": {
		"labels": {
			"year": {"type": "int", "validators": {"range": {"min": 2001, "max": 2010}}}
		},
		"operators": {"label_to_extend": "year"}
	},
	"soft_gate": {
		"type": "float",
		"value": 0.1,
		"validators": {"rule": {"expr": "value <= 0.6", "level": "warn"}}
	}
}`

func TestWarnLevelRulesAreAdvisory(t *testing.T) {
	var out bytes.Buffer
	p := newRuleEngine(t, advisoryRuleDefaults, WithWarnWriter(&out))
	if err := p.Update(Revision{"soft_gate": map[int]any{2003: 0.9}}, true, true); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rows := p.Warnings()["soft_gate"]
	if len(rows) != 1 || rows[0] != `soft_gate[year=2003] rule "value <= 0.6" failed` {
		t.Fatalf("warnings = %v", rows)
	}
	if got := valueAt(t, p, "soft_gate", 2003); !closeEnough(got.Float(), 0.9) {
		t.Fatalf("advisory rule blocked the value: %v", got)
	}
	if !bytes.Contains(out.Bytes(), []byte("WARNING:")) {
		t.Fatalf("warn writer got %q", out.String())
	}
}
