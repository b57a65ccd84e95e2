package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrNoEvaluator = errors.New("params: rule evaluator not configured")

// proposedValue is one concrete cell a revision wants to write: a full label
// assignment plus the coerced value.
type proposedValue struct {
	labels map[string]Scalar
	value  Scalar
}

// paramChange collects the cells a revision proposes for one parameter.
// replace marks the wholesale form (a bare value) that discards the existing
// record set before writing.
type paramChange struct {
	param   string
	replace bool
	values  []proposedValue
}

// indexedFlagChange is one "name-indexed" entry: flip the parameter's indexed
// flag starting at period.
type indexedFlagChange struct {
	param   string
	period  int
	indexed bool
}

// cellRef names a cell in report rows, e.g. "real_param[year=2004]".
func cellRef(param string, labels map[string]Scalar) string {
	if len(labels) == 0 {
		return param
	}
	return param + "[" + labelKey(labels) + "]"
}

// checkStatic applies a range or choice validator to a single value and
// returns the violation message, or "" when the value passes.
func checkStatic(v Validator, value Scalar) string {
	switch v.Op {
	case OpRange:
		if !value.IsNumeric() {
			return ""
		}
		if v.Min != nil && value.less(*v.Min) {
			return fmt.Sprintf("%s < min %s", value, v.Min)
		}
		if v.Max != nil && v.Max.less(value) {
			return fmt.Sprintf("%s > max %s", value, v.Max)
		}
	case OpChoice:
		for _, choice := range v.Choices {
			if choice.Equal(value) {
				return ""
			}
		}
		return fmt.Sprintf("%s not in choices %s", quoteScalar(value), choiceList(v.Choices))
	}
	return ""
}

func quoteScalar(value Scalar) string {
	if value.Kind() == KindString {
		return strconv.Quote(value.Text())
	}
	return value.String()
}

func choiceList(choices []Scalar) string {
	parts := make([]string, 0, len(choices))
	for _, choice := range choices {
		parts = append(parts, choice.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// checkPeriod applies the extension-axis label validator to a period value.
func (p *Parameters) checkPeriod(period int) string {
	axis := p.schema.operators.LabelToExtend
	if axis == "" {
		return ""
	}
	return checkLabelValue(p.schema.labelIndex[axis], Int(int64(period)))
}

type periodEntry struct {
	period int
	raw    any
}

// periodEntries normalizes the supported period-map shapes into a sorted
// entry list. The second result is false when raw is not a period map.
func periodEntries(raw any) ([]periodEntry, bool) {
	var out []periodEntry
	switch typed := raw.(type) {
	case map[int]any:
		for period, cell := range typed {
			out = append(out, periodEntry{period: period, raw: cell})
		}
	case map[string]any:
		for key, cell := range typed {
			period, ok := periodKey(key)
			if !ok {
				return nil, false
			}
			out = append(out, periodEntry{period: period, raw: cell})
		}
	case map[any]any:
		for key, cell := range typed {
			period, ok := periodKey(key)
			if !ok {
				return nil, false
			}
			out = append(out, periodEntry{period: period, raw: cell})
		}
	default:
		return nil, false
	}
	sort.Slice(out, func(i, j int) bool { return out[i].period < out[j].period })
	return out, true
}

func periodKey(raw any) (int, bool) {
	switch key := raw.(type) {
	case int:
		return key, true
	case int64:
		return int(key), true
	case json.Number:
		i, err := key.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(key)
		return i, err == nil
	default:
		return 0, false
	}
}

func isMapLike(raw any) bool {
	switch raw.(type) {
	case map[int]any, map[string]any, map[any]any:
		return true
	default:
		return false
	}
}

// normalizeRevision expands a revision into concrete per-parameter cell lists
// and indexed-flag changes, accumulating every shape and type violation into
// the report. Nothing is mutated.
func (p *Parameters) normalizeRevision(rev Revision) ([]paramChange, []indexedFlagChange, *ValidationReport) {
	report := newValidationReport()
	names := make([]string, 0, len(rev))
	for name := range rev {
		names = append(names, name)
	}
	sort.Strings(names)

	var changes []paramChange
	var flags []indexedFlagChange
	for _, key := range names {
		raw := rev[key]
		if base, isFlag := strings.CutSuffix(key, indexedSuffix); isFlag {
			p.normalizeFlag(key, base, raw, &flags, report)
			continue
		}
		spec, ok := p.schema.specs[key]
		if !ok {
			report.addError(key, "unknown parameter")
			continue
		}
		if change := p.normalizeParam(spec, raw, report); change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, flags, report
}

func (p *Parameters) normalizeFlag(key, base string, raw any, flags *[]indexedFlagChange, report *ValidationReport) {
	spec, ok := p.schema.specs[base]
	if !ok {
		report.addError(key, "unknown parameter")
		return
	}
	if !spec.Indexable {
		report.addError(key, "parameter is not indexable")
		return
	}
	entries, ok := periodEntries(raw)
	if !ok {
		report.addError(key, "indexed flag requires a period mapping")
		return
	}
	for _, entry := range entries {
		if msg := p.checkPeriod(entry.period); msg != "" {
			report.addError(key, fmt.Sprintf("period %s", msg))
			continue
		}
		flag, err := coerce(KindBool, entry.raw)
		if err != nil {
			report.addError(key, fmt.Sprintf("period %d: %v", entry.period, err))
			continue
		}
		*flags = append(*flags, indexedFlagChange{param: base, period: entry.period, indexed: flag.Bool()})
	}
}

func (p *Parameters) normalizeParam(spec *ParameterSpec, raw any, report *ValidationReport) *paramChange {
	axis := p.schema.operators.LabelToExtend

	if records, ok := raw.([]ValueRecord); ok {
		change := &paramChange{param: spec.Name}
		for _, record := range records {
			p.normalizeRecord(spec, record, change, report)
		}
		return change
	}
	if entries, ok := periodEntries(raw); ok {
		if axis == "" {
			report.addError(spec.Name, "document declares no extension label, periods not accepted")
			return nil
		}
		change := &paramChange{param: spec.Name}
		for _, entry := range entries {
			if msg := p.checkPeriod(entry.period); msg != "" {
				report.addError(spec.Name, fmt.Sprintf("period %s", msg))
				continue
			}
			base := map[string]Scalar{axis: Int(int64(entry.period))}
			p.expandCell(spec, base, 0, entry.raw, change, report)
		}
		return change
	}
	if isMapLike(raw) {
		report.addError(spec.Name, "periods must be integers")
		return nil
	}

	// A bare value replaces the parameter's whole record set, anchored at the
	// window start.
	change := &paramChange{param: spec.Name, replace: true}
	base := map[string]Scalar{}
	if axis != "" && p.window != nil {
		base[axis] = Int(int64(p.window.Start))
	}
	p.expandCell(spec, base, 0, raw, change, report)
	return change
}

func (p *Parameters) normalizeRecord(spec *ParameterSpec, record ValueRecord, change *paramChange, report *ValidationReport) {
	labels := make(map[string]Scalar, len(record.Labels))
	for key, raw := range record.Labels {
		label, declared := p.schema.labelIndex[key]
		if !declared {
			report.addError(spec.Name, fmt.Sprintf("undeclared label %q", key))
			return
		}
		value, err := coerce(label.Kind, raw)
		if err != nil {
			report.addError(spec.Name, fmt.Sprintf("label %s: %v", key, err))
			return
		}
		if msg := checkLabelValue(label, value); msg != "" {
			report.addError(spec.Name, fmt.Sprintf("label %s: %s", key, msg))
			return
		}
		labels[key] = value
	}
	value, err := coerce(spec.Kind, record.Value)
	if err != nil {
		report.addError(spec.Name, fmt.Sprintf("%s %v", cellRef(spec.Name, labels), err))
		return
	}
	change.values = append(change.values, proposedValue{labels: labels, value: value})
}

// expandCell recursively expands a revision cell into concrete values. Lists
// bind positionally to the label at the current depth and must cover its
// domain exactly; scalars broadcast across every remaining label combination.
func (p *Parameters) expandCell(spec *ParameterSpec, labels map[string]Scalar, depth int, raw any, change *paramChange, report *ValidationReport) {
	if items, isList := raw.([]any); isList {
		if depth >= len(spec.labels) {
			if len(spec.labels) == 0 {
				report.addError(spec.Name, fmt.Sprintf("%s got a list for a scalar parameter", cellRef(spec.Name, labels)))
			} else {
				report.addError(spec.Name, fmt.Sprintf("%s list nests deeper than the parameter's labels", cellRef(spec.Name, labels)))
			}
			return
		}
		name := spec.labels[depth]
		label := p.schema.labelIndex[name]
		domain, ok := label.Domain()
		if !ok {
			report.addError(spec.Name, fmt.Sprintf("label %s has no finite domain", name))
			return
		}
		if len(items) != len(domain) {
			report.addError(spec.Name, fmt.Sprintf("%s expected %d values for label %s, got %d",
				cellRef(spec.Name, labels), len(domain), name, len(items)))
			return
		}
		for i, item := range items {
			next := cloneLabels(labels)
			next[name] = domain[i]
			p.expandCell(spec, next, depth+1, item, change, report)
		}
		return
	}
	if depth < len(spec.labels) {
		name := spec.labels[depth]
		domain, ok := p.schema.labelIndex[name].Domain()
		if !ok {
			report.addError(spec.Name, fmt.Sprintf("label %s has no finite domain", name))
			return
		}
		for _, dv := range domain {
			next := cloneLabels(labels)
			next[name] = dv
			p.expandCell(spec, next, depth+1, raw, change, report)
		}
		return
	}
	value, err := coerce(spec.Kind, raw)
	if err != nil {
		report.addError(spec.Name, fmt.Sprintf("%s %v", cellRef(spec.Name, labels), err))
		return
	}
	change.values = append(change.values, proposedValue{labels: labels, value: value})
}

// validateChanges runs every declared validator over the proposed cells.
// Error-level violations and rule failures land in report.Errors, warn-level
// ones in report.Warnings.
func (p *Parameters) validateChanges(changes []paramChange, report *ValidationReport) {
	for _, change := range changes {
		spec := p.schema.specs[change.param]
		for _, pv := range change.values {
			for _, v := range spec.Validators {
				switch v.Op {
				case OpRange, OpChoice:
					msg := checkStatic(v, pv.value)
					if msg == "" {
						continue
					}
					row := fmt.Sprintf("%s %s", cellRef(change.param, pv.labels), msg)
					if v.Warns() {
						report.addWarning(change.param, row)
					} else {
						report.addError(change.param, row)
					}
				case OpRule:
					p.applyRule(spec, v, pv, report)
				}
			}
		}
	}
}

func (p *Parameters) applyRule(spec *ParameterSpec, v Validator, pv proposedValue, report *ValidationReport) {
	result, err := p.evaluateRule(v, spec.Name, pv)
	if err != nil {
		report.addError(spec.Name, fmt.Sprintf("%s %v", cellRef(spec.Name, pv.labels), err))
		return
	}
	pass, ok := result.(bool)
	if !ok {
		report.addError(spec.Name, fmt.Sprintf("%s rule %q returned %T, want bool", cellRef(spec.Name, pv.labels), v.Expr, result))
		return
	}
	if pass {
		return
	}
	row := fmt.Sprintf("%s rule %q failed", cellRef(spec.Name, pv.labels), v.Expr)
	if v.Warns() {
		report.addWarning(spec.Name, row)
	} else {
		report.addError(spec.Name, row)
	}
}

// evaluateRule executes one rule expression through the engine the validator
// names, timing the evaluation and notifying the rule logger.
func (p *Parameters) evaluateRule(v Validator, param string, pv proposedValue) (any, error) {
	evaluator, err := p.engineFor(v.Engine)
	if err != nil {
		return nil, err
	}
	period := 0
	if axis := p.schema.operators.LabelToExtend; axis != "" {
		if axisValue, ok := pv.labels[axis]; ok {
			period = int(axisValue.Int())
		}
	}
	ctx := RuleContext{
		Param:  param,
		Period: period,
		Labels: cloneLabels(pv.labels),
		Value:  pv.value.Interface(),
	}.withDefaultNow().withDefaultMaps()
	engine := engineName(evaluator)
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, v.Expr)
	duration := time.Since(start)
	evalErr = wrapRuleError(engine, v.Expr, param, evalErr)
	p.ruleLogger().LogRule(RuleLogEvent{
		Engine:   engine,
		Expr:     v.Expr,
		Param:    param,
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

// engineFor resolves the evaluator for a validator's declared engine. The
// empty name means the configured (or default) evaluator.
func (p *Parameters) engineFor(name string) (Evaluator, error) {
	if name == "" {
		return p.resolveEvaluator()
	}
	if e, ok := p.engines[name]; ok {
		return e, nil
	}
	var e Evaluator
	switch name {
	case "expr":
		e = NewExprEvaluator(p.exprEngineOptions()...)
	case "cel":
		e = NewCELEvaluator(p.celEngineOptions()...)
	case "js":
		e = NewJSEvaluator(p.jsEngineOptions()...)
	default:
		return nil, fmt.Errorf("params: unknown rule engine %q", name)
	}
	if e == nil {
		return nil, fmt.Errorf("params: %s rule engine unavailable", name)
	}
	if p.engines == nil {
		p.engines = map[string]Evaluator{}
	}
	p.engines[name] = e
	return e, nil
}

func (p *Parameters) resolveEvaluator() (Evaluator, error) {
	if p.cfg.evaluator != nil {
		return p.cfg.evaluator, nil
	}
	defaultEvaluator := NewExprEvaluator(p.exprEngineOptions()...)
	if defaultEvaluator == nil {
		return nil, ErrNoEvaluator
	}
	p.cfg.evaluator = defaultEvaluator
	return defaultEvaluator, nil
}

func (p *Parameters) exprEngineOptions() []ExprEvaluatorOption {
	var opts []ExprEvaluatorOption
	if p.cfg.programCache != nil {
		opts = append(opts, ExprWithProgramCache(p.cfg.programCache))
	}
	if p.cfg.functions != nil {
		opts = append(opts, ExprWithFunctionRegistry(p.cfg.functions))
	}
	return opts
}

func (p *Parameters) celEngineOptions() []CELEvaluatorOption {
	var opts []CELEvaluatorOption
	if p.cfg.programCache != nil {
		opts = append(opts, CELWithProgramCache(p.cfg.programCache))
	}
	if p.cfg.functions != nil {
		opts = append(opts, CELWithFunctionRegistry(p.cfg.functions))
	}
	return opts
}

func (p *Parameters) jsEngineOptions() []JSEvaluatorOption {
	var opts []JSEvaluatorOption
	if p.cfg.programCache != nil {
		opts = append(opts, JSWithProgramCache(p.cfg.programCache))
	}
	if p.cfg.functions != nil {
		opts = append(opts, JSWithFunctionRegistry(p.cfg.functions))
	}
	return opts
}

func (p *Parameters) ruleLogger() RuleLogger {
	if p.cfg.logger != nil {
		return p.cfg.logger
	}
	return noopRuleLogger{}
}

func engineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	// jsEvaluator only compiles under the js_eval tag, so match on the
	// printed type rather than a type switch.
	switch fmt.Sprintf("%T", e) {
	case "*params.exprEvaluator":
		return "expr"
	case "*params.celEvaluator":
		return "cel"
	case "*params.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}
