package params

import (
	"fmt"
	"strings"
	"sync"

	"github.com/policysim/go-params/internal/hydrate"
)

// Parameters is a policy parameter engine over one defaults document. It owns
// per-parameter record sets, the temporal window, the growth-rate series, and
// the dense projection cache. Every operation validates against the
// document's schema and either applies atomically or leaves state untouched.
// Reads may run concurrently; callers serialize mutating calls.
type Parameters struct {
	mu  sync.RWMutex
	cfg engineConfig

	schema   *Schema
	doc      *hydrate.Document
	defaults map[string][]ValueRecord
	states   map[string]*parameterState

	window     *TemporalWindow
	inflation  RateSeries
	wageGrowth RateSeries

	report       *ValidationReport
	arrays       map[string]*Dense
	engines      map[string]Evaluator
	lastRevision string
}

// New parses a defaults document and builds an engine over it. The document
// may be JSON or YAML; its schema block declares the labels, operators, and
// parameter specs everything else is checked against. A malformed document
// fails with a SchemaError, a malformed option with an ArgumentError.
func New(document []byte, opts ...Option) (*Parameters, error) {
	cfg := applyOptions(opts)
	doc, err := hydrate.ParseDocument(document)
	if err != nil {
		return nil, schemaErrorf("document", "%v", err)
	}
	schema, defaults, err := parseDocument(doc)
	if err != nil {
		return nil, err
	}
	if cfg.labelToExtend != nil {
		// The override can disable extension or restate the document's own
		// axis; it cannot invent a different one.
		if override := *cfg.labelToExtend; override != "" && override != schema.operators.LabelToExtend {
			return nil, argumentErrorf("labelToExtend", "label %q is not the document's extension label %q", override, schema.operators.LabelToExtend)
		}
	}
	p := &Parameters{
		cfg:        cfg,
		schema:     schema,
		doc:        doc,
		defaults:   defaults,
		states:     make(map[string]*parameterState, len(defaults)),
		inflation:  cfg.inflation.clone(),
		wageGrowth: cfg.wageGrowth.clone(),
		arrays:     map[string]*Dense{},
		engines:    map[string]Evaluator{},
	}
	axis := schema.operators.LabelToExtend
	for _, name := range schema.Names() {
		st := &parameterState{spec: schema.specs[name]}
		for _, record := range defaults[name] {
			st.records = append(st.records, record.clone())
		}
		st.sort(schema, axis)
		p.states[name] = st
	}
	return p, nil
}

// Initialize opens the temporal window [startPeriod, startPeriod+numPeriods-1]
// and anchors the record sets to it: records without an extension-axis value
// are pinned to the start period, and when automatic extension is active every
// parameter is extended through the window. Calling Initialize twice fails
// with ErrAlreadyInitialized.
func (p *Parameters) Initialize(startPeriod, numPeriods int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.window != nil {
		return ErrAlreadyInitialized
	}
	if numPeriods < 1 {
		return argumentErrorf("numPeriods", "need at least one period, got %d", numPeriods)
	}
	p.window = &TemporalWindow{Start: startPeriod, Current: startPeriod, End: startPeriod + numPeriods - 1}

	next := make(map[string]*parameterState, len(p.states))
	for name, st := range p.states {
		next[name] = st.clone()
	}
	axis := p.schema.operators.LabelToExtend
	if axis != "" {
		start := Int(int64(startPeriod))
		for _, st := range next {
			for i := range st.records {
				if _, ok := st.records[i].Period(axis); !ok {
					st.records[i].Labels[axis] = start
				}
			}
		}
	}
	if p.autoExtend() {
		periods := p.window.Periods()
		for _, name := range p.schema.Names() {
			if err := p.extendParam(next[name], axis, periods, ""); err != nil {
				p.window = nil
				return err
			}
		}
	}
	for _, name := range p.schema.Names() {
		next[name].sort(p.schema, axis)
	}
	p.states = next
	if err := p.rebuildArrays(); err != nil {
		return err
	}
	return nil
}

// StartYear returns the first period of the window, zero before Initialize.
func (p *Parameters) StartYear() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.window == nil {
		return 0
	}
	return p.window.Start
}

// CurrentYear returns the window cursor, zero before Initialize.
func (p *Parameters) CurrentYear() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.window == nil {
		return 0
	}
	return p.window.Current
}

// EndYear returns the last period of the window, zero before Initialize.
func (p *Parameters) EndYear() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.window == nil {
		return 0
	}
	return p.window.End
}

// NumYears returns the number of periods the window covers, zero before
// Initialize.
func (p *Parameters) NumYears() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.window == nil {
		return 0
	}
	return p.window.NumPeriods()
}

// Value returns the scalar value of an unlabeled parameter at a period.
// Parameters that vary by label have no single value per period; project them
// with ToArray instead.
func (p *Parameters) Value(name string, period int) (Scalar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.window == nil {
		return Scalar{}, ErrNotInitialized
	}
	st, ok := p.states[name]
	if !ok {
		return Scalar{}, argumentErrorf("name", "unknown parameter %q", name)
	}
	if len(st.spec.labels) > 0 {
		return Scalar{}, argumentErrorf("name", "parameter %q varies by %s, project it with ToArray", name, strings.Join(st.spec.labels, ", "))
	}
	axis := p.schema.operators.LabelToExtend
	if axis == "" {
		for _, record := range st.records {
			if len(record.Labels) == 0 {
				return record.Value, nil
			}
		}
		return Scalar{}, validationErrorf(name, "no value")
	}
	if records := st.at(axis, period); len(records) > 0 {
		return records[0].Value, nil
	}
	return Scalar{}, validationErrorf(name, "no value at period %d", period)
}

// SortValues re-sorts every parameter's records into canonical order: axis
// value ascending, then each declared label by its domain position.
func (p *Parameters) SortValues() {
	p.mu.Lock()
	defer p.mu.Unlock()
	axis := p.schema.operators.LabelToExtend
	for _, st := range p.states {
		st.sort(p.schema, axis)
	}
}

// Specification serializes the engine's current values back into document
// form. With metaData each parameter carries its full spec block (title,
// description, type, validators, flags) plus a schema section, so the result
// parses as a defaults document; without it each parameter maps to its bare
// record list. Provenance markers are not included.
func (p *Parameters) Specification(metaData bool) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := map[string]any{}
	if metaData {
		out[schemaSection] = p.schemaDocument()
	}
	for _, name := range p.schema.Names() {
		st := p.states[name]
		values := make([]any, 0, len(st.records))
		for _, record := range st.records {
			values = append(values, recordDocument(record))
		}
		if !metaData {
			out[name] = values
			continue
		}
		spec := st.spec
		block := map[string]any{
			"title":       spec.Title,
			"description": spec.Description,
			"type":        spec.Kind.String(),
			"value":       values,
		}
		if len(spec.Validators) > 0 {
			block["validators"] = validatorsDocument(spec.Validators)
		}
		if spec.Indexable {
			block["indexable"] = true
		}
		if spec.Indexed {
			block["indexed"] = true
		}
		for key, value := range spec.Members {
			block[key] = value.Interface()
		}
		out[name] = block
	}
	return out, nil
}

func (p *Parameters) schemaDocument() map[string]any {
	labels := map[string]any{}
	for _, label := range p.schema.labels {
		block := map[string]any{"type": label.Kind.String()}
		if label.Validator != nil {
			block["validators"] = validatorsDocument([]Validator{*label.Validator})
		}
		labels[label.Name] = block
	}
	doc := map[string]any{
		"labels": labels,
		"operators": map[string]any{
			"array_first":     p.schema.operators.ArrayFirst,
			"label_to_extend": p.schema.operators.LabelToExtend,
		},
	}
	if len(p.schema.members) > 0 {
		members := map[string]any{}
		for name, kind := range p.schema.members {
			members[name] = map[string]any{"type": kind.String()}
		}
		doc["additional_members"] = members
	}
	return doc
}

func recordDocument(record ValueRecord) any {
	if len(record.Labels) == 0 {
		return map[string]any{"value": record.Value.Interface()}
	}
	out := make(map[string]any, len(record.Labels)+1)
	for name, value := range record.Labels {
		out[name] = value.Interface()
	}
	out["value"] = record.Value.Interface()
	return out
}

func validatorsDocument(validators []Validator) map[string]any {
	out := map[string]any{}
	for _, v := range validators {
		switch v.Op {
		case OpRange:
			body := map[string]any{}
			if v.Min != nil {
				body["min"] = v.Min.Interface()
			}
			if v.Max != nil {
				body["max"] = v.Max.Interface()
			}
			if v.Warns() {
				body["level"] = LevelWarn
			}
			out["range"] = body
		case OpChoice:
			choices := make([]any, 0, len(v.Choices))
			for _, choice := range v.Choices {
				choices = append(choices, choice.Interface())
			}
			body := map[string]any{"choices": choices}
			if v.Warns() {
				body["level"] = LevelWarn
			}
			out["choice"] = body
		case OpRule:
			body := map[string]any{"expr": v.Expr}
			if v.Engine != "" {
				body["engine"] = v.Engine
			}
			if v.Warns() {
				body["level"] = LevelWarn
			}
			out["rule"] = body
		}
	}
	return out
}

// CheckCompleteness verifies that every indexed parameter carries an explicit
// (non-extended) value for each period from the window start through
// lastKnown. Parameters named by WithCompletenessExclusions are skipped.
// Violations are reported together as one ValidationError.
func (p *Parameters) CheckCompleteness(lastKnown int) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.window == nil {
		return ErrNotInitialized
	}
	if !p.window.Contains(lastKnown) {
		return argumentErrorf("lastKnown", "period %d outside window [%d, %d]", lastKnown, p.window.Start, p.window.End)
	}
	axis := p.schema.operators.LabelToExtend
	if axis == "" {
		return nil
	}
	report := newValidationReport()
	for _, name := range p.schema.Names() {
		st := p.states[name]
		if !st.spec.Indexed {
			continue
		}
		if _, skip := p.cfg.skipComplete[name]; skip {
			continue
		}
		known := map[int]bool{}
		for _, period := range st.periods(axis, true) {
			known[period] = true
		}
		for period := p.window.Start; period <= lastKnown; period++ {
			if !known[period] {
				report.addError(name, fmt.Sprintf("no explicit value at period %d", period))
			}
		}
	}
	if report.HasErrors() {
		return newValidationError(report)
	}
	return nil
}

// Schema returns the parsed document schema. It is fixed once New returns;
// indexed-flag revisions change per-parameter state, not the schema.
func (p *Parameters) Schema() *Schema {
	return p.schema
}

// LastRevisionID returns the identifier stamped on the records written by the
// most recent applied update, empty when none has been applied.
func (p *Parameters) LastRevisionID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRevision
}

func (p *Parameters) arrayFirst() bool {
	if p.cfg.arrayFirst != nil {
		return *p.cfg.arrayFirst
	}
	return p.schema.operators.ArrayFirst
}

// autoExtend reports whether writes re-extend values through the window. It
// requires a declared extension label and is switched off by
// WithLabelToExtend("").
func (p *Parameters) autoExtend() bool {
	if p.schema.operators.LabelToExtend == "" {
		return false
	}
	if p.cfg.labelToExtend != nil && *p.cfg.labelToExtend == "" {
		return false
	}
	return true
}

func (p *Parameters) invalidateArrays(names ...string) {
	if len(names) == 0 {
		p.arrays = map[string]*Dense{}
		return
	}
	for _, name := range names {
		delete(p.arrays, name)
	}
}

// rebuildArrays refreshes the projection cache. Only array-first engines keep
// the cache warm; sparse engines project on demand.
func (p *Parameters) rebuildArrays(names ...string) error {
	if !p.arrayFirst() || p.window == nil {
		return nil
	}
	if len(names) == 0 {
		names = p.schema.Names()
	}
	for _, name := range names {
		grid, err := p.toArray(name, nil)
		if err != nil {
			return err
		}
		p.arrays[name] = grid
	}
	return nil
}
