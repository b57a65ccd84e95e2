package params

import (
	"sort"
	"strings"

	"github.com/policysim/go-params/internal/hydrate"
)

// ValidatorOp identifies one of the closed set of rule variants a document
// may declare.
type ValidatorOp int

const (
	OpRange ValidatorOp = iota
	OpChoice
	OpRule
)

func (op ValidatorOp) String() string {
	switch op {
	case OpRange:
		return "range"
	case OpChoice:
		return "choice"
	case OpRule:
		return "rule"
	default:
		return "unknown"
	}
}

// Validator levels. Error-level violations block application, warn-level
// violations are collected as advisories and never block.
const (
	LevelError = "error"
	LevelWarn  = "warn"
)

// Validator is one declared rule applied to proposed values.
type Validator struct {
	Op      ValidatorOp
	Min     *Scalar
	Max     *Scalar
	Choices []Scalar
	Expr    string
	Engine  string
	Level   string
}

// Warns reports whether the validator demotes violations to warnings.
func (v Validator) Warns() bool {
	return v.Level == LevelWarn
}

// LabelSpec describes one label axis: its value type, optional validator, and
// position in the declared ordering.
type LabelSpec struct {
	Name      string
	Kind      Kind
	Validator *Validator
}

// Domain returns the ordered set of values the label may take, when finite.
// Choice validators enumerate their choices in declared order; integer range
// validators enumerate min through max.
func (l *LabelSpec) Domain() ([]Scalar, bool) {
	if l == nil || l.Validator == nil {
		return nil, false
	}
	switch l.Validator.Op {
	case OpChoice:
		out := make([]Scalar, len(l.Validator.Choices))
		copy(out, l.Validator.Choices)
		return out, true
	case OpRange:
		if l.Kind != KindInt || l.Validator.Min == nil || l.Validator.Max == nil {
			return nil, false
		}
		lo, hi := l.Validator.Min.Int(), l.Validator.Max.Int()
		out := make([]Scalar, 0, hi-lo+1)
		for v := lo; v <= hi; v++ {
			out = append(out, Int(v))
		}
		return out, true
	default:
		return nil, false
	}
}

// DomainIndex returns the position of value within the label's domain.
func (l *LabelSpec) DomainIndex(value Scalar) (int, bool) {
	if l == nil || l.Validator == nil {
		return 0, false
	}
	switch l.Validator.Op {
	case OpChoice:
		for i, choice := range l.Validator.Choices {
			if choice.Equal(value) {
				return i, true
			}
		}
		return 0, false
	case OpRange:
		if l.Kind != KindInt || l.Validator.Min == nil || l.Validator.Max == nil {
			return 0, false
		}
		if value.Kind() != KindInt {
			return 0, false
		}
		if value.Int() < l.Validator.Min.Int() || value.Int() > l.Validator.Max.Int() {
			return 0, false
		}
		return int(value.Int() - l.Validator.Min.Int()), true
	default:
		return 0, false
	}
}

// Cardinality returns the size of the label's finite domain.
func (l *LabelSpec) Cardinality() (int, bool) {
	domain, ok := l.Domain()
	if !ok {
		return 0, false
	}
	return len(domain), true
}

// Operators are the structural directives a document declares.
type Operators struct {
	ArrayFirst    bool   `json:"array_first"`
	LabelToExtend string `json:"label_to_extend"`
}

// ParameterSpec describes one declared parameter.
type ParameterSpec struct {
	Name        string
	Title       string
	Description string
	Kind        Kind
	Validators  []Validator
	Indexed     bool
	Indexable   bool
	Members     map[string]Scalar

	labels []string // non-axis labels carried by the parameter's records
}

// Labels returns the non-axis labels the parameter's records carry, in
// declared label order.
func (spec *ParameterSpec) Labels() []string {
	return append([]string{}, spec.labels...)
}

func (spec *ParameterSpec) clone() *ParameterSpec {
	out := *spec
	out.Validators = append([]Validator{}, spec.Validators...)
	out.labels = append([]string{}, spec.labels...)
	if spec.Members != nil {
		out.Members = make(map[string]Scalar, len(spec.Members))
		for k, v := range spec.Members {
			out.Members[k] = v
		}
	}
	return &out
}

// Schema holds the parsed label declarations, operators, additional member
// declarations, and parameter specs of one defaults document.
type Schema struct {
	labels     []*LabelSpec
	labelIndex map[string]*LabelSpec
	operators  Operators
	members    map[string]Kind
	specs      map[string]*ParameterSpec
	names      []string
}

// Labels returns the declared labels in document order.
func (s *Schema) Labels() []*LabelSpec {
	return append([]*LabelSpec{}, s.labels...)
}

// Label returns the named label declaration.
func (s *Schema) Label(name string) (*LabelSpec, bool) {
	l, ok := s.labelIndex[name]
	return l, ok
}

// Operators returns the document's structural directives.
func (s *Schema) Operators() Operators {
	return s.operators
}

// Spec returns the named parameter declaration.
func (s *Schema) Spec(name string) (*ParameterSpec, bool) {
	spec, ok := s.specs[name]
	return spec, ok
}

// Names returns the declared parameter names in sorted order.
func (s *Schema) Names() []string {
	return append([]string{}, s.names...)
}

const schemaSection = "schema"

var schemaSectionKeys = map[string]struct{}{
	"labels":             {},
	"operators":          {},
	"additional_members": {},
}

var builtinParamKeys = map[string]struct{}{
	"title":       {},
	"description": {},
	"type":        {},
	"value":       {},
	"validators":  {},
	"indexed":     {},
	"indexable":   {},
}

// reserved suffix used by revisions to target a parameter's indexed flag.
const indexedSuffix = "-indexed"

func parseDocument(doc *hydrate.Document) (*Schema, map[string][]ValueRecord, error) {
	schemaRaw, ok := asMap(doc.Data[schemaSection])
	if !ok {
		return nil, nil, schemaErrorf(schemaSection, "document must declare a schema section")
	}
	for key := range schemaRaw {
		if _, known := schemaSectionKeys[key]; !known {
			return nil, nil, schemaErrorf(schemaSection, "unknown section %q", key)
		}
	}

	s := &Schema{
		labelIndex: map[string]*LabelSpec{},
		members:    map[string]Kind{},
		specs:      map[string]*ParameterSpec{},
	}
	if err := s.parseLabels(doc, schemaRaw); err != nil {
		return nil, nil, err
	}
	if err := s.parseOperators(schemaRaw); err != nil {
		return nil, nil, err
	}
	if err := s.parseMembers(schemaRaw); err != nil {
		return nil, nil, err
	}

	names := make([]string, 0, len(doc.Data))
	for name := range doc.Data {
		if name != schemaSection {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	defaults := make(map[string][]ValueRecord, len(names))
	for _, name := range names {
		spec, records, err := s.parseParameter(name, doc.Data[name])
		if err != nil {
			return nil, nil, err
		}
		s.specs[name] = spec
		defaults[name] = records
	}
	s.names = names
	return s, defaults, nil
}

func (s *Schema) parseLabels(doc *hydrate.Document, schemaRaw map[string]any) error {
	labelsRaw, ok := asMap(schemaRaw["labels"])
	if !ok {
		if _, present := schemaRaw["labels"]; present {
			return schemaErrorf("schema.labels", "labels must be a mapping")
		}
		return nil
	}
	order, err := doc.Keys(schemaSection, "labels")
	if err != nil {
		return &SchemaError{Section: "schema.labels", Err: err}
	}
	for _, name := range order {
		body, ok := asMap(labelsRaw[name])
		if !ok {
			return schemaErrorf("schema.labels."+name, "label body must be a mapping")
		}
		label, err := parseLabel(name, body)
		if err != nil {
			return err
		}
		if _, dup := s.labelIndex[name]; dup {
			return schemaErrorf("schema.labels."+name, "label declared twice")
		}
		s.labels = append(s.labels, label)
		s.labelIndex[name] = label
	}
	return nil
}

func parseLabel(name string, body map[string]any) (*LabelSpec, error) {
	section := "schema.labels." + name
	typeName, ok := body["type"].(string)
	if !ok {
		return nil, schemaErrorf(section, "label must declare a type")
	}
	kind, err := KindFromName(typeName)
	if err != nil {
		return nil, &SchemaError{Section: section, Err: err}
	}
	for key := range body {
		if key != "type" && key != "validators" {
			return nil, schemaErrorf(section, "unknown field %q", key)
		}
	}
	label := &LabelSpec{Name: name, Kind: kind}
	if raw, present := body["validators"]; present {
		validators, err := parseValidators(section, kind, raw)
		if err != nil {
			return nil, err
		}
		for i := range validators {
			if validators[i].Op == OpRule {
				return nil, schemaErrorf(section, "labels accept range or choice validators only")
			}
		}
		if len(validators) > 1 {
			return nil, schemaErrorf(section, "labels accept a single validator")
		}
		if len(validators) == 1 {
			label.Validator = &validators[0]
		}
	}
	return label, nil
}

func (s *Schema) parseOperators(schemaRaw map[string]any) error {
	raw, present := schemaRaw["operators"]
	if !present {
		return nil
	}
	body, ok := asMap(raw)
	if !ok {
		return schemaErrorf("schema.operators", "operators must be a mapping")
	}
	dec := hydrate.NewDecoder[Operators](hydrate.WithDisallowUnknownFields[Operators]())
	ops, err := dec.Decode(hydrate.Context{Source: "defaults", Section: "schema.operators"}, body)
	if err != nil {
		return &SchemaError{Section: "schema.operators", Err: err}
	}
	if ops.LabelToExtend != "" {
		label, declared := s.labelIndex[ops.LabelToExtend]
		if !declared {
			return schemaErrorf("schema.operators", "label_to_extend %q is not a declared label", ops.LabelToExtend)
		}
		if label.Kind != KindInt {
			return schemaErrorf("schema.operators", "extension axis %q must be an int label", ops.LabelToExtend)
		}
	}
	s.operators = ops
	return nil
}

func (s *Schema) parseMembers(schemaRaw map[string]any) error {
	raw, present := schemaRaw["additional_members"]
	if !present {
		return nil
	}
	body, ok := asMap(raw)
	if !ok {
		return schemaErrorf("schema.additional_members", "additional_members must be a mapping")
	}
	for name, memberRaw := range body {
		section := "schema.additional_members." + name
		memberBody, ok := asMap(memberRaw)
		if !ok {
			return schemaErrorf(section, "member body must be a mapping")
		}
		typeName, ok := memberBody["type"].(string)
		if !ok {
			return schemaErrorf(section, "member must declare a type")
		}
		kind, err := KindFromName(typeName)
		if err != nil {
			return &SchemaError{Section: section, Err: err}
		}
		s.members[name] = kind
	}
	return nil
}

func parseValidators(section string, kind Kind, raw any) ([]Validator, error) {
	body, ok := asMap(raw)
	if !ok {
		return nil, schemaErrorf(section, "validators must be a mapping")
	}
	ops := make([]string, 0, len(body))
	for op := range body {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	out := make([]Validator, 0, len(body))
	for _, op := range ops {
		opBody, ok := asMap(body[op])
		if !ok {
			return nil, schemaErrorf(section, "%s validator must be a mapping", op)
		}
		var v Validator
		var err error
		switch op {
		case "range":
			v, err = parseRange(section, kind, opBody)
		case "choice":
			v, err = parseChoice(section, kind, opBody)
		case "rule":
			v, err = parseRule(section, opBody)
		default:
			return nil, schemaErrorf(section, "unknown validator %q", op)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseRange(section string, kind Kind, body map[string]any) (Validator, error) {
	if kind != KindInt && kind != KindFloat {
		return Validator{}, schemaErrorf(section, "range validator requires a numeric type, have %s", kind)
	}
	v := Validator{Op: OpRange, Level: LevelError}
	for key, raw := range body {
		switch key {
		case "min":
			bound, err := coerce(kind, raw)
			if err != nil {
				return Validator{}, schemaErrorf(section, "range min: %v", err)
			}
			v.Min = &bound
		case "max":
			bound, err := coerce(kind, raw)
			if err != nil {
				return Validator{}, schemaErrorf(section, "range max: %v", err)
			}
			v.Max = &bound
		case "level":
			level, err := parseLevel(section, raw)
			if err != nil {
				return Validator{}, err
			}
			v.Level = level
		default:
			return Validator{}, schemaErrorf(section, "unknown range field %q", key)
		}
	}
	if v.Min != nil && v.Max != nil && v.Max.less(*v.Min) {
		return Validator{}, schemaErrorf(section, "range min %s exceeds max %s", v.Min, v.Max)
	}
	return v, nil
}

func parseChoice(section string, kind Kind, body map[string]any) (Validator, error) {
	v := Validator{Op: OpChoice, Level: LevelError}
	for key, raw := range body {
		switch key {
		case "choices":
			items, ok := raw.([]any)
			if !ok {
				return Validator{}, schemaErrorf(section, "choices must be a list")
			}
			for _, item := range items {
				choice, err := coerce(kind, item)
				if err != nil {
					return Validator{}, schemaErrorf(section, "choice: %v", err)
				}
				v.Choices = append(v.Choices, choice)
			}
		case "level":
			level, err := parseLevel(section, raw)
			if err != nil {
				return Validator{}, err
			}
			v.Level = level
		default:
			return Validator{}, schemaErrorf(section, "unknown choice field %q", key)
		}
	}
	if len(v.Choices) == 0 {
		return Validator{}, schemaErrorf(section, "choice validator requires a non-empty choice set")
	}
	return v, nil
}

func parseRule(section string, body map[string]any) (Validator, error) {
	v := Validator{Op: OpRule, Level: LevelError}
	for key, raw := range body {
		switch key {
		case "expr":
			expr, ok := raw.(string)
			if !ok || strings.TrimSpace(expr) == "" {
				return Validator{}, schemaErrorf(section, "rule expr must be a non-empty string")
			}
			v.Expr = expr
		case "engine":
			engine, ok := raw.(string)
			if !ok {
				return Validator{}, schemaErrorf(section, "rule engine must be a string")
			}
			switch engine {
			case "", "expr", "cel", "js":
			default:
				return Validator{}, schemaErrorf(section, "unknown rule engine %q", engine)
			}
			v.Engine = engine
		case "level":
			level, err := parseLevel(section, raw)
			if err != nil {
				return Validator{}, err
			}
			v.Level = level
		default:
			return Validator{}, schemaErrorf(section, "unknown rule field %q", key)
		}
	}
	if v.Expr == "" {
		return Validator{}, schemaErrorf(section, "rule validator requires an expr")
	}
	return v, nil
}

func parseLevel(section string, raw any) (string, error) {
	level, ok := raw.(string)
	if !ok {
		return "", schemaErrorf(section, "level must be a string")
	}
	switch level {
	case LevelError, LevelWarn:
		return level, nil
	default:
		return "", schemaErrorf(section, "unknown level %q", level)
	}
}

func (s *Schema) parseParameter(name string, raw any) (*ParameterSpec, []ValueRecord, error) {
	if strings.HasSuffix(name, indexedSuffix) {
		return nil, nil, schemaErrorf(name, "parameter names may not end in %q", indexedSuffix)
	}
	body, ok := asMap(raw)
	if !ok {
		return nil, nil, schemaErrorf(name, "parameter body must be a mapping")
	}
	typeName, ok := body["type"].(string)
	if !ok {
		return nil, nil, schemaErrorf(name, "parameter must declare a type")
	}
	kind, err := KindFromName(typeName)
	if err != nil {
		return nil, nil, &SchemaError{Section: name, Err: err}
	}

	spec := &ParameterSpec{Name: name, Kind: kind}
	if title, present := body["title"]; present {
		text, ok := title.(string)
		if !ok {
			return nil, nil, schemaErrorf(name, "title must be a string")
		}
		spec.Title = text
	}
	if description, present := body["description"]; present {
		text, ok := description.(string)
		if !ok {
			return nil, nil, schemaErrorf(name, "description must be a string")
		}
		spec.Description = text
	}
	if rawFlag, present := body["indexed"]; present {
		flag, err := coerce(KindBool, rawFlag)
		if err != nil {
			return nil, nil, schemaErrorf(name, "indexed: %v", err)
		}
		spec.Indexed = flag.Bool()
	}
	if rawFlag, present := body["indexable"]; present {
		flag, err := coerce(KindBool, rawFlag)
		if err != nil {
			return nil, nil, schemaErrorf(name, "indexable: %v", err)
		}
		spec.Indexable = flag.Bool()
	}
	if spec.Indexed && !spec.Indexable {
		return nil, nil, schemaErrorf(name, "indexed parameter must be indexable")
	}
	if spec.Indexable && spec.Kind != KindFloat {
		return nil, nil, schemaErrorf(name, "indexable parameter must have type float, have %s", spec.Kind)
	}
	if rawValidators, present := body["validators"]; present {
		validators, err := parseValidators(name, kind, rawValidators)
		if err != nil {
			return nil, nil, err
		}
		spec.Validators = validators
	}
	for key, memberRaw := range body {
		if _, builtin := builtinParamKeys[key]; builtin {
			continue
		}
		memberKind, declared := s.members[key]
		if !declared {
			return nil, nil, schemaErrorf(name, "unknown field %q", key)
		}
		member, err := coerce(memberKind, memberRaw)
		if err != nil {
			return nil, nil, schemaErrorf(name, "member %s: %v", key, err)
		}
		if spec.Members == nil {
			spec.Members = map[string]Scalar{}
		}
		spec.Members[key] = member
	}

	rawValue, present := body["value"]
	if !present {
		return nil, nil, schemaErrorf(name, "parameter must declare a value")
	}
	records, err := s.parseValueRecords(spec, rawValue)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkRecordShape(spec, records); err != nil {
		return nil, nil, err
	}
	if err := s.checkDefaults(spec, records); err != nil {
		return nil, nil, err
	}
	return spec, records, nil
}

func (s *Schema) parseValueRecords(spec *ParameterSpec, raw any) ([]ValueRecord, error) {
	items, isList := raw.([]any)
	if !isList {
		value, err := coerce(spec.Kind, raw)
		if err != nil {
			return nil, schemaErrorf(spec.Name, "value: %v", err)
		}
		return []ValueRecord{{Labels: map[string]Scalar{}, Value: value}}, nil
	}
	records := make([]ValueRecord, 0, len(items))
	for i, item := range items {
		entry, ok := asMap(item)
		if !ok {
			return nil, schemaErrorf(spec.Name, "value record %d must be a mapping", i)
		}
		record := ValueRecord{Labels: map[string]Scalar{}}
		sawValue := false
		for key, cell := range entry {
			if key == "value" {
				value, err := coerce(spec.Kind, cell)
				if err != nil {
					return nil, schemaErrorf(spec.Name, "value record %d: %v", i, err)
				}
				record.Value = value
				sawValue = true
				continue
			}
			label, declared := s.labelIndex[key]
			if !declared {
				return nil, schemaErrorf(spec.Name, "value record %d uses undeclared label %q", i, key)
			}
			labelValue, err := coerce(label.Kind, cell)
			if err != nil {
				return nil, schemaErrorf(spec.Name, "value record %d label %s: %v", i, key, err)
			}
			record.Labels[key] = labelValue
		}
		if !sawValue {
			return nil, schemaErrorf(spec.Name, "value record %d is missing a value", i)
		}
		records = append(records, record)
	}
	return records, nil
}

// checkRecordShape derives the parameter's non-axis label set and enforces
// that every record carries the same one, that label values satisfy their
// label validators, and that no two records share a full assignment.
func (s *Schema) checkRecordShape(spec *ParameterSpec, records []ValueRecord) error {
	axis := s.operators.LabelToExtend
	var labelSet map[string]struct{}
	seen := map[string]struct{}{}
	for i, record := range records {
		set := make(map[string]struct{}, len(record.Labels))
		for key, value := range record.Labels {
			if key != axis {
				set[key] = struct{}{}
			}
			if msg := checkLabelValue(s.labelIndex[key], value); msg != "" {
				return schemaErrorf(spec.Name, "value record %d label %s: %s", i, key, msg)
			}
		}
		if labelSet == nil {
			labelSet = set
		} else if !sameKeySet(labelSet, set) {
			return schemaErrorf(spec.Name, "value record %d does not match the parameter's label set", i)
		}
		key := recordKey(record)
		if _, dup := seen[key]; dup {
			return schemaErrorf(spec.Name, "duplicate value record for %s", key)
		}
		seen[key] = struct{}{}
	}
	for _, label := range s.labels {
		if label.Name == axis {
			continue
		}
		if _, used := labelSet[label.Name]; used {
			spec.labels = append(spec.labels, label.Name)
		}
	}
	return nil
}

func (s *Schema) checkDefaults(spec *ParameterSpec, records []ValueRecord) error {
	for _, record := range records {
		for _, v := range spec.Validators {
			if v.Op == OpRule || v.Warns() {
				continue
			}
			if msg := checkStatic(v, record.Value); msg != "" {
				return schemaErrorf(spec.Name, "default value %s: %s", record.Value, msg)
			}
		}
	}
	return nil
}

func checkLabelValue(label *LabelSpec, value Scalar) string {
	if label == nil || label.Validator == nil {
		return ""
	}
	return checkStatic(*label.Validator, value)
}

func sameKeySet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			return false
		}
	}
	return true
}

// recordKey canonicalizes a record's full label assignment for uniqueness and
// diagnostics.
func recordKey(record ValueRecord) string {
	return labelKey(record.Labels)
}

func asMap(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	return m, ok
}
