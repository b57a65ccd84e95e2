package params

import (
	"encoding/json"
)

// ValueSource identifies where a traced cell's value came from.
type ValueSource string

const (
	SourceDefaults  ValueSource = "defaults"
	SourceRevision  ValueSource = "revision"
	SourceExtension ValueSource = "extension"
)

// Trace captures provenance information for one parameter at one period:
// every record covering the period and where each one's value came from.
type Trace struct {
	Param  string      `json:"param"`
	Period int         `json:"period"`
	Cells  []CellTrace `json:"cells"`
}

// CellTrace details how a specific record contributed to the traced period.
type CellTrace struct {
	Labels     map[string]any `json:"labels,omitempty"`
	Value      any            `json:"value"`
	Source     ValueSource    `json:"source"`
	RevisionID string         `json:"revision_id,omitempty"`
}

// Trace reports the provenance of a parameter's records at a period: defaults
// loaded from the document, an applied revision (with its revision ID), or
// automatic extension. Extension cells triggered by a revision carry that
// revision's ID as well.
func (p *Parameters) Trace(name string, period int) (Trace, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.window == nil {
		return Trace{}, ErrNotInitialized
	}
	st, ok := p.states[name]
	if !ok {
		return Trace{}, argumentErrorf("name", "unknown parameter %q", name)
	}
	axis := p.schema.operators.LabelToExtend
	trace := Trace{Param: name, Period: period}
	for _, record := range st.records {
		if axis != "" {
			if rp, ok := record.Period(axis); !ok || rp != period {
				continue
			}
		}
		trace.Cells = append(trace.Cells, cellTrace(record))
	}
	if len(trace.Cells) == 0 {
		return Trace{}, validationErrorf(name, "no value at period %d", period)
	}
	return trace, nil
}

func cellTrace(record ValueRecord) CellTrace {
	cell := CellTrace{Value: record.Value.Interface(), Source: SourceDefaults}
	if len(record.Labels) > 0 {
		cell.Labels = make(map[string]any, len(record.Labels))
		for name, value := range record.Labels {
			cell.Labels[name] = value.Interface()
		}
	}
	if record.RevisionID != "" {
		cell.RevisionID = record.RevisionID
	}
	switch {
	case record.Auto:
		cell.Source = SourceExtension
	case record.RevisionID != "":
		cell.Source = SourceRevision
	}
	return cell
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
