package params

import (
	"fmt"
	"sort"
)

// Extend fills missing cells for the named parameters at the requested
// extension-axis values. A nil or empty names slice targets every parameter;
// empty values is a no-op. Each missing cell is derived from the nearest
// filled cell at or below it: indexed parameters compound by the per-period
// growth rate, non-indexed parameters carry the anchor verbatim. Cells that
// already hold a value are never overwritten.
func (p *Parameters) Extend(names []string, label string, values []int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.window == nil {
		return ErrNotInitialized
	}
	axis := p.schema.operators.LabelToExtend
	if axis == "" {
		return validationErrorf(label, "document declares no extension label")
	}
	if label != axis {
		return validationErrorf(label, "not the extension label %q", axis)
	}
	if len(values) == 0 {
		return nil
	}
	if err := p.checkAxisValues(values); err != nil {
		return err
	}
	targets, err := p.targetNames(names)
	if err != nil {
		return err
	}

	sorted := append([]int{}, values...)
	sort.Ints(sorted)

	next := make(map[string]*parameterState, len(targets))
	for _, name := range targets {
		clone := p.states[name].clone()
		if err := p.extendParam(clone, axis, sorted, ""); err != nil {
			return err
		}
		next[name] = clone
	}
	for name, st := range next {
		st.sort(p.schema, axis)
		p.states[name] = st
	}
	p.invalidateArrays(targets...)
	p.emitExtended(targets, axis, sorted)
	return nil
}

// checkAxisValues applies the extension-axis label validator to each value.
func (p *Parameters) checkAxisValues(values []int) error {
	axis := p.schema.operators.LabelToExtend
	label := p.schema.labelIndex[axis]
	report := newValidationReport()
	for _, v := range values {
		if msg := checkLabelValue(label, Int(int64(v))); msg != "" {
			report.addError(axis, fmt.Sprintf("period %s", msg))
		}
	}
	if report.HasErrors() {
		return newValidationError(report)
	}
	return nil
}

func (p *Parameters) targetNames(names []string) ([]string, error) {
	if len(names) == 0 {
		return p.schema.Names(), nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := p.states[name]; !ok {
			return nil, argumentErrorf("names", "unknown parameter %q", name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// comboSeries is one label combination's filled periods during extension.
type comboSeries struct {
	labels   map[string]Scalar
	byPeriod map[int]Scalar
}

// extendParam fills the requested axis values in one cloned parameter state.
// values must be sorted ascending and already validated against the axis
// label. revisionID is stamped on the generated records; it is empty for
// standalone Extend calls and carries the update's ID during re-extension.
func (p *Parameters) extendParam(st *parameterState, axis string, values []int, revisionID string) error {
	if len(st.records) == 0 {
		return nil
	}
	name := st.spec.Name

	combos := map[string]*comboSeries{}
	order := []string{}
	cover := map[int]map[string]struct{}{}
	for _, record := range st.records {
		period, ok := record.Period(axis)
		if !ok {
			return extensionErrorf(name, 0, "record %s has no %s label", recordKey(record), axis)
		}
		key := comboKey(record.Labels, axis)
		series, seen := combos[key]
		if !seen {
			nonAxis := cloneLabels(record.Labels)
			delete(nonAxis, axis)
			series = &comboSeries{labels: nonAxis, byPeriod: map[int]Scalar{}}
			combos[key] = series
			order = append(order, key)
		}
		series.byPeriod[period] = record.Value
		if cover[period] == nil {
			cover[period] = map[string]struct{}{}
		}
		cover[period][key] = struct{}{}
	}
	for period, at := range cover {
		if len(at) != len(combos) {
			return extensionErrorf(name, period, "records cover %d of %d label combinations", len(at), len(combos))
		}
	}

	sort.Strings(order)
	for _, key := range order {
		series := combos[key]
		for _, target := range values {
			if _, filled := series.byPeriod[target]; filled {
				continue
			}
			anchor, ok := anchorPeriod(series.byPeriod, target)
			if !ok {
				return extensionErrorf(name, target, "no known value at or before period %d", target)
			}
			value := series.byPeriod[anchor]
			if st.spec.Indexed {
				grown := value.Float()
				for step := anchor; step < target; step++ {
					grown *= 1 + p.rateFor(name, step)
				}
				value = Float(grown)
			}
			labels := cloneLabels(series.labels)
			labels[axis] = Int(int64(target))
			st.upsert(ValueRecord{
				Labels:     labels,
				Value:      value,
				Auto:       true,
				RevisionID: revisionID,
			})
			series.byPeriod[target] = value
		}
	}
	return nil
}

func anchorPeriod(filled map[int]Scalar, target int) (int, bool) {
	best, found := 0, false
	for period := range filled {
		if period > target {
			continue
		}
		if !found || period > best {
			best, found = period, true
		}
	}
	return best, found
}
