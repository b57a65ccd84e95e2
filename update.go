package params

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"
)

// Update validates a revision and applies it atomically. Validation runs over
// the whole revision before anything is written: on any error-level violation
// the engine state is untouched, the report is stored for the Errors and
// Warnings accessors, and a ValidationError is returned when raiseErrors is
// set. Warnings never block; with printWarnings they are written to the
// configured warn writer.
func (p *Parameters) Update(rev Revision, printWarnings, raiseErrors bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.update(rev, printWarnings, raiseErrors)
}

// Adjust applies a revision with warnings printed and errors raised.
func (p *Parameters) Adjust(rev Revision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.update(rev, true, true)
}

func (p *Parameters) update(rev Revision, printWarnings, raiseErrors bool) error {
	if p.window == nil {
		return ErrNotInitialized
	}
	p.report = nil
	if len(rev) == 0 {
		return nil
	}
	changes, flags, report := p.normalizeRevision(rev)
	p.validateChanges(changes, report)
	p.report = report
	if printWarnings && report.HasWarnings() {
		p.writeWarnings(report)
	}
	if report.HasErrors() {
		if raiseErrors {
			return newValidationError(report)
		}
		return nil
	}
	if len(changes) == 0 && len(flags) == 0 {
		return nil
	}
	return p.apply(changes, flags)
}

// apply writes validated changes onto cloned states and swaps them in, so a
// failing extension step leaves the published state untouched.
func (p *Parameters) apply(changes []paramChange, flags []indexedFlagChange) error {
	axis := p.schema.operators.LabelToExtend
	auto := p.autoExtend()
	revID := uuid.NewString()

	affected := map[string]*parameterState{}
	ensure := func(name string) *parameterState {
		if st, ok := affected[name]; ok {
			return st
		}
		st := p.states[name].clone()
		affected[name] = st
		return st
	}

	sort.SliceStable(flags, func(i, j int) bool {
		if flags[i].param != flags[j].param {
			return flags[i].param < flags[j].param
		}
		return flags[i].period < flags[j].period
	})
	for _, flag := range flags {
		if err := p.applyIndexedFlag(ensure(flag.param), axis, auto, flag, revID); err != nil {
			return err
		}
	}
	for _, change := range changes {
		if err := p.applyChange(ensure(change.param), axis, auto, change, revID); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(affected))
	for name := range affected {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := affected[name]
		st.sort(p.schema, axis)
		p.states[name] = st
	}
	p.lastRevision = revID
	p.invalidateArrays(names...)
	if err := p.rebuildArrays(names...); err != nil {
		return err
	}
	p.emitUpdated(names, revID)
	return nil
}

// applyIndexedFlag flips a parameter's indexed status at a period. Values
// through the period are materialized under the old status first, derived
// cells past it are discarded, and the window is re-extended under the new
// status.
func (p *Parameters) applyIndexedFlag(st *parameterState, axis string, auto bool, flag indexedFlagChange, revID string) error {
	if auto && axis != "" {
		var upTo []int
		for _, period := range p.window.Periods() {
			if period <= flag.period {
				upTo = append(upTo, period)
			}
		}
		if err := p.extendParam(st, axis, upTo, revID); err != nil {
			return err
		}
	}
	st.removeWhere(func(r ValueRecord) bool {
		period, ok := r.Period(axis)
		return ok && r.Auto && period > flag.period
	})
	spec := st.spec.clone()
	spec.Indexed = flag.indexed
	st.spec = spec
	if auto && axis != "" {
		if err := p.extendParam(st, axis, p.window.Periods(), revID); err != nil {
			return err
		}
	}
	return nil
}

// applyChange writes one parameter's proposed cells. Under automatic
// extension a write at period P discards that label combination's records
// after P, so the new value propagates forward; the window is then
// re-extended. The replace form discards the whole record set first.
func (p *Parameters) applyChange(st *parameterState, axis string, auto bool, change paramChange, revID string) error {
	if len(change.values) == 0 && !change.replace {
		return nil
	}
	if change.replace {
		st.records = nil
	} else if auto && axis != "" {
		minBy := map[string]int{}
		for _, pv := range change.values {
			axisValue, ok := pv.labels[axis]
			if !ok {
				continue
			}
			period := int(axisValue.Int())
			key := comboKey(pv.labels, axis)
			if existing, tracked := minBy[key]; !tracked || period < existing {
				minBy[key] = period
			}
		}
		st.removeWhere(func(r ValueRecord) bool {
			period, ok := r.Period(axis)
			if !ok {
				return false
			}
			floor, tracked := minBy[comboKey(r.Labels, axis)]
			return tracked && period > floor
		})
	}
	for _, pv := range change.values {
		st.upsert(ValueRecord{Labels: cloneLabels(pv.labels), Value: pv.value, RevisionID: revID})
	}
	if auto && axis != "" {
		if err := p.extendParam(st, axis, p.window.Periods(), revID); err != nil {
			return err
		}
	}
	return nil
}

// SetYear moves the window cursor. Targets outside [Start, End] fail with a
// ValidationError reported under the "set_year" key.
func (p *Parameters) SetYear(period int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.window == nil {
		return ErrNotInitialized
	}
	if !p.window.Contains(period) {
		return validationErrorf("set_year", "period %d outside window [%d, %d]", period, p.window.Start, p.window.End)
	}
	p.window.Current = period
	p.emitYearAdvanced(period)
	return nil
}

// Errors returns the error rows of the report stored by the last validating
// call, keyed by parameter name.
func (p *Parameters) Errors() map[string][]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.report == nil {
		return map[string][]string{}
	}
	return copyReportMap(p.report.Errors)
}

// Warnings returns the warning rows of the report stored by the last
// validating call, keyed by parameter name.
func (p *Parameters) Warnings() map[string][]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.report == nil {
		return map[string][]string{}
	}
	return copyReportMap(p.report.Warnings)
}

func copyReportMap(entries map[string][]string) map[string][]string {
	out := make(map[string][]string, len(entries))
	for name, msgs := range entries {
		out[name] = append([]string{}, msgs...)
	}
	return out
}

func (p *Parameters) warnOutput() io.Writer {
	if p.cfg.warnWriter != nil {
		return p.cfg.warnWriter
	}
	return os.Stdout
}

func (p *Parameters) writeWarnings(report *ValidationReport) {
	out := p.warnOutput()
	for _, msg := range report.WarningMessages() {
		fmt.Fprintf(out, "WARNING: %s\n", msg)
	}
}
