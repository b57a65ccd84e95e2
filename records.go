package params

import (
	"sort"
	"strings"
)

// ValueRecord binds one value to a full label assignment. Auto marks records
// written by automatic extension rather than by a revision or the defaults
// document. RevisionID carries the identifier of the revision that wrote the
// record and is empty for document defaults.
type ValueRecord struct {
	Labels     map[string]Scalar
	Value      Scalar
	Auto       bool
	RevisionID string
}

func (r ValueRecord) clone() ValueRecord {
	out := r
	out.Labels = cloneLabels(r.Labels)
	return out
}

// Period returns the record's value on the extension axis.
func (r ValueRecord) Period(axis string) (int, bool) {
	if axis == "" {
		return 0, false
	}
	v, ok := r.Labels[axis]
	if !ok {
		return 0, false
	}
	return int(v.Int()), true
}

func labelKey(labels map[string]Scalar) string {
	if len(labels) == 0 {
		return "(no labels)"
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+labels[key].String())
	}
	return strings.Join(parts, ",")
}

// comboKey canonicalizes the non-axis portion of a label assignment.
func comboKey(labels map[string]Scalar, axis string) string {
	if axis == "" {
		return labelKey(labels)
	}
	trimmed := make(map[string]Scalar, len(labels))
	for key, value := range labels {
		if key != axis {
			trimmed[key] = value
		}
	}
	return labelKey(trimmed)
}

func cloneLabels(labels map[string]Scalar) map[string]Scalar {
	out := make(map[string]Scalar, len(labels))
	for key, value := range labels {
		out[key] = value
	}
	return out
}

func sameLabels(a, b map[string]Scalar) bool {
	if len(a) != len(b) {
		return false
	}
	for key, av := range a {
		bv, ok := b[key]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// parameterState is one parameter's record set. States are cloned before
// mutation so readers always observe a consistent snapshot.
type parameterState struct {
	spec    *ParameterSpec
	records []ValueRecord
}

func (st *parameterState) clone() *parameterState {
	out := &parameterState{spec: st.spec, records: make([]ValueRecord, len(st.records))}
	for i := range st.records {
		out.records[i] = st.records[i].clone()
	}
	return out
}

func (st *parameterState) find(labels map[string]Scalar) (int, bool) {
	for i := range st.records {
		if sameLabels(st.records[i].Labels, labels) {
			return i, true
		}
	}
	return 0, false
}

// upsert replaces the record holding the same full label assignment, or
// appends when none exists.
func (st *parameterState) upsert(record ValueRecord) {
	if i, ok := st.find(record.Labels); ok {
		st.records[i] = record
		return
	}
	st.records = append(st.records, record)
}

func (st *parameterState) removeWhere(drop func(ValueRecord) bool) {
	kept := st.records[:0]
	for _, record := range st.records {
		if !drop(record) {
			kept = append(kept, record)
		}
	}
	st.records = kept
}

// periods returns the distinct axis values present in the record set, in
// ascending order. When explicitOnly is set, records written by automatic
// extension are ignored.
func (st *parameterState) periods(axis string, explicitOnly bool) []int {
	seen := map[int]struct{}{}
	for _, record := range st.records {
		if explicitOnly && record.Auto {
			continue
		}
		if period, ok := record.Period(axis); ok {
			seen[period] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for period := range seen {
		out = append(out, period)
	}
	sort.Ints(out)
	return out
}

// at returns the records whose axis label equals period.
func (st *parameterState) at(axis string, period int) []ValueRecord {
	var out []ValueRecord
	for _, record := range st.records {
		if p, ok := record.Period(axis); ok && p == period {
			out = append(out, record)
		}
	}
	return out
}

func (st *parameterState) sort(s *Schema, axis string) {
	sort.SliceStable(st.records, func(i, j int) bool {
		return recordLess(s, axis, st.records[i], st.records[j])
	})
}

// recordLess orders records by axis value first, then by each declared label
// in schema order using the label's domain position when it has one.
func recordLess(s *Schema, axis string, a, b ValueRecord) bool {
	if axis != "" {
		ap, aok := a.Period(axis)
		bp, bok := b.Period(axis)
		if aok != bok {
			return !aok
		}
		if aok && ap != bp {
			return ap < bp
		}
	}
	for _, label := range s.labels {
		if label.Name == axis {
			continue
		}
		av, aok := a.Labels[label.Name]
		bv, bok := b.Labels[label.Name]
		if !aok || !bok {
			continue
		}
		if av.Equal(bv) {
			continue
		}
		ai, aHas := label.DomainIndex(av)
		bi, bHas := label.DomainIndex(bv)
		if aHas && bHas {
			return ai < bi
		}
		return av.less(bv)
	}
	return false
}
