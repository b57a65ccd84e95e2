package params

import (
	"fmt"
	"math"
)

// Dense is a row-major grid of scalar cells. The first axis is the period
// axis when the document declares an extension label; the remaining axes are
// the parameter's labels in declared order, each indexed by the position of
// the label value in its domain.
type Dense struct {
	dims []int
	data []Scalar
}

// NewDense allocates a grid with the given dimensions. Cells start as zero
// values and must be assigned before the grid is read back into records.
func NewDense(dims ...int) *Dense {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	return &Dense{dims: append([]int{}, dims...), data: make([]Scalar, size)}
}

// DenseFromScalars wraps an already-flattened cell slice.
func DenseFromScalars(dims []int, data []Scalar) (*Dense, error) {
	d := NewDense(dims...)
	if len(data) != len(d.data) {
		return nil, argumentErrorf("data", "have %d cells, dims %v require %d", len(data), dims, len(d.data))
	}
	copy(d.data, data)
	return d, nil
}

// DenseFromFloats wraps a flattened float slice.
func DenseFromFloats(dims []int, values []float64) (*Dense, error) {
	data := make([]Scalar, len(values))
	for i, v := range values {
		data[i] = Float(v)
	}
	return DenseFromScalars(dims, data)
}

// Dims returns the grid's dimensions.
func (d *Dense) Dims() []int {
	return append([]int{}, d.dims...)
}

// Len returns the number of cells.
func (d *Dense) Len() int {
	return len(d.data)
}

// At returns the cell at the given multi-index.
func (d *Dense) At(idx ...int) (Scalar, error) {
	off, err := d.offsetOf(idx)
	if err != nil {
		return Scalar{}, err
	}
	return d.data[off], nil
}

// Values returns a copy of the flattened cells.
func (d *Dense) Values() []Scalar {
	return append([]Scalar{}, d.data...)
}

// Floats returns the flattened cells as floats. Non-numeric cells are an
// error.
func (d *Dense) Floats() ([]float64, error) {
	out := make([]float64, len(d.data))
	for i, cell := range d.data {
		if !cell.IsNumeric() {
			return nil, fmt.Errorf("params: cell %d is %s, not numeric", i, cell.Kind())
		}
		out[i] = cell.Float()
	}
	return out, nil
}

// AllClose reports whether two grids have the same dimensions and cell
// values, comparing numeric cells within atol.
func (d *Dense) AllClose(other *Dense, atol float64) bool {
	if other == nil || len(d.dims) != len(other.dims) {
		return false
	}
	for i := range d.dims {
		if d.dims[i] != other.dims[i] {
			return false
		}
	}
	for i := range d.data {
		a, b := d.data[i], other.data[i]
		if a.IsNumeric() && b.IsNumeric() {
			if math.Abs(a.Float()-b.Float()) > atol {
				return false
			}
			continue
		}
		if !a.Equal(b) {
			return false
		}
	}
	return true
}

func (d *Dense) offsetOf(idx []int) (int, error) {
	if len(idx) != len(d.dims) {
		return 0, argumentErrorf("index", "have %d axes, grid has %d", len(idx), len(d.dims))
	}
	off := 0
	for i, pos := range idx {
		if pos < 0 || pos >= d.dims[i] {
			return 0, argumentErrorf("index", "axis %d position %d out of range [0,%d)", i, pos, d.dims[i])
		}
		off = off*d.dims[i] + pos
	}
	return off, nil
}

// arrayAxes is the resolved projection frame for one parameter: the period
// rows, the label axes with their domains, and the resulting grid dims.
type arrayAxes struct {
	axis    string
	periods []int
	labels  []*LabelSpec
	domains [][]Scalar
	dims    []int
}

func (p *Parameters) arrayAxesFor(spec *ParameterSpec, st *parameterState, periods []int) (*arrayAxes, error) {
	ax := &arrayAxes{axis: p.schema.operators.LabelToExtend}
	if ax.axis != "" {
		if len(periods) == 0 {
			if p.window != nil {
				periods = p.window.Periods()
			} else {
				periods = st.periods(ax.axis, false)
			}
		}
		if len(periods) == 0 {
			return nil, validationErrorf(spec.Name, "no periods to project")
		}
		ax.periods = append([]int{}, periods...)
		ax.dims = append(ax.dims, len(ax.periods))
	} else if len(periods) > 0 {
		return nil, argumentErrorf("periods", "document declares no extension label")
	}
	for _, name := range spec.labels {
		label := p.schema.labelIndex[name]
		domain, ok := label.Domain()
		if !ok {
			return nil, validationErrorf(spec.Name, "label %s has no finite domain", name)
		}
		ax.labels = append(ax.labels, label)
		ax.domains = append(ax.domains, domain)
		ax.dims = append(ax.dims, len(domain))
	}
	return ax, nil
}

// comboAt maps a flattened combo index to the label assignment it addresses.
func (ax *arrayAxes) comboAt(combo int) map[string]Scalar {
	labels := make(map[string]Scalar, len(ax.labels))
	for i := len(ax.labels) - 1; i >= 0; i-- {
		size := len(ax.domains[i])
		labels[ax.labels[i].Name] = ax.domains[i][combo%size]
		combo /= size
	}
	return labels
}

func (ax *arrayAxes) comboCount() int {
	count := 1
	for _, domain := range ax.domains {
		count *= len(domain)
	}
	return count
}

// comboIndexOf maps a record's labels to its flattened combo index.
func (ax *arrayAxes) comboIndexOf(labels map[string]Scalar) (int, bool) {
	combo := 0
	for i, label := range ax.labels {
		value, ok := labels[label.Name]
		if !ok {
			return 0, false
		}
		pos, ok := label.DomainIndex(value)
		if !ok {
			return 0, false
		}
		combo = combo*len(ax.domains[i]) + pos
	}
	return combo, true
}

// ToArray projects a parameter's records onto a dense grid. With no explicit
// periods the active window is used when initialized, otherwise every period
// present in the record set. Every cell of the grid must be covered by a
// record.
func (p *Parameters) ToArray(name string, periods ...int) (*Dense, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.toArray(name, periods)
}

func (p *Parameters) toArray(name string, periods []int) (*Dense, error) {
	if len(periods) == 0 {
		if grid, ok := p.arrays[name]; ok {
			return grid, nil
		}
	}
	st, ok := p.states[name]
	if !ok {
		return nil, argumentErrorf("name", "unknown parameter %q", name)
	}
	ax, err := p.arrayAxesFor(st.spec, st, periods)
	if err != nil {
		return nil, err
	}
	grid := NewDense(ax.dims...)
	filled := make([]bool, grid.Len())
	rows := 1
	if ax.axis != "" {
		rows = len(ax.periods)
	}
	combos := ax.comboCount()

	fill := func(row, combo int, value Scalar) {
		off := row*combos + combo
		grid.data[off] = value
		filled[off] = true
	}
	// Records without an axis value apply to every requested period; explicit
	// records then overwrite their own rows.
	for _, record := range st.records {
		combo, ok := ax.comboIndexOf(record.Labels)
		if !ok {
			continue
		}
		if ax.axis == "" {
			fill(0, combo, record.Value)
			continue
		}
		if _, hasPeriod := record.Period(ax.axis); !hasPeriod {
			for row := 0; row < rows; row++ {
				fill(row, combo, record.Value)
			}
		}
	}
	if ax.axis != "" {
		rowOf := make(map[int]int, len(ax.periods))
		for row, period := range ax.periods {
			rowOf[period] = row
		}
		for _, record := range st.records {
			period, hasPeriod := record.Period(ax.axis)
			if !hasPeriod {
				continue
			}
			row, wanted := rowOf[period]
			if !wanted {
				continue
			}
			combo, ok := ax.comboIndexOf(record.Labels)
			if !ok {
				continue
			}
			fill(row, combo, record.Value)
		}
	}
	for off, ok := range filled {
		if ok {
			continue
		}
		labels := ax.comboAt(off % combos)
		if ax.axis != "" {
			labels[ax.axis] = Int(int64(ax.periods[off/combos]))
		}
		return nil, validationErrorf(name, "no value at %s", labelKey(labels))
	}
	return grid, nil
}

// FromArray converts a dense grid back into value records for a parameter.
// The grid's dimensions must match the projection frame exactly. The call is
// pure: it synthesizes records without touching the parameter's state.
func (p *Parameters) FromArray(name string, grid *Dense, periods ...int) ([]ValueRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.states[name]
	if !ok {
		return nil, argumentErrorf("name", "unknown parameter %q", name)
	}
	if grid == nil {
		return nil, argumentErrorf("grid", "nil grid")
	}
	ax, err := p.arrayAxesFor(st.spec, st, periods)
	if err != nil {
		return nil, err
	}
	if len(grid.dims) != len(ax.dims) {
		return nil, argumentErrorf("grid", "have dims %v, want %v", grid.dims, ax.dims)
	}
	for i := range ax.dims {
		if grid.dims[i] != ax.dims[i] {
			return nil, argumentErrorf("grid", "have dims %v, want %v", grid.dims, ax.dims)
		}
	}

	rows := 1
	if ax.axis != "" {
		rows = len(ax.periods)
	}
	combos := ax.comboCount()
	records := make([]ValueRecord, 0, rows*combos)
	for row := 0; row < rows; row++ {
		for combo := 0; combo < combos; combo++ {
			cell := grid.data[row*combos+combo]
			value, err := coerce(st.spec.Kind, cell)
			if err != nil {
				return nil, argumentErrorf("grid", "cell %d: %v", row*combos+combo, err)
			}
			labels := ax.comboAt(combo)
			if ax.axis != "" {
				labels[ax.axis] = Int(int64(ax.periods[row]))
			}
			records = append(records, ValueRecord{Labels: labels, Value: value})
		}
	}
	return records, nil
}
