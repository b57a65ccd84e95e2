package params

// TemporalWindow tracks the period bounds and cursor of one engine instance.
// Invariant: Start <= Current <= End.
type TemporalWindow struct {
	Start   int
	Current int
	End     int
}

// NumPeriods returns the count of periods covered by the window.
func (w TemporalWindow) NumPeriods() int {
	return w.End - w.Start + 1
}

// Contains reports whether period falls inside the window bounds.
func (w TemporalWindow) Contains(period int) bool {
	return period >= w.Start && period <= w.End
}

// Periods returns every period in the window in ascending order.
func (w TemporalWindow) Periods() []int {
	out := make([]int, 0, w.NumPeriods())
	for p := w.Start; p <= w.End; p++ {
		out = append(out, p)
	}
	return out
}

// Offset returns the zero-based position of period relative to Start. Rate
// series are indexed by this offset.
func (w TemporalWindow) Offset(period int) int {
	return period - w.Start
}
