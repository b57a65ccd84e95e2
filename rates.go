package params

// RateSeries holds per-period growth rates, one entry per window period
// indexed by TemporalWindow.Offset. A missing entry means zero growth.
type RateSeries []float64

// At returns the rate at offset, or 0 when the series does not cover it.
func (r RateSeries) At(offset int) float64 {
	if offset < 0 || offset >= len(r) {
		return 0
	}
	return r[offset]
}

func (r RateSeries) clone() RateSeries {
	if len(r) == 0 {
		return nil
	}
	out := make(RateSeries, len(r))
	copy(out, r)
	return out
}

// InflationRates returns a copy of the configured price-growth series, empty
// when none was supplied.
func (p *Parameters) InflationRates() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]float64{}, p.inflation...)
}

// WageGrowthRates returns a copy of the configured wage-growth series, empty
// when none was supplied.
func (p *Parameters) WageGrowthRates() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]float64{}, p.wageGrowth...)
}

// SetInflationRates replaces the price-growth series wholesale. Values already
// extended keep their old growth; re-extend or re-adjust to recompute them.
func (p *Parameters) SetInflationRates(rates []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflation = RateSeries(rates).clone()
}

// SetWageGrowthRates replaces the wage-growth series wholesale.
func (p *Parameters) SetWageGrowthRates(rates []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wageGrowth = RateSeries(rates).clone()
}

// rateFor returns the growth rate consumed when stepping the named parameter
// from period to period+1. Wage-indexed parameters draw from the wage series,
// everything else from the inflation series.
func (p *Parameters) rateFor(name string, period int) float64 {
	if p.window == nil {
		return 0
	}
	offset := p.window.Offset(period)
	if _, ok := p.cfg.wageIndexed[name]; ok {
		return p.wageGrowth.At(offset)
	}
	return p.inflation.At(offset)
}
