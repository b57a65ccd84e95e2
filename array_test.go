package params

import (
	"errors"
	"strings"
	"testing"
)

func TestDenseGridBasics(t *testing.T) {
	grid := NewDense(2, 3)
	if grid.Len() != 6 {
		t.Fatalf("Len = %d", grid.Len())
	}

	t.Run("index bounds", func(t *testing.T) {
		var argErr *ArgumentError
		if _, err := grid.At(2, 0); !errors.As(err, &argErr) {
			t.Fatalf("out-of-range error = %v", err)
		}
		if _, err := grid.At(0); !errors.As(err, &argErr) {
			t.Fatalf("axis-count error = %v", err)
		}
	})

	t.Run("cell count mismatch", func(t *testing.T) {
		var argErr *ArgumentError
		if _, err := DenseFromFloats([]int{2, 3}, []float64{1, 2}); !errors.As(err, &argErr) {
			t.Fatalf("mismatch error = %v", err)
		}
	})

	t.Run("floats reject non numeric cells", func(t *testing.T) {
		mixed, err := DenseFromScalars([]int{2}, []Scalar{Float(1), Str("x")})
		if err != nil {
			t.Fatalf("DenseFromScalars: %v", err)
		}
		if _, err := mixed.Floats(); err == nil {
			t.Fatal("Floats accepted a string cell")
		}
	})

	t.Run("all close", func(t *testing.T) {
		a, _ := DenseFromFloats([]int{2}, []float64{1.0, 2.0})
		b, _ := DenseFromFloats([]int{2}, []float64{1.005, 1.995})
		c, _ := DenseFromFloats([]int{2}, []float64{1.5, 2.0})
		d, _ := DenseFromFloats([]int{1, 2}, []float64{1.0, 2.0})
		if !a.AllClose(b, 0.01) {
			t.Fatal("values within tolerance compared unequal")
		}
		if a.AllClose(c, 0.01) {
			t.Fatal("values outside tolerance compared equal")
		}
		if a.AllClose(d, 0.01) {
			t.Fatal("different dims compared equal")
		}
		if a.AllClose(nil, 0.01) {
			t.Fatal("nil grid compared equal")
		}
	})
}

func TestToArrayProjectsWindowFrame(t *testing.T) {
	p := newAutoBracketEngine(t)

	grid, err := p.ToArray("income_bracket")
	if err != nil {
		t.Fatalf("ToArray: %v", err)
	}
	dims := grid.Dims()
	if len(dims) != 2 || dims[0] != 18 || dims[1] != 6 {
		t.Fatalf("dims = %v", dims)
	}

	// The first row is the 2013 defaults in filing-status declaration order.
	wantFirst := []float64{1000, 2000, 3000, 2000, 3000, 3000}
	for col, want := range wantFirst {
		got, err := grid.At(0, col)
		if err != nil {
			t.Fatalf("At(0, %d): %v", col, err)
		}
		if !closeEnough(got.Float(), want) {
			t.Fatalf("row 0 col %d = %v, want %v", col, got.Float(), want)
		}
	}
	// Later rows carry one extra period of growth each.
	for col, base := range wantFirst {
		got, err := grid.At(3, col)
		if err != nil {
			t.Fatalf("At(3, %d): %v", col, err)
		}
		want := base * 1.02 * 1.02 * 1.02
		if !closeEnough(got.Float(), want) {
			t.Fatalf("row 3 col %d = %v, want %v", col, got.Float(), want)
		}
	}

	t.Run("scalar parameter is one dimensional", func(t *testing.T) {
		grid, err := p.ToArray("benefit_base")
		if err != nil {
			t.Fatalf("ToArray: %v", err)
		}
		if dims := grid.Dims(); len(dims) != 1 || dims[0] != 18 {
			t.Fatalf("dims = %v", dims)
		}
	})

	t.Run("explicit periods", func(t *testing.T) {
		grid, err := p.ToArray("income_bracket", 2013)
		if err != nil {
			t.Fatalf("ToArray: %v", err)
		}
		if dims := grid.Dims(); len(dims) != 2 || dims[0] != 1 || dims[1] != 6 {
			t.Fatalf("dims = %v", dims)
		}
	})

	t.Run("unknown parameter", func(t *testing.T) {
		var argErr *ArgumentError
		if _, err := p.ToArray("no_such_param"); !errors.As(err, &argErr) {
			t.Fatalf("error = %v", err)
		}
	})
}

func TestToArrayFailsOnUncoveredCells(t *testing.T) {
	p := newBracketEngine(t)

	_, err := p.ToArray("benefit_base", 2014)
	wantErrorRow(t, err, "benefit_base", "no value at year=2014")
}

const staticDefaults = `{
	"schema": {
		"labels": {
			"region": {
				"type": "str",
				"validators": {"choice": {"choices": ["north", "south", "east"]}}
			}
		}
	},
	"regional_rate": {
		"title": "Regional rate",
		"description": "A rate that varies by region only.",
		"type": "float",
		"value": [
			{"region": "north", "value": 0.1},
			{"region": "south", "value": 0.2},
			{"region": "east", "value": 0.3}
		]
	},
	"base_rate": {
		"title": "Base rate",
		"description": "A single static rate.",
		"type": "float",
		"value": 0.05
	}
}`

func TestToArrayWithoutExtensionLabel(t *testing.T) {
	p, err := New([]byte(staticDefaults))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Initialize(2020, 1); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	grid, err := p.ToArray("regional_rate")
	if err != nil {
		t.Fatalf("ToArray: %v", err)
	}
	want, _ := DenseFromFloats([]int{3}, []float64{0.1, 0.2, 0.3})
	if !grid.AllClose(want, 0.001) {
		t.Fatalf("regional_rate grid = %v", grid.Values())
	}

	var argErr *ArgumentError
	if _, err := p.ToArray("regional_rate", 2020); !errors.As(err, &argErr) {
		t.Fatalf("explicit-period error = %v", err)
	}

	if got := valueAt(t, p, "base_rate", 2020).Float(); got != 0.05 {
		t.Fatalf("base_rate = %v", got)
	}
}

func TestFromArrayRoundTrip(t *testing.T) {
	p := newAutoBracketEngine(t)
	periods := []int{2013, 2014, 2015, 2016}

	grid, err := p.ToArray("income_bracket", periods...)
	if err != nil {
		t.Fatalf("ToArray: %v", err)
	}
	records, err := p.FromArray("income_bracket", grid, periods...)
	if err != nil {
		t.Fatalf("FromArray: %v", err)
	}
	if len(records) != 4*6 {
		t.Fatalf("FromArray produced %d records", len(records))
	}
	if err := p.Update(Revision{"income_bracket": records}, false, true); err != nil {
		t.Fatalf("Update with synthesized records: %v", err)
	}
	back, err := p.ToArray("income_bracket", periods...)
	if err != nil {
		t.Fatalf("ToArray after update: %v", err)
	}
	if !back.AllClose(grid, 0.01) {
		t.Fatalf("round trip changed values: %v -> %v", grid.Values(), back.Values())
	}
}

func TestFromArrayAppliesModifiedGrid(t *testing.T) {
	p := newAutoBracketEngine(t)
	periods := []int{2013, 2014, 2015, 2016}

	grid, err := p.ToArray("income_bracket", periods...)
	if err != nil {
		t.Fatalf("ToArray: %v", err)
	}
	cells, err := grid.Floats()
	if err != nil {
		t.Fatalf("Floats: %v", err)
	}
	// Scale the 2016 row in place; it is the last six cells.
	base := 3 * 6
	for col := 0; col < 6; col++ {
		cells[base+col] *= 1.5
	}
	modified, err := DenseFromFloats(grid.Dims(), cells)
	if err != nil {
		t.Fatalf("DenseFromFloats: %v", err)
	}
	records, err := p.FromArray("income_bracket", modified, periods...)
	if err != nil {
		t.Fatalf("FromArray: %v", err)
	}
	if err := p.Update(Revision{"income_bracket": records}, false, true); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := p.ToArray("income_bracket", 2016, 2017)
	if err != nil {
		t.Fatalf("ToArray: %v", err)
	}
	scaled, err := got.At(0, 0)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	wantScaled := 1000 * 1.02 * 1.02 * 1.02 * 1.5
	if !closeEnough(scaled.Float(), wantScaled) {
		t.Fatalf("2016 single cell = %v, want %v", scaled.Float(), wantScaled)
	}
	grown, err := got.At(1, 0)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if !closeEnough(grown.Float(), wantScaled*1.02) {
		t.Fatalf("2017 single cell = %v, want growth from the modified row", grown.Float())
	}
}

func TestFromArrayRejectsBadGrids(t *testing.T) {
	p := newAutoBracketEngine(t)
	periods := []int{2013, 2014, 2015, 2016}

	t.Run("nil grid", func(t *testing.T) {
		var argErr *ArgumentError
		if _, err := p.FromArray("income_bracket", nil, periods...); !errors.As(err, &argErr) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("dims mismatch", func(t *testing.T) {
		_, err := p.FromArray("income_bracket", NewDense(3, 6), periods...)
		var argErr *ArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("error = %v", err)
		}
		if !strings.Contains(err.Error(), "have dims [3 6], want [4 6]") {
			t.Fatalf("error text = %q", err.Error())
		}
	})

	t.Run("wrong cell kind", func(t *testing.T) {
		cells := make([]Scalar, 4*6)
		for i := range cells {
			cells[i] = Str("x")
		}
		bad, err := DenseFromScalars([]int{4, 6}, cells)
		if err != nil {
			t.Fatalf("DenseFromScalars: %v", err)
		}
		_, err = p.FromArray("income_bracket", bad, periods...)
		var argErr *ArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("error = %v", err)
		}
		if !strings.Contains(err.Error(), "cell 0") {
			t.Fatalf("error text = %q", err.Error())
		}
	})
}

func TestArrayFirstCacheStaysCurrent(t *testing.T) {
	p := newPolicy(t)

	before, err := p.ToArray("real_param")
	if err != nil {
		t.Fatalf("ToArray: %v", err)
	}
	first, _ := before.At(3)
	if first.Float() != 0.5 {
		t.Fatalf("cached default = %v", first.Float())
	}

	if err := p.Update(Revision{"real_param": map[int]any{2004: 0.75}}, false, true); err != nil {
		t.Fatalf("Update: %v", err)
	}
	after, err := p.ToArray("real_param")
	if err != nil {
		t.Fatalf("ToArray after update: %v", err)
	}
	revised, _ := after.At(3)
	if revised.Float() != 0.75 {
		t.Fatalf("cache served stale value %v", revised.Float())
	}
}
