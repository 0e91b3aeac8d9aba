package filter_test

import (
	"math"
	"testing"

	"insaraps/internal/models"
	"insaraps/pkg/filter"
)

// TestZeroFill verifies NaN cells become zero and valid cells are
// untouched.
func TestZeroFill(t *testing.T) {
	g := models.NewGrid(2, 2)
	g.Set(0, 0, 1.5)
	g.Set(0, 1, math.NaN())
	g.Set(1, 0, -2.0)
	g.Set(1, 1, math.NaN())

	filter.ZeroFill(g)

	if g.At(0, 0) != 1.5 || g.At(1, 0) != -2.0 {
		t.Errorf("Expected valid cells untouched, got %v and %v", g.At(0, 0), g.At(1, 0))
	}
	if g.At(0, 1) != 0 || g.At(1, 1) != 0 {
		t.Errorf("Expected NaN cells zeroed, got %v and %v", g.At(0, 1), g.At(1, 1))
	}
}

// TestFillNaNNearest verifies nearest-neighbor fill copies the closest
// valid value and leaves no NaN behind.
func TestFillNaNNearest(t *testing.T) {
	g := models.NewGridNaN(4, 4)
	// Left half 1.0, right half 9.0, with a NaN column between.
	for r := 0; r < 4; r++ {
		g.Set(r, 0, 1.0)
		g.Set(r, 3, 9.0)
	}

	filter.FillNaN(g, filter.InterpNearest)

	for r := 0; r < 4; r++ {
		if got := g.At(r, 1); got != 1.0 {
			t.Errorf("Row %d col 1: expected nearest value 1.0, got %v", r, got)
		}
		if got := g.At(r, 2); got != 9.0 {
			t.Errorf("Row %d col 2: expected nearest value 9.0, got %v", r, got)
		}
	}
}

// TestFillNaNIDW verifies inverse-distance weighting yields a value
// between the surrounding valid values.
func TestFillNaNIDW(t *testing.T) {
	g := models.NewGridNaN(3, 3)
	g.Set(0, 0, 0.0)
	g.Set(0, 2, 4.0)
	g.Set(2, 0, 0.0)
	g.Set(2, 2, 4.0)

	filter.FillNaN(g, filter.InterpIDW)

	got := g.At(1, 1)
	if math.IsNaN(got) || got <= 0 || got >= 4 {
		t.Errorf("Expected interpolated value strictly between 0 and 4, got %v", got)
	}
	// Equidistant from all four corners.
	if math.Abs(got-2.0) > 1e-9 {
		t.Errorf("Expected 2.0 at the grid center, got %v", got)
	}
}

// TestFillNaNAllNaN verifies a slice with no valid cells falls back to
// zero fill.
func TestFillNaNAllNaN(t *testing.T) {
	g := models.NewGridNaN(3, 3)
	filter.FillNaN(g, filter.InterpNearest)
	for i, v := range g.Data {
		if v != 0 {
			t.Errorf("Index %d: expected zero fallback, got %v", i, v)
		}
	}
}

// TestParseInterpMethod covers the configuration string mapping.
func TestParseInterpMethod(t *testing.T) {
	if got, err := filter.ParseInterpMethod("nearest"); err != nil || got != filter.InterpNearest {
		t.Errorf("ParseInterpMethod(nearest): got %v, %v", got, err)
	}
	if got, err := filter.ParseInterpMethod("idw"); err != nil || got != filter.InterpIDW {
		t.Errorf("ParseInterpMethod(idw): got %v, %v", got, err)
	}
	if _, err := filter.ParseInterpMethod("cubic"); err == nil {
		t.Errorf("Expected error for unknown method")
	}
}
