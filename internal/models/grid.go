// Package models holds the dense array types shared across the correction
// pipeline. Missing observations are represented by NaN, matching the
// convention of the interferogram rasters themselves.
package models

import (
	"math"
)

// Grid is a dense 2D array in row-major order.
type Grid struct {
	// Rows and Cols are the grid dimensions in pixels
	Rows, Cols int

	// Data is the flat backing array, indexed as Data[r*Cols+c]
	Data []float64
}

// NewGrid creates a zero-valued grid with the given dimensions.
func NewGrid(rows, cols int) *Grid {
	return &Grid{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
	}
}

// NewGridNaN creates a grid with every cell set to NaN.
func NewGridNaN(rows, cols int) *Grid {
	g := NewGrid(rows, cols)
	nan := math.NaN()
	for i := range g.Data {
		g.Data[i] = nan
	}
	return g
}

// At returns the value at row r, column c.
func (g *Grid) At(r, c int) float64 {
	return g.Data[r*g.Cols+c]
}

// Set stores v at row r, column c.
func (g *Grid) Set(r, c int, v float64) {
	g.Data[r*g.Cols+c] = v
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := NewGrid(g.Rows, g.Cols)
	copy(out.Data, g.Data)
	return out
}

// AllNaN reports whether every cell of the grid is NaN.
func (g *Grid) AllNaN() bool {
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Mask returns a boolean validity mask, true where the cell holds a
// usable (non-NaN) value.
func (g *Grid) Mask() []bool {
	m := make([]bool, len(g.Data))
	for i, v := range g.Data {
		m[i] = !math.IsNaN(v)
	}
	return m
}
