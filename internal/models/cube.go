package models

import (
	"math"
)

// Cube is a dense 3D array of shape (rows, cols, steps) where the third
// axis holds per-interval values such as incremental time series steps.
// The layout keeps the step axis contiguous per pixel, so walking a
// single pixel's history is a sequential scan.
type Cube struct {
	Rows, Cols, Steps int

	// Data is indexed as Data[(r*Cols+c)*Steps+k]
	Data []float64
}

// NewCube creates a zero-valued cube.
func NewCube(rows, cols, steps int) *Cube {
	return &Cube{
		Rows:  rows,
		Cols:  cols,
		Steps: steps,
		Data:  make([]float64, rows*cols*steps),
	}
}

// NewCubeNaN creates a cube with every cell set to NaN.
func NewCubeNaN(rows, cols, steps int) *Cube {
	c := NewCube(rows, cols, steps)
	nan := math.NaN()
	for i := range c.Data {
		c.Data[i] = nan
	}
	return c
}

// At returns the value at row r, column c, step k.
func (c *Cube) At(r, col, k int) float64 {
	return c.Data[(r*c.Cols+col)*c.Steps+k]
}

// Set stores v at row r, column c, step k.
func (c *Cube) Set(r, col, k int, v float64) {
	c.Data[(r*c.Cols+col)*c.Steps+k] = v
}

// Pixel returns the per-step values of a single pixel as a slice view
// into the cube's backing array. Mutating it mutates the cube.
func (c *Cube) Pixel(r, col int) []float64 {
	off := (r*c.Cols + col) * c.Steps
	return c.Data[off : off+c.Steps]
}

// Slice copies out the 2D grid at step k.
func (c *Cube) Slice(k int) *Grid {
	g := NewGrid(c.Rows, c.Cols)
	for r := 0; r < c.Rows; r++ {
		for col := 0; col < c.Cols; col++ {
			g.Set(r, col, c.At(r, col, k))
		}
	}
	return g
}

// SetSlice writes the 2D grid g into the cube at step k.
func (c *Cube) SetSlice(k int, g *Grid) {
	for r := 0; r < c.Rows; r++ {
		for col := 0; col < c.Cols; col++ {
			c.Set(r, col, k, g.At(r, col))
		}
	}
}

// Clone returns a deep copy of the cube.
func (c *Cube) Clone() *Cube {
	out := NewCube(c.Rows, c.Cols, c.Steps)
	copy(out.Data, c.Data)
	return out
}

// SubAssign subtracts other from c element-wise, in place.
func (c *Cube) SubAssign(other *Cube) {
	for i := range c.Data {
		c.Data[i] -= other.Data[i]
	}
}
