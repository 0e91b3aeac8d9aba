// Package inversion solves the interferogram network for an incremental
// displacement time series. The pipeline consumes it through the Solver
// interface; the provided implementation is an unregularized SVD
// least-squares solve per pixel.
package inversion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"insaraps/internal/models"
)

// rcond is the effective-rank tolerance of the pseudo-inverse solve.
const rcond = 1e-10

// Observation is one interferogram restricted to the tile being solved,
// with its epoch pair resolved to indices into the epoch list.
type Observation struct {
	// Phase is the tile-local phase grid.
	Phase *models.Grid

	// MasterIdx and SlaveIdx are epoch list indices; the observation
	// spans the increments [MasterIdx, SlaveIdx).
	MasterIdx int
	SlaveIdx  int
}

// Solver produces an incremental time series cube of shape
// (rows, cols, len(spans)-1) from a set of tile-local observations.
// The optional mst cube holds one 0/1 usability layer per observation,
// typically a minimum-spanning-tree membership mask; nil means every
// observation is usable everywhere.
type Solver interface {
	Solve(obs []Observation, spans []float64, mst *models.Cube) (*models.Cube, error)
}

// SVDSolver inverts the network design matrix with a minimum-norm SVD
// least squares solve per pixel.
type SVDSolver struct{}

// NewSVDSolver returns the default SVD network solver.
func NewSVDSolver() *SVDSolver { return &SVDSolver{} }

// Solve computes per-pixel incremental phase between consecutive epochs.
// Pixels with no usable observations are left NaN across all steps.
func (s *SVDSolver) Solve(obs []Observation, spans []float64, mst *models.Cube) (*models.Cube, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("no observations to invert")
	}
	steps := len(spans) - 1
	if steps < 1 {
		return nil, fmt.Errorf("need at least two epochs, got %d", len(spans))
	}

	rows, cols := obs[0].Phase.Rows, obs[0].Phase.Cols
	for i, o := range obs {
		if o.Phase.Rows != rows || o.Phase.Cols != cols {
			return nil, fmt.Errorf("observation %d shape %dx%d does not match %dx%d",
				i, o.Phase.Rows, o.Phase.Cols, rows, cols)
		}
		if o.MasterIdx < 0 || o.SlaveIdx > steps || o.MasterIdx >= o.SlaveIdx {
			return nil, fmt.Errorf("observation %d has invalid epoch range [%d, %d)",
				i, o.MasterIdx, o.SlaveIdx)
		}
	}
	if mst != nil && (mst.Rows != rows || mst.Cols != cols || mst.Steps != len(obs)) {
		return nil, fmt.Errorf("mst mask shape (%d,%d,%d) does not match (%d,%d,%d)",
			mst.Rows, mst.Cols, mst.Steps, rows, cols, len(obs))
	}

	// Epoch interval lengths in years.
	dt := make([]float64, steps)
	for j := 0; j < steps; j++ {
		dt[j] = spans[j+1] - spans[j]
	}

	out := models.NewCubeNaN(rows, cols, steps)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			// Select the usable observations for this pixel.
			var sel []int
			for i, o := range obs {
				if math.IsNaN(o.Phase.At(r, c)) {
					continue
				}
				if mst != nil && mst.At(r, c, i) == 0 {
					continue
				}
				sel = append(sel, i)
			}
			if len(sel) == 0 {
				continue
			}

			// Velocity formulation: each observation is the sum of
			// interval velocities times interval lengths over its
			// epoch range.
			a := mat.NewDense(len(sel), steps, nil)
			b := mat.NewVecDense(len(sel), nil)
			for row, i := range sel {
				o := obs[i]
				for j := o.MasterIdx; j < o.SlaveIdx; j++ {
					a.Set(row, j, dt[j])
				}
				b.SetVec(row, o.Phase.At(r, c))
			}

			var svd mat.SVD
			if ok := svd.Factorize(a, mat.SVDThin); !ok {
				return nil, fmt.Errorf("SVD factorization failed at pixel (%d,%d)", r, c)
			}
			rank := svd.Rank(rcond)
			if rank == 0 {
				continue
			}
			var v mat.VecDense
			svd.SolveVecTo(&v, b, rank)

			px := out.Pixel(r, c)
			for j := 0; j < steps; j++ {
				px[j] = v.AtVec(j) * dt[j]
			}
		}
	}

	return out, nil
}
