// Package covariance provides the planar distance field used by the
// spatial filter and the empirical covariance fit used to estimate the
// filter cut-off distance from the phase data itself.
package covariance

import (
	"math"

	"insaraps/internal/models"
)

// distFactor converts pixel sizes given in meters into kilometers.
const distFactor = 1.0e3

// RDist computes the per-pixel planar distance in kilometers from the
// FFT-grid center of a rows x cols raster with the given ground pixel
// sizes in meters. The field depends only on raster geometry and is
// computed once per run.
func RDist(rows, cols int, xSize, ySize float64) *models.Grid {
	cy := float64(rows / 2)
	cx := float64(cols / 2)

	g := models.NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		yy := (float64(r) - cy) * ySize
		for c := 0; c < cols; c++ {
			xx := (float64(c) - cx) * xSize
			g.Set(r, c, math.Sqrt(xx*xx+yy*yy)/distFactor)
		}
	}
	return g
}
