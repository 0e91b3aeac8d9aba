package filter

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"insaraps/internal/models"
	"insaraps/pkg/config"
	"insaraps/pkg/epochs"
)

// TemporalMethod selects the weighting kernel of the temporal low-pass
// filter.
type TemporalMethod int

const (
	TemporalGaussian TemporalMethod = iota
	TemporalTriangular
	TemporalMean
)

// ParseTemporalMethod maps a configuration string to a kernel variant.
func ParseTemporalMethod(s string) (TemporalMethod, error) {
	switch s {
	case config.TemporalGaussian:
		return TemporalGaussian, nil
	case config.TemporalTriangular:
		return TemporalTriangular, nil
	case config.TemporalMean:
		return TemporalMean, nil
	}
	return 0, fmt.Errorf("invalid temporal filter method %q", s)
}

// kernelFunc fills wgt with the unnormalized filter weight of each time
// offset in yr.
type kernelFunc func(wgt, yr []float64, cutoff float64)

func gaussKernel(wgt, yr []float64, cutoff float64) {
	for i, y := range yr {
		v := y / cutoff
		wgt[i] = math.Exp(-v * v / 2)
	}
}

func triangleKernel(wgt, yr []float64, cutoff float64) {
	for i, y := range yr {
		w := cutoff - math.Abs(y)
		if w < 0 {
			w = 0
		}
		wgt[i] = w
	}
}

func meanKernel(wgt, yr []float64, cutoff float64) {
	for i := range wgt {
		wgt[i] = 1
	}
}

// TemporalLowPass smooths an incremental time series cube along the
// epoch axis with a weighted moving-window kernel. Each pixel is treated
// independently: its valid (non-NaN) epochs are selected, and for every
// valid epoch the output is the kernel-weighted sum over all valid
// epochs, with weights normalized to one. Pixels with fewer than
// minEpochs valid epochs are left NaN throughout.
//
// The returned cube has the same shape as the input; the caller subtracts
// it from the input to obtain the high-frequency residual.
func TemporalLowPass(ts *models.Cube, ep *epochs.List, method TemporalMethod, cutoffYears float64, minEpochs int) *models.Cube {
	log.WithFields(log.Fields{
		"cutoff_years": cutoffYears,
		"min_epochs":   minEpochs,
	}).Info("Applying temporal low-pass filter")

	var kernel kernelFunc
	switch method {
	case TemporalGaussian:
		kernel = gaussKernel
	case TemporalTriangular:
		kernel = triangleKernel
	default:
		kernel = meanKernel
	}

	// Accumulated time of each increment: the midpoint between the
	// spans of its bounding epochs.
	span := make([]float64, ts.Steps)
	for k := 0; k < ts.Steps; k++ {
		span[k] = ep.Spans[k] + (ep.Spans[k+1]-ep.Spans[k])/2
	}

	out := models.NewCubeNaN(ts.Rows, ts.Cols, ts.Steps)

	sel := make([]int, 0, ts.Steps)
	yr := make([]float64, 0, ts.Steps)
	wgt := make([]float64, 0, ts.Steps)
	vals := make([]float64, 0, ts.Steps)

	for r := 0; r < ts.Rows; r++ {
		for c := 0; c < ts.Cols; c++ {
			px := ts.Pixel(r, c)

			sel = sel[:0]
			vals = vals[:0]
			for k, v := range px {
				if !math.IsNaN(v) {
					sel = append(sel, k)
					vals = append(vals, v)
				}
			}
			m := len(sel)
			if m < minEpochs {
				continue
			}

			outPx := out.Pixel(r, c)
			yr = yr[:m]
			wgt = wgt[:m]
			for k := 0; k < m; k++ {
				for j, s := range sel {
					yr[j] = span[s] - span[sel[k]]
				}
				kernel(wgt, yr, cutoffYears)
				floats.Scale(1/floats.Sum(wgt), wgt)
				outPx[sel[k]] = floats.Dot(vals, wgt)
			}
		}
	}

	log.Debug("Finished applying temporal low-pass filter")
	return out
}
