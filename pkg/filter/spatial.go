package filter

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"insaraps/internal/models"
	"insaraps/pkg/config"
)

// SpatialMethod selects the transfer function of the spatial low-pass
// filter.
type SpatialMethod int

const (
	SpatialButterworth SpatialMethod = iota
	SpatialGaussian
)

// ParseSpatialMethod maps a configuration string to a transfer function
// variant.
func ParseSpatialMethod(s string) (SpatialMethod, error) {
	switch s {
	case config.SpatialButterworth:
		return SpatialButterworth, nil
	case config.SpatialGaussian:
		return SpatialGaussian, nil
	}
	return 0, fmt.Errorf("invalid spatial filter method %q", s)
}

// CutoffFunc estimates a low-pass cut-off distance in kilometers from a
// phase slice. It is supplied by the covariance-fitting collaborator and
// consulted once per epoch slice when no fixed cut-off is configured.
type CutoffFunc func(phase *models.Grid) (float64, error)

// SpatialParams configures the spatial low-pass filter.
type SpatialParams struct {
	Method SpatialMethod

	// CutoffKm is the fixed cut-off distance; zero means estimate per
	// time step via EstimateCutoff.
	CutoffKm float64

	// Order is the Butterworth filter order.
	Order int

	// NaNFill selects spatial interpolation of NaN cells; when false
	// they are zero-filled instead.
	NaNFill bool

	// Interp is the interpolation variant used when NaNFill is set.
	Interp InterpMethod

	// EstimateCutoff is required when CutoffKm is zero.
	EstimateCutoff CutoffFunc
}

// SpatialLowPass filters every epoch slice of a cube spatially,
// producing the low spatial-frequency (atmospheric candidate) component.
// The cube is modified in place and returned.
//
// Per slice: NaN cells are filled (zero or interpolation), the cut-off
// is fixed or estimated from the slice's covariance, the slice is
// filtered in the frequency domain, and the original NaN mask is
// re-applied so masked geometry is never silently filled into the
// result. An all-NaN slice passes through unchanged.
func SpatialLowPass(ts *models.Cube, rdist *models.Grid, p SpatialParams) (*models.Cube, error) {
	if ts.Rows != rdist.Rows || ts.Cols != rdist.Cols {
		return nil, fmt.Errorf("cube shape %dx%d does not match distance field %dx%d",
			ts.Rows, ts.Cols, rdist.Rows, rdist.Cols)
	}
	if p.CutoffKm == 0 && p.EstimateCutoff == nil {
		return nil, fmt.Errorf("spatial cutoff is zero but no cutoff estimator is configured")
	}

	log.WithFields(log.Fields{
		"cutoff_km": p.CutoffKm,
		"steps":     ts.Steps,
	}).Info("Applying spatial low-pass filter")

	for k := 0; k < ts.Steps; k++ {
		slice := ts.Slice(k)
		if slice.AllNaN() {
			continue
		}

		mask := slice.Mask()
		if p.NaNFill {
			FillNaN(slice, p.Interp)
		} else {
			ZeroFill(slice)
		}

		cutoff := p.CutoffKm
		if cutoff == 0 {
			c, err := p.EstimateCutoff(slice)
			if err != nil {
				return nil, fmt.Errorf("cutoff estimation failed for step %d: %v", k, err)
			}
			cutoff = c
			log.WithFields(log.Fields{
				"step":      k,
				"cutoff_km": cutoff,
			}).Debug("Estimated spatial cutoff from covariance fit")
		}

		filtered := slpFilter(slice, rdist, cutoff, p.Method, p.Order)

		// Positions NaN in the input stay NaN in the output.
		for i, valid := range mask {
			if !valid {
				filtered.Data[i] = math.NaN()
			}
		}
		ts.SetSlice(k, filtered)
	}

	log.Debug("Finished applying spatial low-pass filter")
	return ts, nil
}

// slpFilter applies the frequency-domain low-pass transfer function to a
// single slice. The slice must hold no NaN.
func slpFilter(phase *models.Grid, rdist *models.Grid, cutoff float64, method SpatialMethod, order int) *models.Grid {
	rows, cols := phase.Rows, phase.Cols

	data := make([]complex128, rows*cols)
	for i, v := range phase.Data {
		data[i] = complex(v, 0)
	}

	spec := FFTShift(FFT2(data, rows, cols), rows, cols)

	// Radially symmetric transfer function over the centered distance
	// field.
	for i, d := range rdist.Data {
		var h float64
		if method == SpatialButterworth {
			h = 1 / (1 + math.Pow(d/cutoff, 2*float64(order)))
		} else {
			h = math.Exp(-d * d / (2 * cutoff * cutoff))
		}
		spec[i] *= complex(h, 0)
	}

	out := IFFT2(IFFTShift(spec, rows, cols), rows, cols)

	res := models.NewGrid(rows, cols)
	for i, v := range out {
		res.Data[i] = real(v)
	}
	return res
}
