package covariance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"insaraps/internal/models"
	"insaraps/pkg/filter"
)

// minAlpha bounds the fitted decay rate away from zero so that the
// derived cut-off 1/alpha stays finite. A slice with no measurable
// spatial decorrelation (a constant field, for example) yields this
// value, i.e. an effectively infinite cut-off that passes the field
// through the low-pass filter unchanged.
const minAlpha = 1e-6

// nBins is the number of distance bins used for the radial average of
// the autocovariance estimate.
const nBins = 50

// Fit holds the parameters of an exponential covariance model
// c(d) = Sill * exp(-Alpha*d), with d in kilometers.
type Fit struct {
	Sill  float64
	Alpha float64
}

// FitExponential estimates an exponential covariance model for a phase
// slice. The 2D autocovariance is computed by FFT, radially averaged
// over the precomputed distance field, and the decay rate is obtained by
// a log-linear least squares fit. NaN cells are treated as zero after
// mean removal.
func FitExponential(phase *models.Grid, rdist *models.Grid) (Fit, error) {
	if phase.Rows != rdist.Rows || phase.Cols != rdist.Cols {
		return Fit{}, fmt.Errorf("phase shape %dx%d does not match distance field %dx%d",
			phase.Rows, phase.Cols, rdist.Rows, rdist.Cols)
	}
	rows, cols := phase.Rows, phase.Cols
	n := rows * cols

	// Demean over valid cells, zero-fill the rest.
	var sum float64
	var count int
	for _, v := range phase.Data {
		if !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return Fit{}, fmt.Errorf("cannot fit covariance model to all-NaN slice")
	}
	mean := sum / float64(count)

	// A slice with no variance carries no spatial structure to fit.
	var variance float64
	for _, v := range phase.Data {
		if !math.IsNaN(v) {
			variance += (v - mean) * (v - mean)
		}
	}
	variance /= float64(count)
	if variance < 1e-12 {
		return Fit{Sill: variance, Alpha: minAlpha}, nil
	}

	centered := make([]complex128, n)
	for i, v := range phase.Data {
		if !math.IsNaN(v) {
			centered[i] = complex(v-mean, 0)
		}
	}

	// Autocovariance via the Wiener-Khinchin relation, shifted so the
	// zero lag lands on the same center pixel as the distance field.
	spec := filter.FFT2(centered, rows, cols)
	for i, v := range spec {
		re, im := real(v), imag(v)
		spec[i] = complex(re*re+im*im, 0)
	}
	acf := filter.IFFT2(spec, rows, cols)
	acf = filter.FFTShift(acf, rows, cols)

	acg := make([]float64, n)
	for i, v := range acf {
		acg[i] = real(v) / float64(count)
	}

	// Zero-lag autocovariance is the sample variance.
	center := (rows/2)*cols + cols/2
	sill := acg[center]
	if sill <= 0 {
		return Fit{Sill: 0, Alpha: minAlpha}, nil
	}

	// Radially average the autocovariance out to half the maximum lag
	// distance, where the circular estimate is still meaningful.
	var maxDist float64
	for _, d := range rdist.Data {
		if d > maxDist {
			maxDist = d
		}
	}
	maxDist /= 2
	if maxDist <= 0 {
		return Fit{Sill: sill, Alpha: minAlpha}, nil
	}

	binSum := make([]float64, nBins)
	binCount := make([]int, nBins)
	for i, d := range rdist.Data {
		if d > maxDist {
			continue
		}
		b := int(d / maxDist * float64(nBins))
		if b >= nBins {
			b = nBins - 1
		}
		binSum[b] += acg[i]
		binCount[b]++
	}

	// Log-linearize c(d) = sill*exp(-alpha*d) over bins with positive
	// mean covariance and fit the slope through the origin.
	var xs, ys []float64
	for b := 0; b < nBins; b++ {
		if binCount[b] == 0 {
			continue
		}
		c := binSum[b] / float64(binCount[b])
		if c <= 0 || c > sill {
			continue
		}
		d := (float64(b) + 0.5) * maxDist / float64(nBins)
		xs = append(xs, d)
		ys = append(ys, math.Log(c/sill))
	}
	if len(xs) < 2 {
		return Fit{Sill: sill, Alpha: minAlpha}, nil
	}

	_, beta := stat.LinearRegression(xs, ys, nil, true)
	alpha := -beta
	if alpha < minAlpha || math.IsNaN(alpha) {
		alpha = minAlpha
	}
	return Fit{Sill: sill, Alpha: alpha}, nil
}

// Cutoff returns the low-pass cut-off distance in kilometers implied by
// the fitted model.
func (f Fit) Cutoff() float64 {
	return 1.0 / f.Alpha
}
