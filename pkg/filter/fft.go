// Package filter implements the temporal and spatial low-pass filters of
// the atmospheric correction pipeline, together with the 2D FFT helpers
// and the NaN interpolation pre-pass they rely on.
package filter

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// FFT2 performs a 2D discrete Fourier transform on data laid out
// row-major as rows x cols. The transform is computed row-wise then
// column-wise using Gonum's complex FFT.
func FFT2(data []complex128, rows, cols int) []complex128 {
	out := make([]complex128, len(data))
	copy(out, data)

	// Row-wise transform
	rowFFT := fourier.NewCmplxFFT(cols)
	rowBuf := make([]complex128, cols)
	for r := 0; r < rows; r++ {
		copy(rowBuf, out[r*cols:(r+1)*cols])
		rowFFT.Coefficients(out[r*cols:(r+1)*cols], rowBuf)
	}

	// Column-wise transform
	colFFT := fourier.NewCmplxFFT(rows)
	colIn := make([]complex128, rows)
	colOut := make([]complex128, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			colIn[r] = out[r*cols+c]
		}
		colFFT.Coefficients(colOut, colIn)
		for r := 0; r < rows; r++ {
			out[r*cols+c] = colOut[r]
		}
	}

	return out
}

// IFFT2 performs the inverse 2D discrete Fourier transform, scaled so
// that IFFT2(FFT2(x)) == x.
func IFFT2(data []complex128, rows, cols int) []complex128 {
	out := make([]complex128, len(data))
	copy(out, data)

	rowFFT := fourier.NewCmplxFFT(cols)
	rowBuf := make([]complex128, cols)
	for r := 0; r < rows; r++ {
		copy(rowBuf, out[r*cols:(r+1)*cols])
		rowFFT.Sequence(out[r*cols:(r+1)*cols], rowBuf)
	}

	colFFT := fourier.NewCmplxFFT(rows)
	colIn := make([]complex128, rows)
	colOut := make([]complex128, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			colIn[r] = out[r*cols+c]
		}
		colFFT.Sequence(colOut, colIn)
		for r := 0; r < rows; r++ {
			out[r*cols+c] = colOut[r]
		}
	}

	// Gonum's Sequence is unscaled; divide by the element count to
	// invert Coefficients exactly.
	n := complex(float64(rows*cols), 0)
	for i := range out {
		out[i] /= n
	}

	return out
}

// FFTShift moves the zero-frequency component to the array center,
// shifting by floor(n/2) along each axis.
func FFTShift(data []complex128, rows, cols int) []complex128 {
	return circShift(data, rows, cols, rows/2, cols/2)
}

// IFFTShift undoes FFTShift, shifting by ceil(n/2) along each axis.
func IFFTShift(data []complex128, rows, cols int) []complex128 {
	return circShift(data, rows, cols, rows-rows/2, cols-cols/2)
}

// circShift cyclically shifts a 2D array down by dr rows and right by dc
// columns.
func circShift(data []complex128, rows, cols, dr, dc int) []complex128 {
	out := make([]complex128, len(data))
	for r := 0; r < rows; r++ {
		nr := (r + dr) % rows
		for c := 0; c < cols; c++ {
			nc := (c + dc) % cols
			out[nr*cols+nc] = data[r*cols+c]
		}
	}
	return out
}
