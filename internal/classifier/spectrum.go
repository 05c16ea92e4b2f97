package classifier

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Spectrum is a one-sided power spectral density.
type Spectrum struct {
	Freqs   []float64
	Density []float64
}

// PowerAt returns the density of the bin nearest to freq.
func (s Spectrum) PowerAt(freq float64) float64 {
	if len(s.Freqs) < 2 {
		return 0
	}
	step := s.Freqs[1] - s.Freqs[0]
	i := int(math.Round(freq / step))
	if i < 0 || i >= len(s.Density) {
		return 0
	}
	return s.Density[i]
}

// Welch estimates the power spectral density of x sampled at fs using
// Welch's method: Hann-windowed segments of nperseg samples overlapping by
// noverlap, each detrended by its mean, averaged periodograms.
func Welch(x []float64, fs, nperseg, noverlap int) (Spectrum, error) {
	if nperseg <= 0 || nperseg > len(x) {
		return Spectrum{}, fmt.Errorf("segment length %d invalid for %d samples", nperseg, len(x))
	}
	if noverlap < 0 || noverlap >= nperseg {
		return Spectrum{}, fmt.Errorf("overlap %d invalid for segment length %d", noverlap, nperseg)
	}

	win := make([]float64, nperseg)
	for i := range win {
		win[i] = 1
	}
	window.Hann(win)
	// Density scaling: |X|^2 / (fs * sum(w^2)).
	scale := 1 / (float64(fs) * floats.Dot(win, win))

	fft := fourier.NewFFT(nperseg)
	bins := nperseg/2 + 1
	density := make([]float64, bins)
	seg := make([]float64, nperseg)
	var coeffs []complex128

	step := nperseg - noverlap
	segments := 0
	for start := 0; start+nperseg <= len(x); start += step {
		copy(seg, x[start:start+nperseg])
		mean := stat.Mean(seg, nil)
		for i := range seg {
			seg[i] = (seg[i] - mean) * win[i]
		}
		coeffs = fft.Coefficients(coeffs, seg)
		for k, c := range coeffs {
			p := cmplx.Abs(c)
			density[k] += p * p * scale
		}
		segments++
	}

	floats.Scale(1/float64(segments), density)
	// Fold negative frequencies into the one-sided estimate. DC and, for even
	// lengths, Nyquist have no mirror.
	last := bins
	if nperseg%2 == 0 {
		last = bins - 1
	}
	for k := 1; k < last; k++ {
		density[k] *= 2
	}

	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = fft.Freq(k) * float64(fs)
	}
	return Spectrum{Freqs: freqs, Density: density}, nil
}

// Detrend removes the least-squares line from x in place.
func Detrend(x []float64) {
	if len(x) < 2 {
		return
	}
	t := make([]float64, len(x))
	for i := range t {
		t[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(t, x, nil, false)
	for i := range x {
		x[i] -= alpha + beta*t[i]
	}
}
