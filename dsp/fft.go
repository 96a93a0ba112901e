package dsp

// Fast Fourier Transform
//
// Real-input transforms are delegated to gonum's FFTPACK port. A plan is
// bound to one length and keeps internal work buffers, so a *FFT must not be
// shared between goroutines; create one per worker instead.

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// FFT is a reusable real transform of fixed length.
type FFT struct {
	n    int
	plan *fourier.FFT
}

// NewFFT prepares a transform for frames of length n.
func NewFFT(n int) *FFT {
	return &FFT{n: n, plan: fourier.NewFFT(n)}
}

// Len returns the frame length the plan was built for.
func (f *FFT) Len() int { return f.n }

// Bins returns the number of non-negative frequency bins, n/2+1.
func (f *FFT) Bins() int { return f.n/2 + 1 }

// Forward returns the n/2+1 non-negative frequency coefficients of frame.
func (f *FFT) Forward(dst []complex128, frame []float64) []complex128 {
	if len(dst) != f.Bins() {
		dst = make([]complex128, f.Bins())
	}
	return f.plan.Coefficients(dst, frame)
}

// Inverse reconstructs a real frame from its coefficients. Unlike the
// underlying gonum call the result is scaled by 1/n, so Inverse(Forward(x)) == x.
func (f *FFT) Inverse(dst []float64, coeffs []complex128) []float64 {
	if len(dst) != f.n {
		dst = make([]float64, f.n)
	}
	dst = f.plan.Sequence(dst, coeffs)
	scale := 1 / float64(f.n)
	for i := range dst {
		dst[i] *= scale
	}
	return dst
}

// BinFrequencies returns the centre frequency in Hz of each FFT bin.
func BinFrequencies(sampleRate, nfft int) []float64 {
	bins := nfft/2 + 1
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}
	return freqs
}
