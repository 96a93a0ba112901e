package dsp

import "math"

// Hann returns a periodic Hann window of length n, the variant used for
// spectral analysis so that overlapping frames sum to a constant.
func Hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}
