package dsp

import "math"

// Biquad is one second-order section in transposed direct form II, with the
// coefficients already divided by a0.
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// ButterworthHighPass designs an even-order Butterworth high-pass as a cascade
// of order/2 biquads. Odd orders are rounded up.
func ButterworthHighPass(order int, cutoffHz float64, sampleRate int) []Biquad {
	if order < 2 {
		order = 2
	}
	sections := (order + 1) / 2
	n := float64(2 * sections)

	w0 := 2 * math.Pi * cutoffHz / float64(sampleRate)
	cosW := math.Cos(w0)
	sinW := math.Sin(w0)

	out := make([]Biquad, sections)
	for i := 0; i < sections; i++ {
		q := 1 / (2 * math.Cos(math.Pi*float64(2*i+1)/(2*n)))
		alpha := sinW / (2 * q)
		a0 := 1 + alpha
		out[i] = Biquad{
			B0: (1 + cosW) / 2 / a0,
			B1: -(1 + cosW) / a0,
			B2: (1 + cosW) / 2 / a0,
			A1: -2 * cosW / a0,
			A2: (1 - alpha) / a0,
		}
	}
	return out
}

// steadyState returns the section state that makes a constant input x0
// produce a constant output, plus that output's gain.
func (b Biquad) steadyState() (z1, z2, gain float64) {
	gain = (b.B0 + b.B1 + b.B2) / (1 + b.A1 + b.A2)
	z1 = gain - b.B0
	z2 = b.B2 - b.A2*gain
	return z1, z2, gain
}

func runCascade(sections []Biquad, x []float64) []float64 {
	y := make([]float64, len(x))
	copy(y, x)
	if len(y) == 0 {
		return y
	}

	level := y[0]
	for _, s := range sections {
		z1, z2, gain := s.steadyState()
		z1 *= level
		z2 *= level
		for i, in := range y {
			out := s.B0*in + z1
			z1 = s.B1*in - s.A1*out + z2
			z2 = s.B2*in - s.A2*out
			y[i] = out
		}
		level *= gain
	}
	return y
}

// FiltFilt applies the cascade forward and backward for zero phase shift.
// The signal is extended by odd reflection at both ends and every section
// starts from its steady state, which keeps edge transients out of the output.
func FiltFilt(sections []Biquad, x []float64) []float64 {
	if len(x) < 2 || len(sections) == 0 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}

	padLen := 3 * (2*len(sections) + 1)
	if padLen > len(x)-1 {
		padLen = len(x) - 1
	}

	n := len(x)
	ext := make([]float64, n+2*padLen)
	for i := 0; i < padLen; i++ {
		ext[i] = 2*x[0] - x[padLen-i]
		ext[padLen+n+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[padLen:], x)

	y := runCascade(sections, ext)
	reverse(y)
	y = runCascade(sections, y)
	reverse(y)

	out := make([]float64, n)
	copy(out, y[padLen:padLen+n])
	return out
}

// HighPass removes content below cutoffHz with a zero-phase Butterworth
// filter of the given order. Cutoffs at or above Nyquist leave x untouched.
func HighPass(x []float64, sampleRate int, cutoffHz float64, order int) []float64 {
	if cutoffHz <= 0 || cutoffHz >= float64(sampleRate)/2 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	return FiltFilt(ButterworthHighPass(order, cutoffHz, sampleRate), x)
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
