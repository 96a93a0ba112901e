package audio

import (
	"math"

	"samplemind/dsp"
)

const (
	// TargetPeak is the peak amplitude of every normalised buffer.
	TargetPeak = 0.95

	highPassCutoffHz = 80.0
	highPassOrder    = 4
)

// Peak returns the largest absolute sample value.
func Peak(samples []float64) float64 {
	var peak float64
	for _, v := range samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS returns the root mean square level of samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// NormalizePeak scales samples in place so the peak equals target. Silent
// buffers are left alone and reported as not normalised.
func NormalizePeak(samples []float64, target float64) bool {
	peak := Peak(samples)
	if peak == 0 || math.IsNaN(peak) || math.IsInf(peak, 0) {
		return false
	}
	gain := target / peak
	for i := range samples {
		samples[i] *= gain
	}
	return true
}

// sanitize zeroes non-finite samples a broken decoder may emit.
func sanitize(samples []float64) {
	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			samples[i] = 0
		}
	}
}

// Preprocess runs the post-decode chain on a mono buffer: peak normalise,
// remove DC and rumble with a zero-phase Butterworth high-pass, then restore
// the target peak the filter may have moved.
func Preprocess(samples []float64, sampleRate int) ([]float64, bool) {
	out := make([]float64, len(samples))
	copy(out, samples)
	sanitize(out)

	if !NormalizePeak(out, TargetPeak) {
		return out, false
	}
	out = dsp.HighPass(out, sampleRate, highPassCutoffHz, highPassOrder)
	NormalizePeak(out, TargetPeak)
	return out, true
}
