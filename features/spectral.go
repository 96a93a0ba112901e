package features

// Spectral descriptors
//
// Every per-frame descriptor here is computed from the one shared centred
// STFT, or from centred time-domain frames of the same length and hop, so
// frame t always refers to the same instant across features:
//
//   - Centroid: magnitude-weighted mean frequency ("brightness")
//   - Bandwidth: magnitude-weighted spread around the centroid
//   - Rolloff: frequency below which 85% of the magnitude lies
//   - Zero crossing rate: sign changes per sample within the frame
//   - RMS: root mean square amplitude of the frame
//   - Flatness: geometric over arithmetic mean of the power spectrum
//   - Contrast: peak/valley level difference in octave sub-bands
//
// Silent frames yield 0 for every descriptor.

import (
	"math"
	"sort"
)

const rolloffFraction = 0.85

func spectralCentroid(magnitude, freqs []float64) float64 {
	var weightedSum, total float64
	for i := range magnitude {
		weightedSum += magnitude[i] * freqs[i]
		total += magnitude[i]
	}
	if total == 0 {
		return 0
	}
	return weightedSum / total
}

func spectralBandwidth(magnitude, freqs []float64, centroid float64) float64 {
	var variance, total float64
	for i := range magnitude {
		deviation := freqs[i] - centroid
		variance += magnitude[i] * deviation * deviation
		total += magnitude[i]
	}
	if total == 0 {
		return 0
	}
	return math.Sqrt(variance / total)
}

func spectralRolloff(magnitude, freqs []float64) float64 {
	var total float64
	for _, mag := range magnitude {
		total += mag
	}
	if total == 0 {
		return 0
	}

	target := rolloffFraction * total
	var cumulative float64
	for i, mag := range magnitude {
		cumulative += mag
		if cumulative >= target {
			return freqs[i]
		}
	}
	return freqs[len(freqs)-1]
}

func spectralFlatness(power []float64) float64 {
	if len(power) == 0 {
		return 0
	}
	const amin = 1e-10
	var logSum, arithmetic float64
	for _, p := range power {
		v := math.Max(p, amin)
		logSum += math.Log(v)
		arithmetic += v
	}
	n := float64(len(power))
	return math.Exp(logSum/n) / (arithmetic / n)
}

// contrastEdges are the sub-band boundaries in Hz; the last band runs to Nyquist.
var contrastEdges = []float64{0, 200, 400, 800, 1600, 3200, 6400}

// spectralContrast returns, per sub-band, the dB difference between the mean
// of the loudest and quietest 2% of bins.
func spectralContrast(power, freqs []float64) []float64 {
	const quantile = 0.02
	out := make([]float64, len(contrastEdges))
	for b := range contrastEdges {
		lo := contrastEdges[b]
		hi := math.Inf(1)
		if b+1 < len(contrastEdges) {
			hi = contrastEdges[b+1]
		}

		var band []float64
		for k, f := range freqs {
			if f >= lo && f < hi {
				band = append(band, power[k])
			}
		}
		if len(band) == 0 {
			continue
		}
		sort.Float64s(band)
		n := int(math.Max(1, math.Round(quantile*float64(len(band)))))
		var valley, peak float64
		for i := 0; i < n; i++ {
			valley += band[i]
			peak += band[len(band)-1-i]
		}
		out[b] = powerToDB(peak/float64(n)) - powerToDB(valley/float64(n))
	}
	return out
}

// centredFrames calls fn for each frame of length frameLength centred on
// sample t*hop. Samples outside the signal repeat the nearest edge value
// when edge is set and are zero otherwise.
func centredFrames(samples []float64, frameLength, hop int, edge bool, fn func(t int, frame []float64)) {
	frames := 1 + len(samples)/hop
	half := frameLength / 2
	frame := make([]float64, frameLength)
	for t := 0; t < frames; t++ {
		start := t*hop - half
		for i := range frame {
			idx := start + i
			switch {
			case idx >= 0 && idx < len(samples):
				frame[i] = samples[idx]
			case !edge || len(samples) == 0:
				frame[i] = 0
			case idx < 0:
				frame[i] = samples[0]
			default:
				frame[i] = samples[len(samples)-1]
			}
		}
		fn(t, frame)
	}
}

func zeroCrossingRate(frame []float64) float64 {
	if len(frame) <= 1 {
		return 0
	}
	var count float64
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			count++
		}
	}
	return count / float64(len(frame))
}

func rootMeanSquare(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func powerToDB(p float64) float64 {
	return 10 * math.Log10(math.Max(p, 1e-10))
}

func amplitudeToDBFS(a float64) float64 {
	if a <= 1e-6 {
		return -120
	}
	return 20 * math.Log10(a)
}

func computeSpectral(fr *frameData, samples []float64, nfft, hop int) *Spectral {
	frames := len(fr.magnitude)
	s := &Spectral{
		Centroid:         make(Series, frames),
		Bandwidth:        make(Series, frames),
		Rolloff:          make(Series, frames),
		ZeroCrossingRate: make(Series, frames),
		RMS:              make(Series, frames),
	}

	for t, mag := range fr.magnitude {
		c := spectralCentroid(mag, fr.freqs)
		s.Centroid[t] = c
		s.Bandwidth[t] = spectralBandwidth(mag, fr.freqs, c)
		s.Rolloff[t] = spectralRolloff(mag, fr.freqs)
	}

	centredFrames(samples, nfft, hop, true, func(t int, frame []float64) {
		if t < frames {
			s.ZeroCrossingRate[t] = zeroCrossingRate(frame)
		}
	})
	centredFrames(samples, nfft, hop, false, func(t int, frame []float64) {
		if t < frames {
			s.RMS[t] = rootMeanSquare(frame)
		}
	})
	return s
}
