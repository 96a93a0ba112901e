package features

import (
	"fmt"
	"math"

	"samplemind/dsp"
)

const minHPSSSamples = 512

// softMasks splits magnitude into harmonic and percussive Wiener-style masks.
// Harmonic content is smooth along time, percussive content along frequency.
func softMasks(magnitude [][]float64, kernel int) (harmonic, percussive [][]float64) {
	h := dsp.MedianFilterTime(magnitude, kernel)
	p := dsp.MedianFilterFreq(magnitude, kernel)

	harmonic = make([][]float64, len(magnitude))
	percussive = make([][]float64, len(magnitude))
	for t := range magnitude {
		hm := make([]float64, len(magnitude[t]))
		pm := make([]float64, len(magnitude[t]))
		for k := range magnitude[t] {
			hh, pp := h[t][k]*h[t][k], p[t][k]*p[t][k]
			if total := hh + pp; total > 0 {
				hm[k] = hh / total
				pm[k] = pp / total
			} else {
				hm[k], pm[k] = 0.5, 0.5
			}
		}
		harmonic[t], percussive[t] = hm, pm
	}
	return harmonic, percussive
}

// harmonicRatio is the harmonic share of the masked spectrogram energy.
func harmonicRatio(magnitude, hMask, pMask [][]float64) float64 {
	var eh, ep float64
	for t, row := range magnitude {
		for k, m := range row {
			h, p := hMask[t][k]*m, pMask[t][k]*m
			eh += h * h
			ep += p * p
		}
	}
	if eh+ep == 0 {
		return 0
	}
	return eh / (eh + ep)
}

// separate reconstructs harmonic and percussive signals from spec. Whatever
// the masks fail to reconstruct is shared equally, so h+p matches samples.
func separate(samples []float64, spec *dsp.Spectrogram, hMask, pMask [][]float64) ([]float64, []float64, error) {
	if len(samples) < minHPSSSamples {
		return nil, nil, fmt.Errorf("%w: %d samples, need at least %d", ErrHPSS, len(samples), minHPSSSamples)
	}
	for i, v := range samples {
		if !finite(v) {
			return nil, nil, fmt.Errorf("%w: non-finite sample at %d", ErrHPSS, i)
		}
	}

	h := dsp.ISTFT(spec.Masked(hMask))
	p := dsp.ISTFT(spec.Masked(pMask))
	for i, v := range samples {
		residual := v - h[i] - p[i]
		h[i] += residual / 2
		p[i] += residual / 2
	}
	return h, p, nil
}

func energy(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func componentSummary(x []float64, share float64, sampleRate, nfft, hop int) (ComponentSummary, error) {
	spec, err := dsp.STFT(x, nfft, hop)
	if err != nil {
		return ComponentSummary{}, err
	}
	freqs := dsp.BinFrequencies(sampleRate, nfft)
	var centroid float64
	magnitude := spec.Magnitude()
	for _, row := range magnitude {
		centroid += spectralCentroid(row, freqs)
	}
	if len(magnitude) > 0 {
		centroid /= float64(len(magnitude))
	}

	var peak float64
	for _, v := range x {
		peak = math.Max(peak, math.Abs(v))
	}
	return ComponentSummary{
		RMS:          Float(rootMeanSquare(x)),
		Peak:         Float(peak),
		EnergyRatio:  Float(share),
		CentroidMean: Float(centroid),
	}, nil
}

func computeDecomposition(samples []float64, fr *frameData, hMask, pMask [][]float64) (*Decomposition, error) {
	h, p, err := separate(samples, fr.spec, hMask, pMask)
	if err != nil {
		return nil, err
	}

	eh, ep := energy(h), energy(p)
	hShare, pShare := 0.0, 0.0
	if eh+ep > 0 {
		hShare, pShare = eh/(eh+ep), ep/(eh+ep)
	}

	harmonic, err := componentSummary(h, hShare, fr.sampleRate, fr.nfft, fr.hop)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHPSS, err)
	}
	percussive, err := componentSummary(p, pShare, fr.sampleRate, fr.nfft, fr.hop)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHPSS, err)
	}

	var worst float64
	for i, v := range samples {
		worst = math.Max(worst, math.Abs(v-h[i]-p[i]))
	}
	return &Decomposition{
		Harmonic:            harmonic,
		Percussive:          percussive,
		ReconstructionError: Float(worst),
	}, nil
}
