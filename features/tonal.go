package features

import "math"

var pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Krumhansl-Kessler key profiles, tonic first.
var (
	majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

const (
	// majorTolerance lets a major key win against a minor key whose
	// correlation is only marginally higher.
	majorTolerance = 0.03
	lowConfidence  = 0.1
	minChromaHz    = 32.7
)

// chromagram maps each frame's power spectrum onto 12 pitch classes and
// scales every frame so its loudest class is 1. The result is [frame][class].
func chromagram(power [][]float64, freqs []float64) [][]float64 {
	classes := make([]int, len(freqs))
	for k, f := range freqs {
		if f < minChromaHz {
			classes[k] = -1
			continue
		}
		semitones := int(math.Round(12 * math.Log2(f/440)))
		classes[k] = ((semitones+9)%12 + 12) % 12
	}

	out := make([][]float64, len(power))
	for t, row := range power {
		var frame [12]float64
		for k, p := range row {
			if c := classes[k]; c >= 0 {
				frame[c] += p
			}
		}
		var top float64
		for _, v := range frame {
			top = math.Max(top, v)
		}
		normalized := make([]float64, 12)
		if top > 0 {
			for c, v := range frame {
				normalized[c] = v / top
			}
		}
		out[t] = normalized
	}
	return out
}

// pitchDistribution time-averages a chromagram into a distribution summing
// to 1, or all zeros for a silent input.
func pitchDistribution(chroma [][]float64) [12]float64 {
	var dist [12]float64
	for _, frame := range chroma {
		for c, v := range frame {
			dist[c] += v
		}
	}
	var total float64
	for _, v := range dist {
		total += v
	}
	if total <= 0 {
		return dist
	}
	for c := range dist {
		dist[c] /= total
	}
	return dist
}

func pearson(x, y [12]float64) float64 {
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= 12
	my /= 12

	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}

func rotate(profile [12]float64, tonic int) [12]float64 {
	var out [12]float64
	for i := range out {
		out[i] = profile[((i-tonic)%12+12)%12]
	}
	return out
}

type keyEstimate struct {
	tonic    int
	major    bool
	strength float64
}

// estimateKey correlates dist with every rotation of both profiles.
func estimateKey(dist [12]float64) keyEstimate {
	bestMajor, bestMinor := keyEstimate{major: true, strength: math.Inf(-1)}, keyEstimate{strength: math.Inf(-1)}
	for tonic := 0; tonic < 12; tonic++ {
		if c := pearson(dist, rotate(majorProfile, tonic)); c > bestMajor.strength {
			bestMajor.tonic, bestMajor.strength = tonic, c
		}
		if c := pearson(dist, rotate(minorProfile, tonic)); c > bestMinor.strength {
			bestMinor.tonic, bestMinor.strength = tonic, c
		}
	}
	if bestMajor.strength >= bestMinor.strength-majorTolerance {
		return bestMajor
	}
	return bestMinor
}

func computeTonal(chroma [][]float64, harmonicRatio float64, warn *warningSink) *Tonal {
	dist := pitchDistribution(chroma)
	key := estimateKey(dist)

	t := &Tonal{
		Key:           pitchClasses[key.tonic],
		Mode:          "minor",
		KeyStrength:   Float(math.Max(0, key.strength)),
		HarmonicRatio: Float(harmonicRatio),
	}
	if key.major {
		t.Mode = "major"
	}
	for c, v := range dist {
		t.PitchClassDistribution[c] = Float(v)
	}
	if key.strength < lowConfidence {
		warn.warnings = append(warn.warnings, "tonal.key: low_confidence")
	}
	return t
}

// chromaMatrix transposes a [frame][class] chromagram into [class][frame].
func chromaMatrix(chroma [][]float64) Matrix {
	out := make(Matrix, 12)
	for c := range out {
		out[c] = make([]float64, len(chroma))
		for t, frame := range chroma {
			out[c][t] = frame[c]
		}
	}
	return out
}
