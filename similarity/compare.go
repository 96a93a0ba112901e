package similarity

import (
	"errors"
	"math"

	"samplemind/features"
)

var ErrIncomplete = errors.New("record lacks rhythmic or tonal features")

// Component weights of the overall score.
const (
	tempoWeight    = 0.20
	keyWeight      = 0.15
	chromaWeight   = 0.25
	mfccWeight     = 0.25
	spectralWeight = 0.15
)

// Similarity breaks a comparison down by feature family. Every value is in
// [0,1]. MFCC and Spectral are only set when both records carry those groups.
type Similarity struct {
	Overall  float64  `json:"overall"`
	Tempo    float64  `json:"tempo"`
	Key      float64  `json:"key"`
	Chroma   float64  `json:"chroma"`
	MFCC     *float64 `json:"mfcc,omitempty"`
	Spectral *float64 `json:"spectral,omitempty"`
}

// Compare scores how alike two records are. Missing optional groups drop out
// of the weighted average instead of counting as zero.
func Compare(a, b *features.Record) (Similarity, error) {
	if a.Rhythmic == nil || a.Tonal == nil || b.Rhythmic == nil || b.Tonal == nil {
		return Similarity{}, ErrIncomplete
	}

	s := Similarity{
		Tempo:  TempoSimilarity(float64(a.Rhythmic.Tempo), float64(b.Rhythmic.Tempo)),
		Key:    KeySimilarity(a.Tonal, b.Tonal),
		Chroma: unitCosine(pitchVector(a.Tonal), pitchVector(b.Tonal)),
	}
	total := tempoWeight*s.Tempo + keyWeight*s.Key + chromaWeight*s.Chroma
	weights := tempoWeight + keyWeight + chromaWeight

	if a.Cepstral != nil && b.Cepstral != nil {
		v := unitCosine(rowMeans(a.Cepstral.MFCC), rowMeans(b.Cepstral.MFCC))
		s.MFCC = &v
		total += mfccWeight * v
		weights += mfccWeight
	}
	if a.Spectral != nil && b.Spectral != nil {
		v := spectralSimilarity(a.Spectral, b.Spectral)
		s.Spectral = &v
		total += spectralWeight * v
		weights += spectralWeight
	}

	s.Overall = total / weights
	return s, nil
}

// TempoSimilarity is 1 minus the relative difference. Half and double tempo
// are treated as near matches.
func TempoSimilarity(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	direct := math.Max(0, 1-math.Abs(a-b)/math.Max(a, b))
	octave := math.Max(
		math.Max(0, 1-math.Abs(a-2*b)/math.Max(a, 2*b)),
		math.Max(0, 1-math.Abs(2*a-b)/math.Max(2*a, b)),
	)
	return math.Max(direct, 0.9*octave)
}

var pitchIndex = map[string]int{
	"C": 0, "C#": 1, "D": 2, "D#": 3, "E": 4, "F": 5,
	"F#": 6, "G": 7, "G#": 8, "A": 9, "A#": 10, "B": 11,
}

// KeySimilarity is 1 for the same key, 0.7 for relative major/minor, 0.5
// for keys a fifth apart in the same mode, and 0 otherwise.
func KeySimilarity(a, b *features.Tonal) float64 {
	pa, okA := pitchIndex[a.Key]
	pb, okB := pitchIndex[b.Key]
	if !okA || !okB {
		return 0
	}
	if pa == pb && a.Mode == b.Mode {
		return 1
	}
	if a.Mode != b.Mode {
		major, minor := pa, pb
		if a.Mode == "minor" {
			major, minor = pb, pa
		}
		if (major+9)%12 == minor {
			return 0.7
		}
		return 0
	}
	if d := (pa - pb + 12) % 12; d == 5 || d == 7 {
		return 0.5
	}
	return 0
}

func pitchVector(t *features.Tonal) []float64 {
	out := make([]float64, len(t.PitchClassDistribution))
	for i, v := range t.PitchClassDistribution {
		out[i] = float64(v)
	}
	return out
}

func rowMeans(m features.Matrix) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = features.Series(row).Mean()
	}
	return out
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := 0; i < min(len(a), len(b)); i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// unitCosine maps cosine similarity from [-1,1] onto [0,1].
func unitCosine(a, b []float64) float64 {
	return (cosine(a, b) + 1) / 2
}

func ratio(a, b float64) float64 {
	hi := math.Max(math.Abs(a), math.Abs(b))
	if hi == 0 {
		return 1
	}
	return math.Max(0, 1-math.Abs(a-b)/hi)
}

func spectralSimilarity(a, b *features.Spectral) float64 {
	return (ratio(a.Centroid.Mean(), b.Centroid.Mean()) +
		ratio(a.Bandwidth.Mean(), b.Bandwidth.Mean()) +
		ratio(a.Rolloff.Mean(), b.Rolloff.Mean()) +
		ratio(a.ZeroCrossingRate.Mean(), b.ZeroCrossingRate.Mean())) / 4
}
