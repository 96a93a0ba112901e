package similarity

// Descriptor vectors mix BPM, unit-scale distributions and MFCC values in
// the tens, so each dimension is standardised across the index before the
// vector is L2 normalised. Without that the tempo and first MFCC would
// decide every neighbour on their own.

import (
	"errors"
	"math"

	"samplemind/features"
)

// Scaler standardizes vectors to zero mean and unit deviation per dimension.
type Scaler struct {
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

func NewScaler(vectors [][]float64) (*Scaler, error) {
	if len(vectors) == 0 {
		return nil, errors.New("no vectors provided")
	}
	n := len(vectors[0])
	if n == 0 {
		return nil, errors.New("vectors are empty")
	}

	mean := make([]float64, n)
	for _, v := range vectors {
		if len(v) != n {
			return nil, errors.New("inconsistent vector dimensions")
		}
		for i, x := range v {
			mean[i] += x
		}
	}
	for i := range mean {
		mean[i] /= float64(len(vectors))
	}

	stddev := make([]float64, n)
	for _, v := range vectors {
		for i, x := range v {
			d := x - mean[i]
			stddev[i] += d * d
		}
	}
	for i := range stddev {
		stddev[i] = math.Sqrt(stddev[i] / float64(len(vectors)))
		// constant dimension
		if stddev[i] < 1e-10 {
			stddev[i] = 1
		}
	}
	return &Scaler{Mean: mean, Stddev: stddev}, nil
}

// Transform returns the standardized, unit-length form of v.
func (s *Scaler) Transform(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	if len(v) == len(s.Mean) {
		for i, x := range v {
			out[i] = (x - s.Mean[i]) / s.Stddev[i]
		}
	}
	normalise(out)
	return out
}

func normalise(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	f := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] *= f
	}
}

// Descriptor flattens a record into the vector the index compares:
// tempo, key on the circle of fifths, mode, the pitch-class distribution,
// then MFCC and spectral means when present.
func Descriptor(rec *features.Record) ([]float64, error) {
	if rec.Rhythmic == nil || rec.Tonal == nil {
		return nil, ErrIncomplete
	}

	v := []float64{float64(rec.Rhythmic.Tempo)}

	angle := 0.0
	if p, ok := pitchIndex[rec.Tonal.Key]; ok {
		angle = 2 * math.Pi * float64((p*7)%12) / 12
	}
	mode := 0.0
	if rec.Tonal.Mode == "major" {
		mode = 1
	}
	v = append(v, math.Cos(angle), math.Sin(angle), mode)
	v = append(v, pitchVector(rec.Tonal)...)

	mfcc := make([]float64, features.DefaultParams().NMFCC)
	if rec.Cepstral != nil {
		copy(mfcc, rowMeans(rec.Cepstral.MFCC))
	}
	v = append(v, mfcc...)

	spectral := make([]float64, 4)
	if s := rec.Spectral; s != nil {
		spectral = []float64{s.Centroid.Mean(), s.Bandwidth.Mean(), s.Rolloff.Mean(), s.ZeroCrossingRate.Mean()}
	}
	v = append(v, spectral...)

	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v[i] = 0
		}
	}
	return v, nil
}
