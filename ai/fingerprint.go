package ai

import (
	"fmt"
	"math"

	"samplemind/features"
	"samplemind/utils"
)

type fingerprintFields struct {
	Tempo        float64        `json:"tempo"`
	Key          string         `json:"key"`
	Duration     float64        `json:"duration"`
	MeanCentroid float64        `json:"mean_centroid"`
	Depth        features.Depth `json:"depth"`
}

// Fingerprint digests the subset of rec that identifies it to the response
// cache: tempo, key, duration, mean centroid and depth. Values are rounded
// to six decimals.
func Fingerprint(rec *features.Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: missing feature record", ErrInvalidRequest)
	}

	f := fingerprintFields{Depth: rec.Depth, MeanCentroid: round6(rec.MeanCentroid())}
	if rec.Rhythmic != nil {
		f.Tempo = round6(float64(rec.Rhythmic.Tempo))
	}
	if rec.Tonal != nil {
		f.Key = rec.Tonal.Key
	}
	if rec.Basic != nil {
		f.Duration = round6(float64(rec.Basic.Duration))
	}
	return utils.CanonicalDigest(f)
}

func round6(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1e6) / 1e6
}
