package features

import "errors"

var (
	ErrFeatureExtraction = errors.New("feature extraction failed")
	ErrHPSS              = errors.New("harmonic/percussive separation failed")
)
