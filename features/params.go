package features

import (
	"fmt"
	"strings"
)

// Depth selects which feature groups are computed. Every depth includes the
// groups of the depths below it.
type Depth string

const (
	DepthBasic        Depth = "basic"
	DepthStandard     Depth = "standard"
	DepthDetailed     Depth = "detailed"
	DepthProfessional Depth = "professional"
)

var depthRank = map[Depth]int{
	DepthBasic:        0,
	DepthStandard:     1,
	DepthDetailed:     2,
	DepthProfessional: 3,
}

// ParseDepth maps a name onto a Depth; an empty name means standard.
func ParseDepth(name string) (Depth, error) {
	d := Depth(strings.ToLower(strings.TrimSpace(name)))
	if d == "" {
		return DepthStandard, nil
	}
	if _, ok := depthRank[d]; !ok {
		return "", fmt.Errorf("unknown analysis depth %q", name)
	}
	return d, nil
}

// AtLeast reports whether d includes everything other includes.
func (d Depth) AtLeast(other Depth) bool {
	return depthRank[d] >= depthRank[other]
}

// Params are the extractor settings. They are part of every cache key, so
// changing any of them invalidates previously cached records.
type Params struct {
	Hop        int     `json:"hop_length"`
	NFFT       int     `json:"n_fft"`
	NMFCC      int     `json:"n_mfcc"`
	NMels      int     `json:"n_mels"`
	FMin       float64 `json:"fmin"`
	FMax       float64 `json:"fmax"`
	HPSSKernel int     `json:"hpss_kernel"`
}

// DefaultParams mirrors the usual music-analysis defaults: 2048-point FFT,
// hop 512, 20 MFCCs over 128 mel bands between 20 Hz and 8 kHz.
func DefaultParams() Params {
	return Params{
		Hop:        512,
		NFFT:       2048,
		NMFCC:      20,
		NMels:      128,
		FMin:       20,
		FMax:       8000,
		HPSSKernel: 31,
	}
}

func (p Params) validate() error {
	if p.Hop <= 0 || p.NFFT < 2 || p.NMFCC <= 0 || p.NMels <= 0 || p.HPSSKernel <= 0 {
		return fmt.Errorf("%w: invalid parameters %+v", ErrFeatureExtraction, p)
	}
	if p.FMin < 0 || p.FMax <= p.FMin {
		return fmt.Errorf("%w: invalid mel range %.1f-%.1f Hz", ErrFeatureExtraction, p.FMin, p.FMax)
	}
	if p.NMFCC > p.NMels {
		return fmt.Errorf("%w: n_mfcc %d exceeds n_mels %d", ErrFeatureExtraction, p.NMFCC, p.NMels)
	}
	return nil
}
