package features

import (
	"fmt"
	"time"

	"samplemind/audio"
	"samplemind/utils"
)

// Record is the feature record of one file at one depth. Groups not covered
// by Depth are nil and omitted from JSON.
type Record struct {
	Source    audio.Identity `json:"source"`
	Format    audio.Format   `json:"format,omitempty"`
	Depth     Depth          `json:"depth"`
	Params    Params         `json:"params"`
	Timestamp float64        `json:"timestamp"`
	OK        bool           `json:"ok"`
	Error     string         `json:"error,omitempty"`

	Basic         *Basic         `json:"basic,omitempty"`
	Rhythmic      *Rhythmic      `json:"rhythmic,omitempty"`
	Tonal         *Tonal         `json:"tonal,omitempty"`
	Spectral      *Spectral      `json:"spectral,omitempty"`
	Cepstral      *Cepstral      `json:"cepstral,omitempty"`
	Decomposition *Decomposition `json:"decomposition,omitempty"`
	Extended      *Extended      `json:"extended,omitempty"`

	Metadata audio.Metadata `json:"metadata"`
	Warnings []string       `json:"warnings"`
}

type Basic struct {
	Duration   Float          `json:"duration"`
	SampleRate int            `json:"sample_rate"`
	Channels   int            `json:"channels"`
	Peak       Float          `json:"peak"`
	RMSLevel   Float          `json:"rms_level"`
	Strategy   audio.Strategy `json:"loading_strategy,omitempty"`
}

type Rhythmic struct {
	Tempo            Float     `json:"tempo"`
	BeatTimes        Series    `json:"beat_times"`
	OnsetTimes       Series    `json:"onset_times"`
	RhythmDescriptor [4]Float  `json:"rhythm_descriptor"`
	RhythmPattern    [16]Float `json:"rhythm_pattern"`
	TimeSignature    string    `json:"time_signature"`
}

type Tonal struct {
	Key                    string    `json:"key"`
	Mode                   string    `json:"mode"`
	KeyStrength            Float     `json:"key_strength"`
	PitchClassDistribution [12]Float `json:"pitch_class_distribution"`
	HarmonicRatio          Float     `json:"harmonic_ratio"`
}

type Spectral struct {
	Centroid         Series `json:"spectral_centroid"`
	Bandwidth        Series `json:"spectral_bandwidth"`
	Rolloff          Series `json:"spectral_rolloff"`
	ZeroCrossingRate Series `json:"zero_crossing_rate"`
	RMS              Series `json:"rms_energy"`
}

type Cepstral struct {
	MFCC   Matrix `json:"mfcc"`
	Delta  Matrix `json:"mfcc_delta"`
	Delta2 Matrix `json:"mfcc_delta2"`
}

// ComponentSummary describes one side of a harmonic/percussive split.
type ComponentSummary struct {
	RMS          Float `json:"rms"`
	Peak         Float `json:"peak"`
	EnergyRatio  Float `json:"energy_ratio"`
	CentroidMean Float `json:"spectral_centroid_mean"`
}

type Decomposition struct {
	Harmonic            ComponentSummary `json:"harmonic"`
	Percussive          ComponentSummary `json:"percussive"`
	ReconstructionError Float            `json:"reconstruction_error"`
}

type Extended struct {
	SpectralFlatness Float  `json:"spectral_flatness"`
	SpectralContrast Series `json:"spectral_contrast"`
	Chroma           Matrix `json:"chroma"`
	OnsetEnvelope    Series `json:"onset_envelope"`
	PeakDBFS         Float  `json:"peak_dbfs"`
	RMSDBFS          Float  `json:"rms_dbfs"`
	CrestFactor      Float  `json:"crest_factor"`
}

// MeanCentroid is the average spectral centroid, or 0 when the spectral
// group was not computed.
func (r *Record) MeanCentroid() float64 {
	if r.Spectral == nil {
		return 0
	}
	return r.Spectral.Centroid.Mean()
}

// Placeholder is the record a failed batch item gets in place of features.
func Placeholder(path string, depth Depth, err error) *Record {
	return &Record{
		Source:    audio.Identity{Path: path},
		Depth:     depth,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		OK:        false,
		Error:     err.Error(),
		Warnings:  []string{},
	}
}

// Digest hashes the feature content of r. Timestamp and warnings are left
// out, so two extractions of the same input share a digest.
func (r *Record) Digest() (string, error) {
	clone := *r
	clone.Timestamp = 0
	clone.Warnings = nil
	return utils.CanonicalDigest(clone)
}

type warningSink struct {
	warnings []string
}

func (w *warningSink) scalar(name string, v Float) {
	if !finite(float64(v)) {
		w.warnings = append(w.warnings, fmt.Sprintf("%s: non-finite", name))
	}
}

func (w *warningSink) series(name string, s Series) {
	for i, v := range s {
		if !finite(v) {
			w.warnings = append(w.warnings, fmt.Sprintf("%s[%d]: non-finite", name, i))
		}
	}
}

func (w *warningSink) matrix(name string, m Matrix) {
	for i, row := range m {
		for j, v := range row {
			if !finite(v) {
				w.warnings = append(w.warnings, fmt.Sprintf("%s[%d][%d]: non-finite", name, i, j))
			}
		}
	}
}

// nonFiniteWarnings lists every non-finite value in r by field path.
func (r *Record) nonFiniteWarnings() []string {
	w := &warningSink{}
	if b := r.Basic; b != nil {
		w.scalar("basic.duration", b.Duration)
		w.scalar("basic.peak", b.Peak)
		w.scalar("basic.rms_level", b.RMSLevel)
	}
	if rh := r.Rhythmic; rh != nil {
		w.scalar("rhythmic.tempo", rh.Tempo)
		w.series("rhythmic.beat_times", rh.BeatTimes)
		w.series("rhythmic.onset_times", rh.OnsetTimes)
		for i, v := range rh.RhythmDescriptor {
			w.scalar(fmt.Sprintf("rhythmic.rhythm_descriptor[%d]", i), v)
		}
	}
	if t := r.Tonal; t != nil {
		w.scalar("tonal.key_strength", t.KeyStrength)
		w.scalar("tonal.harmonic_ratio", t.HarmonicRatio)
		for i, v := range t.PitchClassDistribution {
			w.scalar(fmt.Sprintf("tonal.pitch_class_distribution[%d]", i), v)
		}
	}
	if s := r.Spectral; s != nil {
		w.series("spectral.spectral_centroid", s.Centroid)
		w.series("spectral.spectral_bandwidth", s.Bandwidth)
		w.series("spectral.spectral_rolloff", s.Rolloff)
		w.series("spectral.zero_crossing_rate", s.ZeroCrossingRate)
		w.series("spectral.rms_energy", s.RMS)
	}
	if c := r.Cepstral; c != nil {
		w.matrix("cepstral.mfcc", c.MFCC)
		w.matrix("cepstral.mfcc_delta", c.Delta)
		w.matrix("cepstral.mfcc_delta2", c.Delta2)
	}
	if d := r.Decomposition; d != nil {
		w.scalar("decomposition.reconstruction_error", d.ReconstructionError)
		w.scalar("decomposition.harmonic.rms", d.Harmonic.RMS)
		w.scalar("decomposition.percussive.rms", d.Percussive.RMS)
	}
	if e := r.Extended; e != nil {
		w.scalar("extended.spectral_flatness", e.SpectralFlatness)
		w.series("extended.spectral_contrast", e.SpectralContrast)
		w.matrix("extended.chroma", e.Chroma)
		w.series("extended.onset_envelope", e.OnsetEnvelope)
	}
	return w.warnings
}
