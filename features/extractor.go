package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"samplemind/audio"
	"samplemind/dsp"
	"samplemind/utils"
)

// frameData is the shared STFT every frame-based feature reads from, so all
// groups use the same hop and window and stay aligned.
type frameData struct {
	spec       *dsp.Spectrogram
	magnitude  [][]float64
	power      [][]float64
	freqs      []float64
	sampleRate int
	nfft       int
	hop        int
}

func newFrameData(samples []float64, sampleRate int, p Params) (*frameData, error) {
	nfft := p.NFFT
	if len(samples) < nfft {
		nfft = max(2, len(samples)/4)
	}
	spec, err := dsp.STFT(samples, nfft, p.Hop)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeatureExtraction, err)
	}
	return &frameData{
		spec:       spec,
		magnitude:  spec.Magnitude(),
		power:      spec.Power(),
		freqs:      dsp.BinFrequencies(sampleRate, nfft),
		sampleRate: sampleRate,
		nfft:       nfft,
		hop:        p.Hop,
	}, nil
}

// Extractor computes feature records with a fixed set of parameters.
type Extractor struct {
	params Params
}

func NewExtractor(params Params) (*Extractor, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Extractor{params: params}, nil
}

func (e *Extractor) Params() Params {
	return e.params
}

// Extract computes the groups depth asks for from a loaded file and folds
// in the file's identity and metadata.
func (e *Extractor) Extract(ctx context.Context, loaded *audio.Loaded, depth Depth) (*Record, error) {
	record, err := e.ExtractSamples(ctx, loaded.Samples, loaded.SampleRate, depth)
	if err != nil {
		return nil, err
	}

	record.Basic.Channels = loaded.Channels
	record.Basic.Strategy = loaded.Strategy
	if src := loaded.Source; src != nil {
		record.Source = src.Identity()
		record.Format = src.Format
		record.Metadata = src.Metadata
	}
	return record, nil
}

// ExtractSamples computes a record from a mono buffer that has already been
// preprocessed.
func (e *Extractor) ExtractSamples(ctx context.Context, samples []float64, sampleRate int, depth Depth) (*Record, error) {
	logger := utils.GetLogger()
	if _, ok := depthRank[depth]; !ok {
		return nil, fmt.Errorf("%w: unknown depth %q", ErrFeatureExtraction, depth)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty signal", ErrFeatureExtraction)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrFeatureExtraction, sampleRate)
	}

	started := time.Now()
	p := e.params
	warn := &warningSink{}

	fr, err := newFrameData(samples, sampleRate, p)
	if err != nil {
		return nil, err
	}
	if fr.nfft != p.NFFT {
		warn.warnings = append(warn.warnings, fmt.Sprintf("n_fft reduced to %d for a %d-sample input", fr.nfft, len(samples)))
	}

	record := &Record{
		Depth:     depth,
		Params:    p,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		OK:        true,
		Basic: &Basic{
			Duration:   Float(float64(len(samples)) / float64(sampleRate)),
			SampleRate: sampleRate,
			Channels:   1,
			Peak:       Float(audio.Peak(samples)),
			RMSLevel:   Float(audio.RMS(samples)),
		},
	}

	fmax := math.Min(p.FMax, float64(sampleRate)/2)
	filters := melFilterbank(sampleRate, fr.nfft, p.NMels, p.FMin, fmax)
	logMelSpec := logMel(melSpectrogram(fr.power, filters))

	env := onsetEnvelope(logMelSpec)
	record.Rhythmic = computeRhythmic(env, fr.hop, sampleRate)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hMask, pMask := softMasks(fr.magnitude, p.HPSSKernel)
	chroma := chromagram(fr.power, fr.freqs)
	record.Tonal = computeTonal(chroma, harmonicRatio(fr.magnitude, hMask, pMask), warn)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if depth.AtLeast(DepthStandard) {
		record.Spectral = computeSpectral(fr, samples, fr.nfft, fr.hop)
		coeffs := mfcc(logMelSpec, p.NMFCC)
		d1 := delta(coeffs)
		record.Cepstral = &Cepstral{MFCC: coeffs, Delta: d1, Delta2: delta(d1)}
	}

	if depth.AtLeast(DepthDetailed) {
		decomposition, err := computeDecomposition(samples, fr, hMask, pMask)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFeatureExtraction, err)
		}
		record.Decomposition = decomposition
	}

	if depth.AtLeast(DepthProfessional) {
		record.Extended = computeExtended(fr, samples, chroma, env)
	}

	record.Warnings = append(warn.warnings, record.nonFiniteWarnings()...)
	if record.Warnings == nil {
		record.Warnings = []string{}
	}

	logger.DebugContext(ctx, "extracted features",
		slog.String("depth", string(depth)),
		slog.Int("frames", len(fr.magnitude)),
		slog.Int("warnings", len(record.Warnings)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return record, nil
}

func computeExtended(fr *frameData, samples []float64, chroma [][]float64, env []float64) *Extended {
	var flatness float64
	contrast := make(Series, len(contrastEdges))
	for _, row := range fr.power {
		flatness += spectralFlatness(row)
		for b, v := range spectralContrast(row, fr.freqs) {
			contrast[b] += v
		}
	}
	if frames := float64(len(fr.power)); frames > 0 {
		flatness /= frames
		for b := range contrast {
			contrast[b] /= frames
		}
	}

	peak, rms := audio.Peak(samples), audio.RMS(samples)
	crest := 0.0
	if rms > 0 {
		crest = peak / rms
	}

	return &Extended{
		SpectralFlatness: Float(flatness),
		SpectralContrast: contrast,
		Chroma:           chromaMatrix(chroma),
		OnsetEnvelope:    Series(env),
		PeakDBFS:         Float(amplitudeToDBFS(peak)),
		RMSDBFS:          Float(amplitudeToDBFS(rms)),
		CrestFactor:      Float(crest),
	}
}

// Separate splits samples into harmonic and percussive signals whose sum
// reproduces the input.
func Separate(samples []float64, sampleRate int, params Params) (harmonic, percussive []float64, err error) {
	if len(samples) < minHPSSSamples {
		return nil, nil, fmt.Errorf("%w: %d samples, need at least %d", ErrHPSS, len(samples), minHPSSSamples)
	}
	fr, err := newFrameData(samples, sampleRate, params)
	if err != nil {
		return nil, nil, errors.Join(ErrHPSS, err)
	}
	hMask, pMask := softMasks(fr.magnitude, params.HPSSKernel)
	return separate(samples, fr.spec, hMask, pMask)
}
