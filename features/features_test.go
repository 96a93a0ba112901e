package features

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq, seconds float64, sampleRate int, amplitude float64) []float64 {
	out := make([]float64, int(seconds*float64(sampleRate)))
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(DefaultParams())
	require.NoError(t, err)
	return e
}

func TestSineScenario(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	r, err := e.ExtractSamples(context.Background(), sine(440, 2, 44100, 0.95), 44100, DepthStandard)
	require.NoError(t, err)

	assert.InDelta(t, 120, float64(r.Rhythmic.Tempo), 1e-9)
	assert.Equal(t, "A", r.Tonal.Key)
	assert.Equal(t, "major", r.Tonal.Mode)
	assert.Greater(t, float64(r.Basic.RMSLevel), 0.0)
	assert.InDelta(t, 440, r.MeanCentroid(), 50)

	peak := 0
	for c, v := range r.Tonal.PitchClassDistribution {
		if v > r.Tonal.PitchClassDistribution[peak] {
			peak = c
		}
	}
	assert.Equal(t, 9, peak)
}

func TestImpulseScenario(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	samples := make([]float64, 44100)
	samples[0] = 0.95
	r, err := e.ExtractSamples(context.Background(), samples, 44100, DepthBasic)
	require.NoError(t, err)

	assert.InDelta(t, 0.95, float64(r.Basic.Peak), 1e-12)
	assert.Empty(t, r.Rhythmic.BeatTimes)
	require.Len(t, r.Rhythmic.OnsetTimes, 1)
	assert.InDelta(t, 0, r.Rhythmic.OnsetTimes[0], 1.0/44100)

	d := r.Rhythmic.RhythmDescriptor
	for _, v := range d[1:] {
		assert.GreaterOrEqual(t, float64(d[0]), float64(v))
	}
}

func TestSilence(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	r, err := e.ExtractSamples(context.Background(), make([]float64, 22050), 22050, DepthStandard)
	require.NoError(t, err)

	assert.Equal(t, 120.0, float64(r.Rhythmic.Tempo))
	assert.Empty(t, r.Rhythmic.BeatTimes)
	assert.Contains(t, pitchClasses[:], r.Tonal.Key)
	assert.Contains(t, r.Warnings, "tonal.key: low_confidence")
	assert.Equal(t, 0.0, float64(r.Tonal.HarmonicRatio))
	for i := range r.Spectral.RMS {
		assert.Equal(t, 0.0, r.Spectral.RMS[i])
		assert.Equal(t, 0.0, r.Spectral.Centroid[i])
	}
}

func TestClickTrackTempo(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	// One click every 22 hops.
	const sr, hop, period = 22050, 512, 22
	samples := make([]float64, 8*sr)
	for i := 0; i < len(samples); i += period * hop {
		samples[i] = 0.9
	}
	r, err := e.ExtractSamples(context.Background(), samples, sr, DepthBasic)
	require.NoError(t, err)

	expected := 60 * float64(sr) / hop / period
	assert.InDelta(t, expected, float64(r.Rhythmic.Tempo), 3)
	assert.GreaterOrEqual(t, len(r.Rhythmic.BeatTimes), 10)
	assert.GreaterOrEqual(t, len(r.Rhythmic.OnsetTimes), 10)
}

func TestExtractionIsDeterministic(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	samples := sine(220, 1, 22050, 0.5)
	for i := 0; i < len(samples); i += 5512 {
		samples[i] += 0.4
	}

	first, err := e.ExtractSamples(context.Background(), samples, 22050, DepthProfessional)
	require.NoError(t, err)
	second, err := e.ExtractSamples(context.Background(), samples, 22050, DepthProfessional)
	require.NoError(t, err)

	a, err := first.Digest()
	require.NoError(t, err)
	b, err := second.Digest()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDepthSelectsGroups(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)
	samples := sine(330, 1, 22050, 0.5)

	basic, err := e.ExtractSamples(context.Background(), samples, 22050, DepthBasic)
	require.NoError(t, err)
	assert.NotNil(t, basic.Rhythmic)
	assert.NotNil(t, basic.Tonal)
	assert.Nil(t, basic.Spectral)
	assert.Nil(t, basic.Cepstral)

	pro, err := e.ExtractSamples(context.Background(), samples, 22050, DepthProfessional)
	require.NoError(t, err)
	require.NotNil(t, pro.Cepstral)
	assert.Len(t, pro.Cepstral.MFCC, 20)
	assert.Len(t, pro.Cepstral.Delta2, 20)
	require.NotNil(t, pro.Decomposition)
	require.NotNil(t, pro.Extended)
	assert.Len(t, pro.Extended.SpectralContrast, len(contrastEdges))
	assert.Len(t, pro.Extended.Chroma, 12)
	assert.InDelta(t, 1, float64(pro.Decomposition.Harmonic.EnergyRatio+pro.Decomposition.Percussive.EnergyRatio), 1e-9)
}

func TestShortInput(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)
	samples := sine(440, 0.01, 22050, 0.5)

	r, err := e.ExtractSamples(context.Background(), samples, 22050, DepthStandard)
	require.NoError(t, err)
	require.Len(t, r.Cepstral.MFCC, 20)
	assert.NotEmpty(t, r.Cepstral.MFCC[0])

	_, err = e.ExtractSamples(context.Background(), samples, 22050, DepthDetailed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFeatureExtraction)
	assert.ErrorIs(t, err, ErrHPSS)
}

func TestSeparateReconstructs(t *testing.T) {
	t.Parallel()

	samples := sine(440, 0.5, 22050, 0.6)
	for i := 0; i < len(samples); i += 2205 {
		samples[i] += 0.3
	}
	h, p, err := Separate(samples, 22050, DefaultParams())
	require.NoError(t, err)

	var worst, peak float64
	for i, v := range samples {
		worst = math.Max(worst, math.Abs(v-h[i]-p[i]))
		peak = math.Max(peak, math.Abs(v))
	}
	assert.LessOrEqual(t, worst, 1e-4*peak)

	_, _, err = Separate(make([]float64, 511), 22050, DefaultParams())
	assert.ErrorIs(t, err, ErrHPSS)
}

func TestRhythmDescriptorInvariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		onsets, beats []float64
	}{
		{nil, nil},
		{[]float64{0}, nil},
		{[]float64{0, 0.25, 0.5, 0.75}, []float64{0, 0.5, 1}},
		{[]float64{0.13, 0.41, 0.77, 1.9, 2.05}, []float64{0.1, 0.6, 1.1, 1.6, 2.1}},
		{nil, []float64{0.5, 1, 1.5}},
	}
	for _, tc := range cases {
		pattern, d := rhythmPattern(tc.onsets, tc.beats, 120)
		for _, v := range d {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.InDelta(t, 1, d[0]+d[1]+d[2], 1e-6)

		var total float64
		for _, v := range pattern {
			total += v
		}
		assert.InDelta(t, 1, total, 1e-9)
	}
}

func TestKeyEstimation(t *testing.T) {
	t.Parallel()

	var dist [12]float64
	for c, v := range rotate(minorProfile, 2) {
		dist[c] = v
	}
	key := estimateKey(dist)
	assert.Equal(t, 2, key.tonic)
	assert.False(t, key.major)

	for c, v := range rotate(majorProfile, 7) {
		dist[c] = v
	}
	key = estimateKey(dist)
	assert.Equal(t, 7, key.tonic)
	assert.True(t, key.major)
}

func TestNonFiniteValuesSerialiseAsNull(t *testing.T) {
	t.Parallel()

	r := &Record{
		Depth:    DepthBasic,
		Basic:    &Basic{Duration: Float(math.NaN()), Peak: 1},
		Spectral: &Spectral{Centroid: Series{1, math.Inf(1)}},
	}
	warnings := r.nonFiniteWarnings()
	assert.Contains(t, warnings, "basic.duration: non-finite")
	assert.Contains(t, warnings, "spectral.spectral_centroid[1]: non-finite")

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"duration":null`)
	assert.Contains(t, string(data), `"spectral_centroid":[1,null]`)
}

func TestParseDepth(t *testing.T) {
	t.Parallel()

	d, err := ParseDepth("")
	require.NoError(t, err)
	assert.Equal(t, DepthStandard, d)

	d, err = ParseDepth("Professional")
	require.NoError(t, err)
	assert.True(t, d.AtLeast(DepthDetailed))

	_, err = ParseDepth("deep")
	assert.Error(t, err)
}
