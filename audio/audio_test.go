package audio

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestWAV(t *testing.T, dir, name string, samples []float64, sampleRate int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWAV(f, samples, sampleRate))
	require.NoError(t, f.Close())
	return path
}

func sineWave(freq float64, seconds float64, sampleRate int) []float64 {
	out := make([]float64, int(seconds*float64(sampleRate)))
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestDetectFormatByExtension(t *testing.T) {
	t.Parallel()

	cases := map[string]Format{
		"a.wav":  FormatWAV,
		"b.FLAC": FormatFLAC,
		"c.aiff": FormatAIFF,
		"d.mp3":  FormatMP3,
		"e.aac":  FormatAAC,
		"f.m4a":  FormatM4A,
		"g.ogg":  FormatOGG,
		"h.wma":  FormatWMA,
	}
	for name, want := range cases {
		got, err := DetectFormat(filepath.Join("/nonexistent", name))
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestDetectFormatByMagic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := []struct {
		name string
		head []byte
		want Format
	}{
		{"riff", append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...), FormatWAV},
		{"flac", append([]byte("fLaC\x00\x00\x00\x22"), make([]byte, 32)...), FormatFLAC},
		{"id3", append([]byte("ID3\x04\x00\x00"), make([]byte, 32)...), FormatMP3},
		{"mpeg-sync", append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 32)...), FormatMP3},
		{"ogg", append([]byte("OggS\x00\x02"), make([]byte, 32)...), FormatOGG},
		{"adts", append([]byte{0xFF, 0xF1, 0x50, 0x80}, make([]byte, 32)...), FormatAAC},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".bin")
			require.NoError(t, os.WriteFile(path, tc.head, 0o644))

			got, err := DetectFormat(path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			// detection depends on content only, not on which copy is read
			copyPath := filepath.Join(dir, tc.name+"-copy.bin")
			require.NoError(t, os.WriteFile(copyPath, tc.head, 0o644))
			again, err := DetectFormat(copyPath)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestDetectFormatUnsupported(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.bin")
	require.NoError(t, os.WriteFile(path, []byte("just some text, not audio"), 0o644))

	_, err := DetectFormat(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().Load(context.Background(), "./nope.wav", LoadOptions{})
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoadNormalisesSine(t *testing.T) {
	t.Parallel()

	path := writeTestWAV(t, t.TempDir(), "sine.wav", sineWave(440, 1, 44100), 44100)
	loaded, err := NewLoader().Load(context.Background(), path, LoadOptions{Strategy: StrategyBalanced})
	require.NoError(t, err)

	assert.Equal(t, 44100, loaded.SampleRate)
	assert.Equal(t, 1, loaded.Channels)
	assert.True(t, loaded.Normalized)
	assert.InDelta(t, TargetPeak, loaded.Peak, 1e-9)
	assert.InDelta(t, float64(len(loaded.Samples))/44100, loaded.Duration, 1e-12)
	assert.Greater(t, loaded.RMS, 0.5)
	for _, v := range loaded.Samples {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		require.LessOrEqual(t, math.Abs(v), TargetPeak+1e-12)
	}
	assert.Len(t, loaded.Source.ContentHash, 64)
	assert.Equal(t, FormatWAV, loaded.Source.Format)
	assert.Equal(t, 44100, loaded.Source.Metadata.SampleRate)
}

func TestLoadImpulseKeepsTargetPeak(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 44100)
	samples[0] = 1
	path := writeTestWAV(t, t.TempDir(), "impulse.wav", samples, 44100)

	loaded, err := NewLoader().Load(context.Background(), path, LoadOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 0.95, loaded.Peak, 1e-9)
}

func TestLoadSilenceIsNotNormalised(t *testing.T) {
	t.Parallel()

	path := writeTestWAV(t, t.TempDir(), "silence.wav", make([]float64, 4410), 44100)
	loaded, err := NewLoader().Load(context.Background(), path, LoadOptions{})
	require.NoError(t, err)
	assert.False(t, loaded.Normalized)
	assert.Zero(t, loaded.Peak)
	assert.Zero(t, loaded.RMS)
}

func TestLoadFastStrategyResamples(t *testing.T) {
	t.Parallel()

	path := writeTestWAV(t, t.TempDir(), "sine.wav", sineWave(440, 1, 44100), 44100)
	loaded, err := NewLoader().Load(context.Background(), path, LoadOptions{Strategy: StrategyFast})
	require.NoError(t, err)
	assert.Equal(t, 22050, loaded.SampleRate)
	assert.Len(t, loaded.Samples, 22050)
	assert.InDelta(t, 1.0, loaded.Duration, 1e-9)
}

func TestLoadRehashesChangedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loader := NewLoader()
	path := writeTestWAV(t, dir, "a.wav", sineWave(440, 0.1, 8000), 8000)
	first, err := loader.Load(context.Background(), path, LoadOptions{})
	require.NoError(t, err)

	writeTestWAV(t, dir, "a.wav", sineWave(880, 0.2, 8000), 8000)
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	second, err := loader.Load(context.Background(), path, LoadOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Source.ContentHash, second.Source.ContentHash)
}

func TestExtractMetadataNeverFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.mp3")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xFB, 0x00}, 0o644))

	meta := ExtractMetadata(context.Background(), path, FormatMP3)
	assert.Empty(t, meta.Title)

	missing := ExtractMetadata(context.Background(), filepath.Join(t.TempDir(), "gone.wav"), FormatWAV)
	assert.Equal(t, Metadata{}, missing)
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyBalanced, s)

	s, err = ParseStrategy("QUALITY")
	require.NoError(t, err)
	assert.Equal(t, StrategyQuality, s)

	_, err = ParseStrategy("turbo")
	assert.Error(t, err)
}

func TestHasAudioExtension(t *testing.T) {
	t.Parallel()

	assert.True(t, HasAudioExtension("kick.WAV"))
	assert.True(t, HasAudioExtension("dir/loop.flac"))
	assert.False(t, HasAudioExtension("notes.txt"))
	assert.False(t, HasAudioExtension("README"))
}
