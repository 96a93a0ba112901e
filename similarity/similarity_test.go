package similarity

import (
	"path/filepath"
	"testing"

	"samplemind/audio"
	"samplemind/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tonalRecord(path string, tempo float64, key, mode string, peak int) *features.Record {
	rec := &features.Record{
		Source:   audio.Identity{Path: path},
		Depth:    features.DepthBasic,
		OK:       true,
		Rhythmic: &features.Rhythmic{Tempo: features.Float(tempo)},
		Tonal:    &features.Tonal{Key: key, Mode: mode},
	}
	for i := range rec.Tonal.PitchClassDistribution {
		rec.Tonal.PitchClassDistribution[i] = 0.02
	}
	rec.Tonal.PitchClassDistribution[peak] = 0.78
	return rec
}

func TestTempoSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, TempoSimilarity(120, 120))
	assert.InDelta(t, 0.9, TempoSimilarity(120, 60), 1e-12)
	assert.InDelta(t, 0.9, TempoSimilarity(70, 140), 1e-12)
	assert.InDelta(t, 0.75, TempoSimilarity(90, 120), 1e-12)
	assert.Zero(t, TempoSimilarity(0, 120))
}

func TestKeySimilarity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b features.Tonal
		want float64
	}{
		{features.Tonal{Key: "C", Mode: "major"}, features.Tonal{Key: "C", Mode: "major"}, 1},
		{features.Tonal{Key: "C", Mode: "major"}, features.Tonal{Key: "A", Mode: "minor"}, 0.7},
		{features.Tonal{Key: "E", Mode: "minor"}, features.Tonal{Key: "G", Mode: "major"}, 0.7},
		{features.Tonal{Key: "C", Mode: "major"}, features.Tonal{Key: "G", Mode: "major"}, 0.5},
		{features.Tonal{Key: "C", Mode: "major"}, features.Tonal{Key: "F", Mode: "major"}, 0.5},
		{features.Tonal{Key: "C", Mode: "major"}, features.Tonal{Key: "C", Mode: "minor"}, 0},
		{features.Tonal{Key: "C", Mode: "major"}, features.Tonal{Key: "D", Mode: "major"}, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KeySimilarity(&tc.a, &tc.b), "%s %s vs %s %s", tc.a.Key, tc.a.Mode, tc.b.Key, tc.b.Mode)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	a := tonalRecord("a.wav", 120, "A", "major", 9)
	same, err := Compare(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1, same.Overall, 1e-12)
	assert.Nil(t, same.MFCC)

	b := tonalRecord("b.wav", 90, "D", "major", 2)
	diff, err := Compare(a, b)
	require.NoError(t, err)
	assert.Less(t, diff.Overall, same.Overall)
	assert.GreaterOrEqual(t, diff.Overall, 0.0)

	_, err = Compare(a, &features.Record{})
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestIndexQueryAndPersistence(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index", "library.json")

	idx, err := LoadIndex(path)
	require.NoError(t, err)
	assert.Zero(t, idx.Len())

	_, err = idx.Add(tonalRecord("a1.wav", 120, "A", "major", 9), "house", nil)
	require.NoError(t, err)
	_, err = idx.Add(tonalRecord("a2.wav", 122, "A", "major", 9), "house", map[string]string{"bpm": "122"})
	require.NoError(t, err)
	_, err = idx.Add(tonalRecord("d1.wav", 80, "D", "minor", 2), "hiphop", nil)
	require.NoError(t, err)
	require.NoError(t, idx.Save())

	reloaded, err := LoadIndex(path)
	require.NoError(t, err)
	require.Equal(t, 3, reloaded.Len())

	neighbors, err := reloaded.Query(tonalRecord("q.wav", 121, "A", "major", 9), 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "house", neighbors[0].Label)
	assert.Equal(t, "house", neighbors[1].Label)
	assert.InDelta(t, 1, neighbors[0].Confidence+neighbors[1].Confidence, 1e-9)
	assert.LessOrEqual(t, neighbors[0].Distance, neighbors[1].Distance)

	_, err = reloaded.Query(tonalRecord("q.wav", 121, "A", "major", 9), 0)
	assert.Error(t, err)
}
