package engine

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"samplemind/audio"
	"samplemind/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSine(t *testing.T, dir, name string, freq float64, seconds float64) string {
	t.Helper()
	const sr = 22050
	samples := make([]float64, int(seconds*sr))
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/sr)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audio.WriteWAV(f, samples, sr))
	require.NoError(t, f.Close())
	return path
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Workers = 2
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func TestAnalyzeCacheHit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEngine(t)
	path := writeSine(t, t.TempDir(), "tone.wav", 440, 3)

	started := time.Now()
	first, err := e.Analyze(ctx, path, features.DepthStandard, true)
	require.NoError(t, err)
	cold := time.Since(started)

	started = time.Now()
	second, err := e.Analyze(ctx, path, features.DepthStandard, true)
	require.NoError(t, err)
	warm := time.Since(started)

	assert.Equal(t, first, second)
	assert.Less(t, warm, cold/10)

	s := e.Stats()
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.CacheMisses)
	assert.Equal(t, int64(2), s.FilesAnalyzed)
}

func TestCancelledCallerDoesNotFailSharedAnalysis(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	path := writeSine(t, t.TempDir(), "long.wav", 220, 20)

	cancelled, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var (
		wg         sync.WaitGroup
		errA, errB error
		recB       *features.Record
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = e.Analyze(cancelled, path, features.DepthProfessional, true)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		recB, errB = e.Analyze(context.Background(), path, features.DepthProfessional, true)
	}()
	wg.Wait()

	require.NoError(t, errB)
	require.NotNil(t, recB)
	assert.True(t, recB.OK)
	if errA != nil {
		assert.ErrorIs(t, errA, context.DeadlineExceeded)
	}
}

func TestAnalyzeMissingFileIsNotCached(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	_, err := e.Analyze(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), features.DepthStandard, true)
	require.ErrorIs(t, err, audio.ErrFileNotFound)
	assert.True(t, IsInputError(err))
	assert.Zero(t, e.Stats().FeatureCache.Size)
	assert.Equal(t, int64(1), e.Stats().Failures)
}

func TestAnalyzeWithoutCacheIsDeterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEngine(t)
	path := writeSine(t, t.TempDir(), "tone.wav", 330, 1)

	a, err := e.Analyze(ctx, path, features.DepthDetailed, false)
	require.NoError(t, err)
	b, err := e.Analyze(ctx, path, features.DepthDetailed, false)
	require.NoError(t, err)

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Zero(t, e.Stats().FeatureCache.Size)
}

func TestAnalyzeManyKeepsInputOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	e := newTestEngine(t)

	paths := []string{
		writeSine(t, dir, "a.wav", 220, 0.5),
		filepath.Join(dir, "missing.wav"),
		writeSine(t, dir, "b.wav", 440, 0.5),
		writeSine(t, dir, "c.wav", 880, 0.5),
	}
	notAudio := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notAudio, []byte("plain text, not audio"), 0o644))
	paths = append(paths, notAudio)

	seen := make(chan int, len(paths))
	records := e.AnalyzeMany(context.Background(), paths, features.DepthBasic, BatchOptions{
		Parallel: true,
		UseCache: true,
		OnResult: func(i int, _ *features.Record) { seen <- i },
	})
	require.Len(t, records, len(paths))
	assert.Len(t, seen, len(paths))

	for i, rec := range records {
		require.NotNil(t, rec)
		if i == 1 || i == 4 {
			assert.False(t, rec.OK)
			assert.NotEmpty(t, rec.Error)
			assert.Equal(t, paths[i], rec.Source.Path)
			continue
		}
		assert.True(t, rec.OK)
		assert.Equal(t, filepath.Base(paths[i]), filepath.Base(rec.Source.Path))
	}
}

func TestClearCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEngine(t)
	path := writeSine(t, t.TempDir(), "tone.wav", 440, 0.5)

	_, err := e.Analyze(ctx, path, features.DepthBasic, true)
	require.NoError(t, err)
	require.Equal(t, 1, e.Stats().FeatureCache.Size)

	require.NoError(t, e.ClearCache(ctx))
	assert.Zero(t, e.Stats().FeatureCache.Size)
}

func TestExportImport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEngine(t)
	dir := t.TempDir()
	path := writeSine(t, dir, "tone.wav", 440, 0.5)

	rec, err := e.Analyze(ctx, path, features.DepthStandard, true)
	require.NoError(t, err)

	out := filepath.Join(dir, "out", "records.json")
	require.NoError(t, Export([]*features.Record{rec}, out))

	imported, err := Import(out)
	require.NoError(t, err)
	require.Len(t, imported, 1)

	want, err := rec.Digest()
	require.NoError(t, err)
	got, err := imported[0].Digest()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
