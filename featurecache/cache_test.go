package featurecache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"samplemind/audio"
	"samplemind/db"
	"samplemind/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(path string) *features.Record {
	return &features.Record{
		Source:   audio.Identity{Path: path, ContentHash: "hash-" + path},
		Depth:    features.DepthBasic,
		Params:   features.DefaultParams(),
		OK:       true,
		Basic:    &features.Basic{Duration: 1, SampleRate: 22050, Channels: 1},
		Warnings: []string{},
	}
}

func TestKeyDependsOnEveryField(t *testing.T) {
	t.Parallel()

	mtime := time.Unix(1700000000, 0)
	params := features.DefaultParams()
	base, err := Key("abc", 10, mtime, features.DepthStandard, params)
	require.NoError(t, err)

	same, err := Key("abc", 10, mtime, features.DepthStandard, params)
	require.NoError(t, err)
	assert.Equal(t, base, same)

	changed := params
	changed.NMFCC = 13
	variants := []struct {
		hash  string
		size  int64
		mtime time.Time
		depth features.Depth
		p     features.Params
	}{
		{"abd", 10, mtime, features.DepthStandard, params},
		{"abc", 11, mtime, features.DepthStandard, params},
		{"abc", 10, mtime.Add(time.Nanosecond), features.DepthStandard, params},
		{"abc", 10, mtime, features.DepthDetailed, params},
		{"abc", 10, mtime, features.DepthStandard, changed},
	}
	for _, v := range variants {
		k, err := Key(v.hash, v.size, v.mtime, v.depth, v.p)
		require.NoError(t, err)
		assert.NotEqual(t, base, k)
	}
}

func TestStoreFirstWriterWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(4)

	first, second := record("a"), record("b")
	assert.True(t, c.Store(ctx, "k", first))
	assert.False(t, c.Store(ctx, "k", second))

	got, ok := c.Lookup(ctx, "k")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestConcurrentWritersCollapse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(4)

	var wg sync.WaitGroup
	var mu sync.Mutex
	kept := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Store(ctx, "k", record("a")) {
				mu.Lock()
				kept++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, kept)
	assert.Equal(t, 1, c.Len())
}

func TestFIFOEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(2)

	c.Store(ctx, "a", record("a"))
	c.Store(ctx, "b", record("b"))
	_, _ = c.Lookup(ctx, "a")
	c.Store(ctx, "c", record("c"))

	_, ok := c.Lookup(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRUEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(2, WithPolicy(LRU()))

	c.Store(ctx, "a", record("a"))
	c.Store(ctx, "b", record("b"))
	_, _ = c.Lookup(ctx, "a")
	c.Store(ctx, "c", record("c"))

	_, ok := c.Lookup(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Lookup(ctx, "b")
	assert.False(t, ok)
}

func TestBackingSurvivesRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, err := db.NewSQLiteClient(filepath.Join(t.TempDir(), "cache.sqlite3"))
	require.NoError(t, err)
	defer client.Close()

	first := New(4, WithBacking(client))
	require.True(t, first.Store(ctx, "k", record("a")))

	restarted := New(4, WithBacking(client))
	got, ok := restarted.Lookup(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "a", got.Source.Path)
	assert.Equal(t, features.Float(1), got.Basic.Duration)

	require.NoError(t, restarted.Clear(ctx))
	_, ok = New(4, WithBacking(client)).Lookup(ctx, "k")
	assert.False(t, ok)
}

func TestStatsHitRate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(2)

	c.Store(ctx, "a", record("a"))
	_, _ = c.Lookup(ctx, "a")
	_, _ = c.Lookup(ctx, "missing")

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.InDelta(t, 0.5, s.HitRate, 1e-12)
}
