package engine

// Audio Analysis Core
//
// Analyze resolves a path to a feature record:
//
//	stat -> content hash -> cache lookup -> load -> extract -> cache store
//
// A missing file fails before anything is cached. Concurrent Analyze calls
// for the same cache key share one extraction that no single caller can
// cancel for the others, and whichever record reaches the cache first is
// the one every caller gets back.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"samplemind/audio"
	"samplemind/featurecache"
	"samplemind/features"
	"samplemind/utils"

	"github.com/mdobak/go-xerrors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	Workers       int
	CacheCapacity int
	Load          audio.LoadOptions
	Params        features.Params
	// Backing persists cached records; nil keeps them in memory only.
	Backing featurecache.Backing
}

func DefaultOptions() Options {
	return Options{
		CacheCapacity: featurecache.DefaultCapacity,
		Load:          audio.LoadOptions{Strategy: audio.StrategyBalanced},
		Params:        features.DefaultParams(),
	}
}

type Stats struct {
	FilesAnalyzed int64              `json:"files_analyzed"`
	Failures      int64              `json:"failures"`
	CacheHits     int64              `json:"cache_hits"`
	CacheMisses   int64              `json:"cache_misses"`
	TotalTime     time.Duration      `json:"total_processing_time"`
	MeanTime      time.Duration      `json:"mean_processing_time"`
	Workers       int                `json:"workers"`
	FeatureCache  featurecache.Stats `json:"feature_cache"`
}

type Engine struct {
	loader    *audio.Loader
	extractor *features.Extractor
	cache     *featurecache.Cache
	pool      *Pool
	flight    singleflight.Group
	load      audio.LoadOptions

	mu    sync.Mutex
	stats Stats
}

func New(opts Options) (*Engine, error) {
	extractor, err := features.NewExtractor(opts.Params)
	if err != nil {
		return nil, err
	}
	var cacheOpts []featurecache.Option
	if opts.Backing != nil {
		cacheOpts = append(cacheOpts, featurecache.WithBacking(opts.Backing))
	}
	return &Engine{
		loader:    audio.NewLoader(),
		extractor: extractor,
		cache:     featurecache.New(opts.CacheCapacity, cacheOpts...),
		pool:      NewPool(opts.Workers),
		load:      opts.Load,
	}, nil
}

// Analyze returns the feature record of the file at path. With useCache
// false the cache is neither read nor written.
func (e *Engine) Analyze(ctx context.Context, path string, depth features.Depth, useCache bool) (*features.Record, error) {
	logger := utils.GetLogger()
	started := time.Now()

	rec, err := e.analyze(ctx, path, depth, useCache)
	if err != nil {
		e.mu.Lock()
		e.stats.Failures++
		e.mu.Unlock()
		logger.ErrorContext(ctx, "analysis failed",
			slog.String("path", path),
			slog.String("depth", string(depth)),
			slog.Any("error", xerrors.New(err)),
		)
		return nil, err
	}

	e.mu.Lock()
	e.stats.FilesAnalyzed++
	e.stats.TotalTime += time.Since(started)
	e.mu.Unlock()
	return rec, nil
}

func (e *Engine) analyze(ctx context.Context, path string, depth features.Depth, useCache bool) (*features.Record, error) {
	abs, info, err := audio.Stat(path)
	if err != nil {
		return nil, err
	}
	if !useCache {
		return e.extract(ctx, abs, depth)
	}

	hash, err := e.loader.Hash(abs, info)
	if err != nil {
		return nil, err
	}
	key, err := featurecache.Key(hash, info.Size(), info.ModTime(), depth, e.extractor.Params())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", features.ErrFeatureExtraction, err)
	}

	if rec, ok := e.cache.Lookup(ctx, key); ok {
		e.countCache(true)
		return rec, nil
	}
	e.countCache(false)

	// The shared extraction outlives any single caller; each caller stops
	// waiting on its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(key, func() (interface{}, error) {
		rec, err := e.extract(shared, abs, depth)
		if err != nil {
			return nil, err
		}
		if !e.cache.Store(shared, key, rec) {
			if existing, ok := e.cache.Lookup(shared, key); ok {
				return existing, nil
			}
		}
		return rec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*features.Record), nil
	}
}

func (e *Engine) extract(ctx context.Context, abs string, depth features.Depth) (*features.Record, error) {
	var rec *features.Record
	err := e.pool.Run(ctx, func() error {
		loaded, err := e.loader.Load(ctx, abs, e.load)
		if err != nil {
			return err
		}
		rec, err = e.extractor.Extract(ctx, loaded, depth)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) countCache(hit bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if hit {
		e.stats.CacheHits++
	} else {
		e.stats.CacheMisses++
	}
}

// BatchOptions tunes AnalyzeMany. OnResult, when set, is called once per
// finished item, possibly from several goroutines at a time.
type BatchOptions struct {
	Parallel bool
	UseCache bool
	OnResult func(index int, rec *features.Record)
}

// AnalyzeMany analyzes every path and returns records in input order. A
// failed item becomes a placeholder record with OK false; the batch itself
// never fails.
func (e *Engine) AnalyzeMany(ctx context.Context, paths []string, depth features.Depth, opts BatchOptions) []*features.Record {
	results := make([]*features.Record, len(paths))

	run := func(i int) {
		rec, err := e.Analyze(ctx, paths[i], depth, opts.UseCache)
		if err != nil {
			rec = features.Placeholder(paths[i], depth, err)
		}
		results[i] = rec
		if opts.OnResult != nil {
			opts.OnResult(i, rec)
		}
	}

	if !opts.Parallel {
		for i := range paths {
			run(i)
		}
		return results
	}

	g := new(errgroup.Group)
	g.SetLimit(e.pool.Size())
	for i := range paths {
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := e.stats
	e.mu.Unlock()

	if s.FilesAnalyzed > 0 {
		s.MeanTime = s.TotalTime / time.Duration(s.FilesAnalyzed)
	}
	s.Workers = e.pool.Size()
	s.FeatureCache = e.cache.Stats()
	return s
}

// ClearCache drops every cached record, persisted ones included.
func (e *Engine) ClearCache(ctx context.Context) error {
	return e.cache.Clear(ctx)
}

// IsInputError reports whether err comes from the file itself rather than
// from feature extraction.
func IsInputError(err error) bool {
	return errors.Is(err, audio.ErrFileNotFound) ||
		errors.Is(err, audio.ErrUnsupportedFormat) ||
		errors.Is(err, audio.ErrDecode) ||
		errors.Is(err, audio.ErrIO)
}
