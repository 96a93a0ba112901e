package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"samplemind/ai"
	"samplemind/ai/anthropic"
	"samplemind/ai/gemini"
	"samplemind/ai/openai"
	"samplemind/audio"
	"samplemind/config"
	"samplemind/db"
	"samplemind/engine"
	"samplemind/features"
	"samplemind/models"
	"samplemind/utils"

	"github.com/mdobak/go-xerrors"
)

// app holds the long-lived components one command works with.
type app struct {
	cfg          config.Config
	store        *db.SQLiteClient
	engine       *engine.Engine
	orchestrator *ai.Orchestrator
	closers      []func()
}

func newApp(ctx context.Context, cfg config.Config, withAI bool) (*app, error) {
	a := &app{cfg: cfg}

	sqlite, err := db.NewSQLiteClient(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	a.closers = append(a.closers, func() { sqlite.Close() })
	a.store = sqlite

	strategy, err := audio.ParseStrategy(cfg.LoadStrategy)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := engine.DefaultOptions()
	opts.Workers = cfg.Workers
	opts.CacheCapacity = cfg.FeatureCacheSize
	opts.Load = audio.LoadOptions{Strategy: strategy, TargetRate: cfg.SampleRate}
	opts.Backing = sqlite
	a.engine, err = engine.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	if withAI {
		if a.orchestrator, err = a.buildOrchestrator(ctx, sqlite); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) buildOrchestrator(ctx context.Context, sqlite *db.SQLiteClient) (*ai.Orchestrator, error) {
	logger := utils.GetLogger()

	registry, err := a.buildRegistry(ctx)
	if err != nil {
		return nil, err
	}

	opts := ai.DefaultOptions()
	opts.ProviderTimeout = a.cfg.ProviderTimeout
	opts.RequestTimeout = a.cfg.RequestTimeout()

	switch strings.ToLower(a.cfg.CacheBackend) {
	case "", "memory":
		opts.Cache = ai.NewMemoryCache(a.cfg.CacheTTL)
	case "file":
		cache, err := ai.NewFileCache(a.cfg.CacheDir, a.cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		opts.Cache = cache
	case "kv":
		opts.Cache = ai.NewKVCache(sqlite, a.cfg.CacheTTL)
	case "mongo":
		mongoClient, err := db.NewMongoClient(ctx, a.cfg.MongoURI)
		if err != nil {
			logger.WarnContext(ctx, "mongo cache unavailable, using memory cache",
				slog.Any("error", xerrors.New(err)))
			opts.Cache = ai.NewMemoryCache(a.cfg.CacheTTL)
			break
		}
		a.closers = append(a.closers, func() { mongoClient.Close(context.Background()) })
		opts.Cache = ai.NewKVCache(mongoClient, a.cfg.CacheTTL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.cfg.CacheBackend)
	}

	return ai.NewOrchestrator(registry, opts), nil
}

// buildRegistry registers every configured provider that has a credential.
func (a *app) buildRegistry(ctx context.Context) (*ai.Registry, error) {
	logger := utils.GetLogger()

	cfgs, err := ai.LoadProviderConfigs(a.cfg.ProviderConfigPath)
	if err != nil {
		return nil, err
	}

	registry := ai.NewRegistry()
	for _, pc := range cfgs {
		var adapter ai.Adapter
		switch pc.Provider {
		case ai.ProviderGemini:
			if pc.APIKey = a.cfg.GeminiAPIKey; pc.APIKey != "" {
				adapter, err = gemini.NewAdapter(ctx, pc.APIKey)
			}
		case ai.ProviderAnthropic:
			if pc.APIKey = a.cfg.AnthropicAPIKey; pc.APIKey != "" {
				adapter = anthropic.NewAdapter(pc.APIKey, "")
			}
		case ai.ProviderOpenAI:
			if pc.APIKey = a.cfg.OpenAIAPIKey; pc.APIKey != "" {
				adapter = openai.NewAdapter(pc.APIKey, "")
			}
		}
		if err != nil {
			return nil, err
		}
		if adapter == nil {
			logger.InfoContext(ctx, "provider skipped, no credential", slog.String("provider", string(pc.Provider)))
			continue
		}
		if err := registry.Register(pc, adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// runAIAnalysis extracts features for req.Path and asks the orchestrator
// about them. progress, when set, is told about each stage.
func runAIAnalysis(ctx context.Context, e *engine.Engine, o *ai.Orchestrator, req models.AIAnalyzeRequest, requestID string, progress func(stage string)) (*models.AIAnalyzeResponse, error) {
	if progress == nil {
		progress = func(string) {}
	}
	kind, err := ai.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	preferred, err := ai.ParseProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	depth, err := features.ParseDepth(req.Depth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrInvalidRequest, err)
	}

	progress("features")
	rec, err := e.Analyze(ctx, req.Path, depth, true)
	if err != nil {
		return nil, err
	}

	progress("ai")
	res, err := o.Analyze(ctx, &ai.Request{
		Features:    rec,
		Kind:        kind,
		Preferred:   preferred,
		UserContext: req.UserContext,
		BypassCache: req.BypassCache,
		ID:          requestID,
	})
	if err != nil {
		return nil, err
	}
	res.RawResponse = ""
	return &models.AIAnalyzeResponse{Features: rec, Analysis: res}, nil
}
