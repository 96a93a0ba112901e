package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"samplemind/utils"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
)

const DefaultProviderTimeout = 30 * time.Second

type Options struct {
	// ProviderTimeout bounds one adapter call.
	ProviderTimeout time.Duration
	// RequestTimeout bounds the whole request including failover. Zero
	// means twice the provider timeout.
	RequestTimeout time.Duration
	Failover       bool
	// Cache is optional; nil disables response caching.
	Cache ResponseCache
}

func DefaultOptions() Options {
	return Options{
		ProviderTimeout: DefaultProviderTimeout,
		RequestTimeout:  2 * DefaultProviderTimeout,
		Failover:        true,
	}
}

// Stats are the orchestrator-wide totals.
type Stats struct {
	Requests    int              `json:"requests"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	CacheHits   int              `json:"cache_hits"`
	CacheMisses int              `json:"cache_misses"`
	Failovers   int              `json:"failovers"`
	TotalCost   float64          `json:"total_cost"`
	CostSaved   float64          `json:"cost_saved"`
	Providers   []ProviderStatus `json:"providers"`
}

// Orchestrator serves analysis requests over a Registry: it routes, checks
// the response cache, calls the adapter and fails over to other providers
// on local failures.
type Orchestrator struct {
	registry *Registry
	opts     Options
	now      func() time.Time

	mu    sync.Mutex
	stats Stats
}

func NewOrchestrator(registry *Registry, opts Options) *Orchestrator {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * opts.ProviderTimeout
	}
	return &Orchestrator{registry: registry, opts: opts, now: time.Now}
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

// Analyze serves req and returns a complete Result or an error; partial
// results are never returned.
func (o *Orchestrator) Analyze(ctx context.Context, req *Request) (*Result, error) {
	logger := utils.GetLogger()

	if req == nil || req.Features == nil {
		return nil, fmt.Errorf("%w: missing feature record", ErrInvalidRequest)
	}
	r := *req
	if r.Kind == "" {
		r.Kind = KindComprehensive
	}
	if _, ok := tasks[r.Kind]; !ok {
		return nil, fmt.Errorf("%w: unknown analysis kind %q", ErrInvalidRequest, r.Kind)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	o.count(func(s *Stats) { s.Requests++ })

	fingerprint, err := Fingerprint(r.Features)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()

	id, err := o.registry.Select(r.Kind, r.Preferred)
	if err != nil {
		o.count(func(s *Stats) { s.Failed++ })
		logger.WarnContext(ctx, "no provider available",
			slog.String("request_id", r.ID), slog.String("kind", string(r.Kind)))
		return nil, err
	}

	if hit := o.lookup(reqCtx, &r, fingerprint, id); hit != nil {
		return hit, nil
	}

	var attempts []Attempt
	tried := []ProviderID{}
	for {
		if err := o.interrupted(ctx, reqCtx); err != nil {
			o.count(func(s *Stats) { s.Failed++ })
			return nil, err
		}

		tried = append(tried, id)
		if o.registry.reserve(id) {
			res, err := o.dispatch(ctx, reqCtx, id, &r)
			if err == nil {
				o.store(reqCtx, &r, fingerprint, res)
				o.count(func(s *Stats) {
					s.Succeeded++
					s.TotalCost += res.Cost
					if len(attempts) > 0 {
						s.Failovers++
					}
				})
				return res, nil
			}

			attempts = append(attempts, Attempt{Provider: id, Err: err})
			if IsTerminal(err) {
				o.count(func(s *Stats) { s.Failed++ })
				return nil, err
			}
			logger.WarnContext(ctx, "provider failed",
				slog.String("request_id", r.ID),
				slog.String("provider", string(id)),
				slog.Any("error", xerrors.New(err)))
			if !o.opts.Failover {
				o.count(func(s *Stats) { s.Failed++ })
				return nil, &AllProvidersFailedError{Attempts: attempts, Last: err}
			}
		}

		next, err := o.registry.Next(tried...)
		if err != nil {
			o.count(func(s *Stats) { s.Failed++ })
			if len(attempts) == 0 {
				return nil, ErrNoProviderAvailable
			}
			last := attempts[len(attempts)-1].Err
			logger.ErrorContext(ctx, "all providers failed",
				slog.String("request_id", r.ID),
				slog.Int("attempts", len(attempts)),
				slog.Any("error", xerrors.New(last)))
			return nil, &AllProvidersFailedError{Attempts: attempts, Last: last}
		}
		id = next
	}
}

// dispatch runs one adapter call under the provider timeout and records
// its outcome in the registry.
func (o *Orchestrator) dispatch(ctx, reqCtx context.Context, id ProviderID, req *Request) (*Result, error) {
	adapter, err := o.registry.Adapter(id)
	if err != nil {
		return nil, err
	}
	cfg, err := o.registry.Config(id)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(reqCtx, o.opts.ProviderTimeout)
	defer cancel()

	start := time.Now()
	res, err := adapter.Analyze(callCtx, req)
	latency := time.Since(start)
	if err == nil && res == nil {
		err = &ParseError{Provider: id, Reason: "adapter returned no result"}
	}
	if err != nil {
		err = o.classify(ctx, reqCtx, callCtx, id, err)
		if IsTerminal(err) {
			o.registry.recordAborted(id, err)
		} else {
			o.registry.recordFailure(id, err)
		}
		return nil, err
	}

	res.Provider = id
	res.Kind = req.Kind
	if res.Model == "" {
		res.Model = adapter.Model()
	}
	res.normalize()
	res.Cost = float64(res.TokensUsed) * cfg.CostPerToken
	res.ProcessingTime = latency.Seconds()
	res.Timestamp = float64(o.now().UnixNano()) / 1e9
	res.RequestID = req.ID
	res.Cached = false

	o.registry.recordSuccess(id, res.TokensUsed, latency, res.Cost)
	utils.GetLogger().InfoContext(ctx, "analysis complete",
		slog.String("request_id", req.ID),
		slog.String("provider", string(id)),
		slog.String("kind", string(req.Kind)),
		slog.Int("tokens", res.TokensUsed),
		slog.Duration("latency", latency))
	return res, nil
}

// classify maps an adapter error onto the failure taxonomy. Caller
// cancellation and the request deadline are terminal; everything else is a
// local provider failure.
func (o *Orchestrator) classify(ctx, reqCtx, callCtx context.Context, id ProviderID, err error) error {
	if cause := o.interrupted(ctx, reqCtx); cause != nil {
		return fmt.Errorf("%w (%s: %v)", cause, id, err)
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrProviderTimeout, id, o.opts.ProviderTimeout)
	}
	if IsFailoverEligible(err) {
		return err
	}
	return &ProviderHTTPError{Provider: id, Body: err.Error()}
}

// interrupted reports the terminal error for a cancelled caller or an
// exhausted request budget.
func (o *Orchestrator) interrupted(ctx, reqCtx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrCancelled
	}
	if reqCtx.Err() != nil {
		return ErrTimeout
	}
	return nil
}

func (o *Orchestrator) cacheKey(req *Request, fingerprint string, id ProviderID) (string, bool) {
	adapter, err := o.registry.Adapter(id)
	if err != nil {
		return "", false
	}
	key, err := CacheKey(fingerprint, req.Kind, id, adapter.Model())
	if err != nil {
		return "", false
	}
	return key, true
}

func (o *Orchestrator) lookup(ctx context.Context, req *Request, fingerprint string, id ProviderID) *Result {
	if o.opts.Cache == nil || req.BypassCache {
		return nil
	}
	key, ok := o.cacheKey(req, fingerprint, id)
	if !ok {
		return nil
	}

	res, hit, err := o.opts.Cache.Get(ctx, key)
	if err != nil {
		utils.GetLogger().WarnContext(ctx, "response cache read failed",
			slog.String("request_id", req.ID), slog.Any("error", xerrors.New(err)))
		hit = false
	}
	if !hit {
		o.count(func(s *Stats) { s.CacheMisses++ })
		return nil
	}

	res.Cached = true
	res.RequestID = req.ID
	o.count(func(s *Stats) {
		s.CacheHits++
		s.Succeeded++
		s.CostSaved += res.Cost
	})
	utils.GetLogger().InfoContext(ctx, "analysis served from cache",
		slog.String("request_id", req.ID), slog.String("provider", string(id)))
	return res
}

func (o *Orchestrator) store(ctx context.Context, req *Request, fingerprint string, res *Result) {
	if o.opts.Cache == nil {
		return
	}
	key, ok := o.cacheKey(req, fingerprint, res.Provider)
	if !ok {
		return
	}
	stored := *res
	stored.RequestID = ""
	if err := o.opts.Cache.Set(ctx, key, &stored, res.Cost); err != nil {
		utils.GetLogger().WarnContext(ctx, "response cache write failed",
			slog.String("request_id", req.ID), slog.Any("error", xerrors.New(err)))
	}
}

func (o *Orchestrator) count(fn func(*Stats)) {
	o.mu.Lock()
	fn(&o.stats)
	o.mu.Unlock()
}

// Stats returns the totals together with a registry snapshot.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	s := o.stats
	o.mu.Unlock()
	s.Providers = o.registry.Status()
	return s
}
