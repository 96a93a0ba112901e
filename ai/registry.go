package ai

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

const rateWindow = time.Minute

// ProviderConfig is the persisted configuration of one provider. The
// credential is read from the environment and never written out.
type ProviderConfig struct {
	Provider             ProviderID `json:"provider" yaml:"provider"`
	Enabled              bool       `json:"enabled" yaml:"enabled"`
	Priority             int        `json:"priority" yaml:"priority"`
	MaxRequestsPerMinute int        `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	CostPerToken         float64    `json:"cost_per_token" yaml:"cost_per_token"`
	Features             []Kind     `json:"features" yaml:"features"`
	APIKey               string     `json:"-" yaml:"-"`
}

// ProviderStats are the running counters of one provider.
type ProviderStats struct {
	TotalRequests int     `json:"total_requests"`
	TotalTokens   int     `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
	Successes     int     `json:"successes"`
	Failures      int     `json:"failures"`
	Aborted       int     `json:"aborted"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	LastError     string  `json:"last_error,omitempty"`
}

// ProviderStatus is a point-in-time view of one provider.
type ProviderStatus struct {
	Config    ProviderConfig `json:"config"`
	Model     string         `json:"model"`
	Stats     ProviderStats  `json:"stats"`
	Remaining int            `json:"remaining_in_window"`
	Available bool           `json:"available"`
}

type provider struct {
	adapter Adapter

	mu          sync.Mutex
	cfg         ProviderConfig
	stats       ProviderStats
	windowStart time.Time
	count       int
}

// rollWindow resets the request counter once the window has elapsed.
// Callers hold p.mu.
func (p *provider) rollWindow(now time.Time) {
	if p.windowStart.IsZero() || now.Sub(p.windowStart) >= rateWindow {
		p.windowStart = now
		p.count = 0
	}
}

func (p *provider) withinBudget(now time.Time) bool {
	p.rollWindow(now)
	return p.cfg.MaxRequestsPerMinute <= 0 || p.count < p.cfg.MaxRequestsPerMinute
}

// Registry holds the providers and routes requests to them. Counters and
// stats of each provider are guarded by that provider's own lock, which is
// never held across I/O.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderID]*provider
	now       func() time.Time
}

type RegistryOption func(*Registry)

// WithClock replaces the clock used for rate-limit windows.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{providers: make(map[ProviderID]*provider), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a provider. The adapter must serve cfg.Provider.
func (r *Registry) Register(cfg ProviderConfig, adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("%w: %s has no adapter", ErrUnknownProvider, cfg.Provider)
	}
	if adapter.ID() != cfg.Provider {
		return fmt.Errorf("adapter %s registered as %s", adapter.ID(), cfg.Provider)
	}
	cfg.Features = slices.Clone(cfg.Features)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[cfg.Provider] = &provider{
		adapter: adapter,
		cfg:     cfg,
		stats:   ProviderStats{SuccessRate: 1},
	}
	return nil
}

func (r *Registry) get(id ProviderID) (*provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// Adapter returns the adapter registered for id.
func (r *Registry) Adapter(id ProviderID) (Adapter, error) {
	p, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return p.adapter, nil
}

// Config returns the current configuration of id.
func (r *Registry) Config(id ProviderID) (ProviderConfig, error) {
	p, err := r.get(id)
	if err != nil {
		return ProviderConfig{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg, nil
}

// Configs returns every provider configuration ordered by priority.
func (r *Registry) Configs() []ProviderConfig {
	status := r.Status()
	out := make([]ProviderConfig, len(status))
	for i, s := range status {
		out[i] = s.Config
	}
	return out
}

func (r *Registry) SetEnabled(id ProviderID, enabled bool) error {
	p, err := r.get(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg.Enabled = enabled
	p.mu.Unlock()
	return nil
}

func (r *Registry) SetPriority(id ProviderID, priority int) error {
	p, err := r.get(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg.Priority = priority
	p.mu.Unlock()
	return nil
}

// candidate is the routing view of one provider at selection time.
type candidate struct {
	id        ProviderID
	priority  int
	rate      float64
	latency   float64
	available bool
	affinity  []Kind
}

func (r *Registry) candidates() []candidate {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]candidate, 0, len(r.providers))
	for id, p := range r.providers {
		p.mu.Lock()
		out = append(out, candidate{
			id:        id,
			priority:  p.cfg.Priority,
			rate:      p.stats.SuccessRate,
			latency:   p.stats.AvgLatencyMs,
			available: p.cfg.Enabled && p.withinBudget(now),
			affinity:  p.cfg.Features,
		})
		p.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.rate != b.rate {
			return a.rate > b.rate
		}
		if a.latency != b.latency {
			return a.latency < b.latency
		}
		return a.id < b.id
	})
	return out
}

// Select picks a provider for kind without reserving capacity: the
// preferred provider when usable, then the best provider declaring an
// affinity for kind, then the best usable provider overall. Providers in
// exclude are skipped.
func (r *Registry) Select(kind Kind, preferred ProviderID, exclude ...ProviderID) (ProviderID, error) {
	ranked := r.candidates()
	usable := func(c candidate) bool {
		return c.available && !slices.Contains(exclude, c.id)
	}

	if preferred != "" {
		for _, c := range ranked {
			if c.id == preferred && usable(c) {
				return c.id, nil
			}
		}
	}
	for _, c := range ranked {
		if usable(c) && slices.Contains(c.affinity, kind) {
			return c.id, nil
		}
	}
	for _, c := range ranked {
		if usable(c) {
			return c.id, nil
		}
	}
	return "", ErrNoProviderAvailable
}

// Next picks the best usable provider by priority alone, skipping exclude.
// Failover walks providers this way so affinities only shape the first pick.
func (r *Registry) Next(exclude ...ProviderID) (ProviderID, error) {
	for _, c := range r.candidates() {
		if c.available && !slices.Contains(exclude, c.id) {
			return c.id, nil
		}
	}
	return "", ErrNoProviderAvailable
}

// reserve counts one dispatch against id's window. It fails when the
// provider is disabled or out of budget.
func (r *Registry) reserve(id ProviderID) bool {
	p, err := r.get(id)
	if err != nil {
		return false
	}
	now := r.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cfg.Enabled || !p.withinBudget(now) {
		return false
	}
	p.count++
	return true
}

func (r *Registry) recordSuccess(id ProviderID, tokens int, latency time.Duration, cost float64) {
	p, err := r.get(id)
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.stats
	s.TotalRequests++
	s.TotalTokens += tokens
	s.TotalCost += cost
	s.Successes++
	ms := float64(latency) / float64(time.Millisecond)
	s.AvgLatencyMs += (ms - s.AvgLatencyMs) / float64(s.Successes)
	s.SuccessRate = float64(s.Successes) / float64(s.Successes+s.Failures)
}

func (r *Registry) recordFailure(id ProviderID, failure error) {
	p, err := r.get(id)
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.stats
	s.TotalRequests++
	s.Failures++
	s.SuccessRate = float64(s.Successes) / float64(s.Successes+s.Failures)
	s.LastError = failure.Error()
}

// recordAborted counts a call ended by cancellation or the request deadline.
// It does not move the success rate.
func (r *Registry) recordAborted(id ProviderID, cause error) {
	p, err := r.get(id)
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.TotalRequests++
	p.stats.Aborted++
	p.stats.LastError = cause.Error()
}

// Status snapshots every provider ordered by priority.
func (r *Registry) Status() []ProviderStatus {
	now := r.now()
	r.mu.RLock()
	out := make([]ProviderStatus, 0, len(r.providers))
	for _, p := range r.providers {
		p.mu.Lock()
		available := p.cfg.Enabled && p.withinBudget(now)
		remaining := -1
		if p.cfg.MaxRequestsPerMinute > 0 {
			remaining = p.cfg.MaxRequestsPerMinute - p.count
		}
		cfg := p.cfg
		cfg.Features = slices.Clone(cfg.Features)
		out = append(out, ProviderStatus{
			Config:    cfg,
			Model:     p.adapter.Model(),
			Stats:     p.stats,
			Remaining: remaining,
			Available: available,
		})
		p.mu.Unlock()
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Config.Priority != out[j].Config.Priority {
			return out[i].Config.Priority < out[j].Config.Priority
		}
		return out[i].Config.Provider < out[j].Config.Provider
	})
	return out
}
