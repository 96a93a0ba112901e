package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"samplemind/db"
	"samplemind/utils"
)

// DefaultCacheTTL is how long a cached analysis stays valid unless
// configured otherwise.
const DefaultCacheTTL = time.Hour

// ResponseCache stores analysis results under a CacheKey. A returned result
// must equal the stored one up to serialization.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Set(ctx context.Context, key string, res *Result, costSaved float64) error
}

// CacheKey digests the identity of a cached analysis.
func CacheKey(fingerprint string, kind Kind, provider ProviderID, model string) (string, error) {
	return utils.CanonicalDigest(map[string]string{
		"fingerprint": fingerprint,
		"kind":        string(kind),
		"provider":    string(provider),
		"model":       model,
	})
}

// cachedEntry is the stored form of a result in every backend.
type cachedEntry struct {
	Result    *Result   `json:"result"`
	CostSaved float64   `json:"cost_saved"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func encodeResult(res *Result) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("error encoding cached result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("error decoding cached result: %w", err)
	}
	res.normalize()
	return &res, nil
}

// MemoryCache keeps serialized results in process memory.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	costSaved float64
	cachedAt  time.Time
	expiresAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Result, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	res, err := decodeResult(e.data)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, res *Result, costSaved float64) error {
	data, err := encodeResult(res)
	if err != nil {
		return err
	}
	now := c.now()
	c.mu.Lock()
	c.entries[key] = memoryEntry{data: data, costSaved: costSaved, cachedAt: now, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// FileCache keeps one JSON file per key under a directory.
type FileCache struct {
	mu  sync.RWMutex
	dir string
	ttl time.Duration
	now func() time.Time
}

func NewFileCache(dir string, ttl time.Duration) (*FileCache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if err := utils.CreateFolder(dir); err != nil {
		return nil, fmt.Errorf("error creating cache directory: %w", err)
	}
	return &FileCache{dir: dir, ttl: ttl, now: time.Now}, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *FileCache) Get(_ context.Context, key string) (*Result, bool, error) {
	c.mu.RLock()
	data, err := os.ReadFile(c.path(key))
	c.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reading cache file: %w", err)
	}

	var entry cachedEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Result == nil {
		// A torn or foreign file is a miss; the next Set replaces it.
		return nil, false, nil
	}
	if !c.now().Before(entry.ExpiresAt) {
		c.mu.Lock()
		_ = os.Remove(c.path(key))
		c.mu.Unlock()
		return nil, false, nil
	}
	entry.Result.normalize()
	return entry.Result, true, nil
}

func (c *FileCache) Set(_ context.Context, key string, res *Result, costSaved float64) error {
	now := c.now()
	data, err := json.MarshalIndent(cachedEntry{
		Result:    res,
		CostSaved: costSaved,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing cache file: %w", err)
	}
	if err := os.Rename(tmp, c.path(key)); err != nil {
		return fmt.Errorf("error replacing cache file: %w", err)
	}
	return nil
}

// AnalysisStore is the key-value contract of the db clients.
type AnalysisStore interface {
	PutAnalysis(ctx context.Context, a db.StoredAnalysis) error
	GetAnalysis(ctx context.Context, key string, now time.Time) (db.StoredAnalysis, bool, error)
}

// KVCache adapts an AnalysisStore (SQLite or MongoDB) to a ResponseCache.
type KVCache struct {
	store AnalysisStore
	ttl   time.Duration
	now   func() time.Time
}

func NewKVCache(store AnalysisStore, ttl time.Duration) *KVCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &KVCache{store: store, ttl: ttl, now: time.Now}
}

func (c *KVCache) Get(ctx context.Context, key string) (*Result, bool, error) {
	stored, ok, err := c.store.GetAnalysis(ctx, key, c.now())
	if err != nil || !ok {
		return nil, false, err
	}
	res, err := decodeResult(stored.Data)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (c *KVCache) Set(ctx context.Context, key string, res *Result, costSaved float64) error {
	data, err := encodeResult(res)
	if err != nil {
		return err
	}
	now := c.now()
	return c.store.PutAnalysis(ctx, db.StoredAnalysis{
		Key:       key,
		Data:      data,
		CostSaved: costSaved,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
}
