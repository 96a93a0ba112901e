package featurecache

// Feature cache
//
// Records are keyed by a digest of the audio content hash, file size and
// mtime, the analysis depth and the extractor parameters, so any change to
// the file or the settings produces a new key. The memory tier is bounded;
// when a Backing is configured every stored record is also written through
// to it and memory misses fall back to it.
//
// Writes are first-writer-wins: when two analyses of the same key race, the
// second Store is a no-op and callers read back the first record.

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"samplemind/db"
	"samplemind/features"
	"samplemind/utils"

	"github.com/mdobak/go-xerrors"
)

const DefaultCapacity = 1000

// KeyFields are the inputs of a cache key.
type KeyFields struct {
	ContentHash string          `json:"content_hash"`
	Size        int64           `json:"size"`
	ModTimeNS   int64           `json:"mtime_ns"`
	Depth       features.Depth  `json:"depth"`
	Params      features.Params `json:"params"`
}

// Key digests the fields that identify one cached record.
func Key(contentHash string, size int64, mtime time.Time, depth features.Depth, params features.Params) (string, error) {
	return utils.CanonicalDigest(KeyFields{
		ContentHash: contentHash,
		Size:        size,
		ModTimeNS:   mtime.UnixNano(),
		Depth:       depth,
		Params:      params,
	})
}

// Backing persists records beyond the memory tier.
type Backing interface {
	StoreRecord(ctx context.Context, rec db.StoredRecord) (bool, error)
	GetRecord(ctx context.Context, key string) (db.StoredRecord, bool, error)
	DeleteRecords(ctx context.Context) error
}

type Stats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

type Cache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]*features.Record
	policy   Policy
	backing  Backing

	hits, misses, evictions int64
}

type Option func(*Cache)

// WithPolicy replaces the default FIFO eviction policy.
func WithPolicy(p Policy) Option {
	return func(c *Cache) { c.policy = p }
}

func WithBacking(b Backing) Option {
	return func(c *Cache) { c.backing = b }
}

func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		capacity: capacity,
		entries:  make(map[string]*features.Record, capacity),
		policy:   FIFO(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the record stored under key, if any.
func (c *Cache) Lookup(ctx context.Context, key string) (*features.Record, bool) {
	c.mu.Lock()
	rec, ok := c.entries[key]
	if ok {
		c.hits++
		c.policy.Accessed(key)
		c.mu.Unlock()
		return rec, true
	}
	c.mu.Unlock()

	if c.backing != nil {
		if rec, ok := c.loadBacking(ctx, key); ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.hits++
			if existing, ok := c.entries[key]; ok {
				return existing, true
			}
			c.insert(key, rec)
			return rec, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

func (c *Cache) loadBacking(ctx context.Context, key string) (*features.Record, bool) {
	logger := utils.GetLogger()
	stored, ok, err := c.backing.GetRecord(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "feature cache backing read failed", slog.Any("error", xerrors.New(err)))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var rec features.Record
	if err := json.Unmarshal(stored.Data, &rec); err != nil {
		logger.WarnContext(ctx, "discarding unreadable cached record",
			slog.String("key", key),
			slog.Any("error", xerrors.New(err)),
		)
		return nil, false
	}
	return &rec, true
}

// Store saves rec under key unless a record is already there. It reports
// whether rec was the one kept.
func (c *Cache) Store(ctx context.Context, key string, rec *features.Record) bool {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return false
	}
	c.insert(key, rec)
	c.mu.Unlock()

	if c.backing != nil {
		c.writeBacking(ctx, key, rec)
	}
	return true
}

func (c *Cache) writeBacking(ctx context.Context, key string, rec *features.Record) {
	logger := utils.GetLogger()
	data, err := json.Marshal(rec)
	if err != nil {
		logger.WarnContext(ctx, "feature record not persisted", slog.Any("error", xerrors.New(err)))
		return
	}
	_, err = c.backing.StoreRecord(ctx, db.StoredRecord{
		Key:         key,
		ContentHash: rec.Source.ContentHash,
		Depth:       string(rec.Depth),
		Data:        data,
	})
	if err != nil {
		logger.WarnContext(ctx, "feature record not persisted", slog.Any("error", xerrors.New(err)))
	}
}

// insert expects c.mu to be held.
func (c *Cache) insert(key string, rec *features.Record) {
	for len(c.entries) >= c.capacity {
		victim, ok := c.policy.Victim()
		if !ok {
			break
		}
		c.policy.Removed(victim)
		delete(c.entries, victim)
		c.evictions++
	}
	c.entries[key] = rec
	c.policy.Added(key)
}

// Clear empties the memory tier and the backing store.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	for key := range c.entries {
		c.policy.Removed(key)
	}
	c.entries = make(map[string]*features.Record, c.capacity)
	c.mu.Unlock()

	if c.backing != nil {
		return c.backing.DeleteRecords(ctx)
	}
	return nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{
		Size:      len(c.entries),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
