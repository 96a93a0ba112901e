package similarity

// Library index
//
// The index keeps one descriptor vector per analyzed file and answers
// "which files sound most like this one" by k-nearest-neighbour search:
//
//  1. a z-score scaler is fitted over every stored vector
//  2. stored and query vectors are scaled and L2 normalised
//  3. distance is Euclidean; the k closest entries are returned with
//     weight 1/(distance+eps) and confidence = weight / sum of weights
//
// Raw vectors are persisted, so the scaler always reflects the current
// library rather than the one present when an entry was added.

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"samplemind/features"
	"samplemind/utils"

	"github.com/google/uuid"
)

const weightEpsilon = 1e-9

type Entry struct {
	ID       string            `json:"id"`
	Path     string            `json:"path"`
	Label    string            `json:"label,omitempty"`
	Vector   []float64         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
	AddedAt  time.Time         `json:"added_at"`
}

type Neighbor struct {
	ID         string  `json:"id"`
	Path       string  `json:"path"`
	Label      string  `json:"label,omitempty"`
	Distance   float64 `json:"distance"`
	Weight     float64 `json:"weight"`
	Confidence float64 `json:"confidence"`
}

type Index struct {
	mu      sync.RWMutex
	entries []Entry
	path    string
}

func NewIndex(path string) *Index {
	return &Index{path: path}
}

// LoadIndex reads an index saved at path. A missing file yields an empty
// index bound to that path.
func LoadIndex(path string) (*Index, error) {
	idx := NewIndex(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			utils.GetLogger().Warn("no similarity index yet; starting empty", "path", path)
			return idx, nil
		}
		return nil, fmt.Errorf("failed to load index (%s): %w", path, err)
	}
	if len(data) == 0 {
		return idx, nil
	}
	if err := json.Unmarshal(data, &idx.entries); err != nil {
		return nil, fmt.Errorf("unable to parse index: %w", err)
	}
	return idx, nil
}

// Add stores rec under a fresh id.
func (x *Index) Add(rec *features.Record, label string, metadata map[string]string) (Entry, error) {
	vector, err := Descriptor(rec)
	if err != nil {
		return Entry{}, err
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	entry := Entry{
		ID:       uuid.NewString(),
		Path:     rec.Source.Path,
		Label:    label,
		Vector:   vector,
		Metadata: meta,
		AddedAt:  time.Now().UTC(),
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = append(x.entries, entry)
	return entry, nil
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func (x *Index) snapshot() []Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Entry, len(x.entries))
	copy(out, x.entries)
	return out
}

// Query returns the k entries closest to rec, nearest first.
func (x *Index) Query(rec *features.Record, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid neighbour count: %d", k)
	}
	query, err := Descriptor(rec)
	if err != nil {
		return nil, err
	}

	entries := x.snapshot()
	if len(entries) == 0 {
		return []Neighbor{}, nil
	}

	vectors := make([][]float64, len(entries))
	for i, e := range entries {
		vectors[i] = e.Vector
	}
	scaler, err := NewScaler(vectors)
	if err != nil {
		return nil, err
	}
	q := scaler.Transform(query)

	neighbors := make([]Neighbor, len(entries))
	for i, e := range entries {
		d := euclidean(q, scaler.Transform(e.Vector))
		neighbors[i] = Neighbor{
			ID:       e.ID,
			Path:     e.Path,
			Label:    e.Label,
			Distance: d,
			Weight:   1 / (d + weightEpsilon),
		}
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}

	var total float64
	for _, n := range neighbors {
		total += n.Weight
	}
	for i := range neighbors {
		neighbors[i].Confidence = neighbors[i].Weight / total
	}
	return neighbors, nil
}

func euclidean(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Save writes the index to its path through a temporary file and rename.
func (x *Index) Save() error {
	if x.path == "" {
		return errors.New("index path not set")
	}
	entries := x.snapshot()

	dir := filepath.Dir(x.path)
	if err := utils.CreateFolder(dir); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	tempPath := x.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tempPath, x.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
