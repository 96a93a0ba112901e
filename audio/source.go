package audio

import (
	"sync"
	"time"
)

// Source describes one audio file on disk. It is created by the loader and
// never mutated afterwards.
type Source struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mtime"`
	ContentHash string    `json:"content_hash"`
	Format      Format    `json:"format"`
	Metadata    Metadata  `json:"metadata"`
}

// Identity is the (path, hash, size) triple a feature record keeps instead
// of a pointer to its Source.
type Identity struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	Size        int64  `json:"size"`
}

// Identity returns the identity triple of s.
func (s *Source) Identity() Identity {
	return Identity{Path: s.Path, ContentHash: s.ContentHash, Size: s.Size}
}

type hashKey struct {
	path  string
	size  int64
	mtime int64
}

// hashMemo remembers content hashes per (path, size, mtime), so a file that
// has not changed is hashed only once and a touched file is hashed again.
type hashMemo struct {
	mu     sync.RWMutex
	hashes map[hashKey]string
}

func newHashMemo() *hashMemo {
	return &hashMemo{hashes: make(map[hashKey]string)}
}

func (m *hashMemo) get(path string, size int64, mtime time.Time) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hashes[hashKey{path: path, size: size, mtime: mtime.UnixNano()}]
	return h, ok
}

func (m *hashMemo) put(path string, size int64, mtime time.Time, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[hashKey{path: path, size: size, mtime: mtime.UnixNano()}] = hash
}
