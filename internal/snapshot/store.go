// ABOUTME: Store interface for durable per-session key/value snapshots
// ABOUTME: Defines Read/Write/Evict contracts plus an in-memory implementation

package snapshot

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a requested snapshot key does not exist.
var ErrNotFound = errors.New("snapshot not found")

// Store persists opaque snapshot blobs under string keys, scoped to a
// single session. Implementations must be safe for concurrent use.
type Store interface {
	// Read returns the value stored under key, or ErrNotFound.
	Read(key string) ([]byte, error)
	// Write stores value under key, replacing any previous value.
	Write(key string, value []byte) error
	// Evict removes key. Evicting a missing key is not an error.
	Evict(key string) error
}

// MemoryStore is an in-memory Store. It backs tests and the degraded
// mode used when durable storage is unavailable.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

// Read returns the value stored under key, or ErrNotFound.
func (m *MemoryStore) Read(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Write stores value under key.
func (m *MemoryStore) Write(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

// Evict removes key from the store.
func (m *MemoryStore) Evict(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}
