package usersync

import (
	"context"
	"sync"
)

// HashStore persists the last exported data hash per filter key so exports
// stay differential across process restarts when backed by Redis. The
// in-memory implementation is used in tests and single-node setups.
type HashStore interface {
	// Get returns the stored hash for key, or "" when none exists.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, hash string) error
}

type memoryHashStore struct {
	mu     sync.RWMutex
	hashes map[string]string
}

// NewMemoryHashStore returns a process-local HashStore.
func NewMemoryHashStore() HashStore {
	return &memoryHashStore{hashes: make(map[string]string)}
}

func (s *memoryHashStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hashes[key], nil
}

func (s *memoryHashStore) Set(ctx context.Context, key, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[key] = hash
	return nil
}
