package memory

import (
	"context"
	"sync"
)

// Store implements storage.KeyValueStore with an in-process map.
// Nothing survives a restart; it backs local development and tests.
type Store struct {
	mu    sync.RWMutex
	items map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{items: make(map[string]string)}
}

// GetItem returns the value under key.
func (s *Store) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

// SetItem replaces the value under key.
func (s *Store) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

// RemoveItem deletes key.
func (s *Store) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
