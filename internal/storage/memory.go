package storage

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store. It backs the short-lived local side of
// the dual persistence and stands in for Postgres in unit tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[[2]string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[[2]string]memoryEntry),
		now:     time.Now,
	}
}

// Save writes value under (scope, key).
func (s *MemoryStore) Save(_ context.Context, scope, key, value string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[[2]string{scope, key}] = memoryEntry{value: value, expiresAt: expiresAt}
	return nil
}

// Load reads the value under (scope, key).
func (s *MemoryStore) Load(_ context.Context, scope, key string) (string, error) {
	s.mu.RLock()
	entry, ok := s.entries[[2]string{scope, key}]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		return "", ErrNotFound
	}
	return entry.value, nil
}

// Delete removes the value under (scope, key).
func (s *MemoryStore) Delete(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, [2]string{scope, key})
	return nil
}

// Sweep drops expired entries. Called periodically by the owning process.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

var _ Store = (*MemoryStore)(nil)
