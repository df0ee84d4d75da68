// Package store provides the key/value store implementations the cache
// subsystem is layered over: a quota-bound in-memory session store, a
// file-backed durable store, and a content-addressed offline store.
package store

import (
	"sync"

	"github.com/mediacache/mediacache/pkg/errors"
)

// MemoryStore is an enumerable in-memory key/value store with a byte
// quota. It stands in for the session-scoped store the cache owns: it
// survives for the process lifetime and rejects writes past capacity.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int64
	used     int64
	entries  map[string]string
}

// NewMemoryStore creates a memory store with the given byte capacity.
// A capacity of 0 means unlimited.
func NewMemoryStore(capacity int64) *MemoryStore {
	return &MemoryStore{
		capacity: capacity,
		entries:  make(map[string]string),
	}
}

// Get retrieves a value by key
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	return value, ok
}

// Set stores a value, rejecting the write when the quota would be exceeded
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := int64(len(key) + len(value))
	if prev, ok := s.entries[key]; ok {
		delta -= int64(len(key) + len(prev))
	}

	if s.capacity > 0 && s.used+delta > s.capacity {
		return errors.NewError(errors.ErrCodeStoreQuota, "store capacity exceeded").
			WithContext("key", key)
	}

	s.entries[key] = value
	s.used += delta
	return nil
}

// Delete removes a key. Unknown keys are a no-op.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, ok := s.entries[key]; ok {
		s.used -= int64(len(key) + len(value))
		delete(s.entries, key)
	}
}

// Keys returns all stored keys
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// Used returns the current byte usage
func (s *MemoryStore) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}
