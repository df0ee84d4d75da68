package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a durable key/value store persisted as a single JSON file.
// It survives restarts and backs the behavior-data blob. Every write
// rewrites the file through an atomic rename.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
}

// NewFileStore opens or creates a file store at the given path. A
// missing or unreadable file starts empty rather than failing; the
// stored data is an optimization, not a source of truth.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	fs := &FileStore{
		path:    path,
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		// Corrupt content starts fresh
		var entries map[string]string
		if json.Unmarshal(data, &entries) == nil && entries != nil {
			fs.entries = entries
		}
	}

	return fs, nil
}

// Get retrieves a value by key
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	return value, ok
}

// Set stores a value and persists the file
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value
	return s.save()
}

// Delete removes a key and persists the file
func (s *FileStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		_ = s.save() // Best effort on delete
	}
}

// Keys returns all stored keys
func (s *FileStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// save writes entries to disk with an atomic replace (must be called with lock held)
func (s *FileStore) save() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}

	return os.Rename(tmpPath, s.path)
}
