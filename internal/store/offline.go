package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// OfflineStore is a content-addressed file store for resolved URLs,
// used by the offline-mode capability. Filenames are derived from a
// hash of the asset id so repeat writes for the same asset overwrite
// in place.
type OfflineStore struct {
	mu        sync.Mutex
	directory string
}

// NewOfflineStore creates an offline store rooted at the given directory
func NewOfflineStore(directory string) (*OfflineStore, error) {
	if err := os.MkdirAll(directory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create offline store directory: %w", err)
	}
	return &OfflineStore{directory: directory}, nil
}

// Put writes a resolved URL for an asset, best effort
func (s *OfflineStore) Put(ctx context.Context, assetID, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return os.WriteFile(s.pathFor(assetID), []byte(url), 0600)
}

// Get reads a previously stored URL for an asset
func (s *OfflineStore) Get(assetID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.pathFor(assetID))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (s *OfflineStore) pathFor(assetID string) string {
	hash := sha256.Sum256([]byte(assetID))
	filename := fmt.Sprintf("%x", hash[:8])
	return filepath.Join(s.directory, filename+".offline")
}
