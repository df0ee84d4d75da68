package types

import (
	"context"
	"time"
)

// Store defines an enumerable key/value store with finite capacity.
// Set returns an error when the store rejects a write (quota exhausted).
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string)
	Keys() []string
}

// URLResolver resolves an asset reference to a fetchable signed URL.
// Resolution is asynchronous and fallible; callers must treat failures
// as a missed optimization, not an error condition.
type URLResolver interface {
	Resolve(ctx context.Context, asset Asset) (string, error)
}

// MemoryProbe reports current heap usage. Implementations that cannot
// observe the heap return ok=false and the caller degrades to pressure
// level low.
type MemoryProbe interface {
	Usage() (used, total uint64, ok bool)
}

// OfflineStore is a best-effort content-addressed cache for resolved URLs
type OfflineStore interface {
	Put(ctx context.Context, assetID, url string) error
}

// CachePurger is the cleanup surface the memory manager drives on the
// session cache when assets are unregistered or evicted.
type CachePurger interface {
	// PurgeAsset removes the cache entries derived from an asset id.
	PurgeAsset(id string)

	// PurgeOlderThan removes cache entries whose write time is older
	// than the given age and reports how many were removed.
	PurgeOlderThan(age time.Duration) int

	// SerializedSize returns the total byte length of cache-owned values.
	SerializedSize() int64
}
