package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/internal/metrics"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Key prefixes owned by the session cache. ClearAll and the cleanup
// sweep operate on exactly these.
const (
	urlKeyPrefix      = "signed-url-"
	metadataKeyPrefix = "metadata-"
	sessionKeyPrefix  = "cache-"

	ownerKey        = "cache-owner"
	sessionIDKey    = "cache-session"
	sessionStartKey = "cache-session-start"
)

// cachedItem is the persisted envelope for every cache entry
type cachedItem struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    string          `json:"user_id"`
}

// SessionCache is a key/value cache layered over a session-scoped store,
// with independent expiry windows for signed URLs (long-lived, expensive
// to recompute) and metadata (short-lived, cheap to recompute). Entries
// are tagged with the session owner and validated on read; a mismatch or
// an expired or corrupt entry reads as a miss and deletes itself.
type SessionCache struct {
	mu     sync.Mutex
	store  types.Store
	config config.SessionConfig

	ownerID   string
	sessionID string

	logger  *utils.StructuredLogger
	metrics *metrics.Collector

	now func() time.Time
}

// NewSessionCache creates a session cache over the given store
func NewSessionCache(store types.Store, cfg config.SessionConfig, logger *utils.StructuredLogger, collector *metrics.Collector) *SessionCache {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 4 * time.Hour
	}
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = utils.NewStructuredLogger(nil)
	}

	sc := &SessionCache{
		store:   store,
		config:  cfg,
		logger:  logger.WithComponent("session-cache"),
		metrics: collector,
		now:     time.Now,
	}

	// Recover the owner recorded by a previous run, if any
	if owner, ok := store.Get(ownerKey); ok {
		sc.ownerID = owner
	}
	if id, ok := store.Get(sessionIDKey); ok {
		sc.sessionID = id
	}

	return sc
}

// InitializeSession binds the cache to a session owner. An owner change
// wipes every cache-prefixed entry. This is the only path that clears
// the cache on identity change; the consuming application must call it
// once per login.
func (sc *SessionCache) InitializeSession(userID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.ownerID == userID && sc.ownerID != "" {
		return
	}

	if sc.ownerID != "" && sc.ownerID != userID {
		removed := sc.clearPrefixedLocked()
		sc.logger.Info("Session owner changed, cache cleared", map[string]interface{}{
			"removed": removed,
		})
	}

	sc.ownerID = userID
	sc.sessionID = ulid.Make().String()

	sc.setRaw(ownerKey, userID)
	sc.setRaw(sessionIDKey, sc.sessionID)
	sc.setRaw(sessionStartKey, sc.now().UTC().Format(time.RFC3339))
}

// SessionID returns the current session identifier
func (sc *SessionCache) SessionID() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sessionID
}

// CacheSignedURL stores a resolved signed URL for an asset
func (sc *SessionCache) CacheSignedURL(assetID, url string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.writeLocked(URLKey(assetID), url)
}

// CachedSignedURL returns the cached signed URL for an asset, or
// ok=false on miss, expiry, owner mismatch, or corruption. Any
// validation failure deletes the stale entry.
func (sc *SessionCache) CachedSignedURL(assetID string) (string, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var url string
	if !sc.readLocked(URLKey(assetID), sc.config.URLTTL, &url) {
		sc.metrics.RecordCacheMiss("url")
		return "", false
	}
	sc.metrics.RecordCacheHit("url")
	return url, true
}

// CacheAssetMetadata stores arbitrary JSON-serializable metadata under a cache key
func (sc *SessionCache) CacheAssetMetadata(cacheKey string, metadata interface{}) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.writeLocked(MetadataKey(cacheKey), metadata)
}

// CachedMetadata reads metadata into out. Identical contract to the URL
// pair but with the metadata TTL.
func (sc *SessionCache) CachedMetadata(cacheKey string, out interface{}) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if !sc.readLocked(MetadataKey(cacheKey), sc.config.MetadataTTL, out) {
		sc.metrics.RecordCacheMiss("metadata")
		return false
	}
	sc.metrics.RecordCacheHit("metadata")
	return true
}

// CacheAssetList caches a page of a filtered asset listing. The key is a
// deterministic serialization of the filters and page offset, so the
// same query always maps to the same entry. Reads are stale-while-
// revalidate from the caller's point of view: the cache never refreshes
// itself.
func (sc *SessionCache) CacheAssetList(filters map[string]string, offset int, assets []types.Asset) {
	sc.CacheAssetMetadata(listKey(filters, offset), assets)
}

// CachedAssetList returns a previously cached listing page, or ok=false
func (sc *SessionCache) CachedAssetList(filters map[string]string, offset int) ([]types.Asset, bool) {
	var assets []types.Asset
	if !sc.CachedMetadata(listKey(filters, offset), &assets) {
		return nil, false
	}
	return assets, true
}

// ClearAll deletes every cache-owned entry regardless of session identity
func (sc *SessionCache) ClearAll() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.clearPrefixedLocked()
}

// Stats returns counts of URL and metadata entries and their total
// serialized byte length
func (sc *SessionCache) Stats() types.CacheStats {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var stats types.CacheStats
	for _, key := range sc.store.Keys() {
		value, ok := sc.store.Get(key)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(key, urlKeyPrefix):
			stats.URLEntries++
			stats.TotalBytes += int64(len(value))
		case strings.HasPrefix(key, metadataKeyPrefix):
			stats.MetadataEntries++
			stats.TotalBytes += int64(len(value))
		}
	}
	return stats
}

// PurgeAsset removes the entries derived from an asset id. Keys are
// derived with the same functions used on write, so purging one asset
// can never remove another asset's entries.
func (sc *SessionCache) PurgeAsset(id string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.store.Delete(URLKey(id))
	sc.store.Delete(MetadataKey(id))
}

// PurgeOlderThan removes URL and metadata entries written more than age
// ago, returning the number removed
func (sc *SessionCache) PurgeOlderThan(age time.Duration) int {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	removed := 0
	cutoff := sc.now().Add(-age)
	for _, key := range sc.store.Keys() {
		if !strings.HasPrefix(key, urlKeyPrefix) && !strings.HasPrefix(key, metadataKeyPrefix) {
			continue
		}
		value, ok := sc.store.Get(key)
		if !ok {
			continue
		}
		var item cachedItem
		if err := json.Unmarshal([]byte(value), &item); err != nil {
			sc.store.Delete(key)
			removed++
			continue
		}
		if item.Timestamp.Before(cutoff) {
			sc.store.Delete(key)
			removed++
		}
	}
	return removed
}

// SerializedSize returns the total byte length of cache-owned values
func (sc *SessionCache) SerializedSize() int64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var total int64
	for _, key := range sc.store.Keys() {
		if strings.HasPrefix(key, urlKeyPrefix) || strings.HasPrefix(key, metadataKeyPrefix) {
			if value, ok := sc.store.Get(key); ok {
				total += int64(len(value))
			}
		}
	}
	return total
}

// Key derivation. These are the documented purge contract: cleanup
// always derives keys with the same functions used on write.

// URLKey derives the store key for an asset's signed URL entry
func URLKey(assetID string) string {
	return urlKeyPrefix + assetID
}

// MetadataKey derives the store key for a metadata entry
func MetadataKey(cacheKey string) string {
	return metadataKeyPrefix + cacheKey
}

// listKey builds a deterministic key for a filtered, paginated listing
func listKey(filters map[string]string, offset int) string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("asset-list-")
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteString("=")
		sb.WriteString(filters[name])
		sb.WriteString("&")
	}
	sb.WriteString(fmt.Sprintf("offset=%d", offset))
	return sb.String()
}

// Internal helpers

// writeLocked stores a value under the current owner. Write failures are
// logged and followed by a cleanup sweep; the write itself is dropped.
func (sc *SessionCache) writeLocked(key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		sc.logger.Warn("Failed to serialize cache value", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}

	item := cachedItem{
		Data:      data,
		Timestamp: sc.now(),
		UserID:    sc.ownerID,
	}

	encoded, err := json.Marshal(item)
	if err != nil {
		return
	}

	if err := sc.store.Set(key, string(encoded)); err != nil {
		sc.logger.Warn("Cache write rejected, running cleanup sweep", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		sc.cleanupOldCacheLocked()
	}
}

// readLocked validates owner and TTL, unmarshals into out, and deletes
// the entry on any validation failure
func (sc *SessionCache) readLocked(key string, ttl time.Duration, out interface{}) bool {
	value, ok := sc.store.Get(key)
	if !ok {
		return false
	}

	var item cachedItem
	if err := json.Unmarshal([]byte(value), &item); err != nil {
		sc.store.Delete(key)
		return false
	}

	if item.UserID != sc.ownerID {
		sc.store.Delete(key)
		return false
	}

	if sc.now().Sub(item.Timestamp) > ttl {
		sc.store.Delete(key)
		return false
	}

	if out != nil {
		if err := json.Unmarshal(item.Data, out); err != nil {
			sc.store.Delete(key)
			return false
		}
	}

	return true
}

// cleanupOldCacheLocked removes entries older than the larger TTL, owned
// by another user, or unparseable
func (sc *SessionCache) cleanupOldCacheLocked() {
	maxTTL := sc.config.URLTTL
	if sc.config.MetadataTTL > maxTTL {
		maxTTL = sc.config.MetadataTTL
	}
	cutoff := sc.now().Add(-maxTTL)

	removed := 0
	for _, key := range sc.store.Keys() {
		if !strings.HasPrefix(key, urlKeyPrefix) && !strings.HasPrefix(key, metadataKeyPrefix) {
			continue
		}
		value, ok := sc.store.Get(key)
		if !ok {
			continue
		}
		var item cachedItem
		if err := json.Unmarshal([]byte(value), &item); err != nil {
			sc.store.Delete(key)
			removed++
			continue
		}
		if item.UserID != sc.ownerID || item.Timestamp.Before(cutoff) {
			sc.store.Delete(key)
			removed++
		}
	}

	if removed > 0 {
		sc.logger.Debug("Cleanup sweep removed entries", map[string]interface{}{
			"removed": removed,
		})
	}
}

// clearPrefixedLocked wipes all cache-owned keys and returns the count
func (sc *SessionCache) clearPrefixedLocked() int {
	removed := 0
	for _, key := range sc.store.Keys() {
		if strings.HasPrefix(key, urlKeyPrefix) ||
			strings.HasPrefix(key, metadataKeyPrefix) ||
			strings.HasPrefix(key, sessionKeyPrefix) {
			sc.store.Delete(key)
			removed++
		}
	}
	return removed
}

// setRaw writes a session bookkeeping value without the cachedItem envelope
func (sc *SessionCache) setRaw(key, value string) {
	if err := sc.store.Set(key, value); err != nil {
		sc.logger.Warn("Failed to record session marker", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
