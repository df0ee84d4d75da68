/*
Package cache provides the session-scoped key/value cache for resolved
signed URLs and asset metadata.

The cache is layered over an injected store and leans on two different
expiry windows: signed URLs are expensive to recompute and stay valid
for hours, while metadata is cheap and goes stale in minutes. Every
entry is wrapped in an envelope carrying its write timestamp and the
session owner, and every read validates that envelope before returning
data.

# Entry Lifecycle

Writes serialize the value into the envelope and hand it to the store.
A rejected write (for example when the store is over quota) is dropped
after a cleanup sweep that removes expired, foreign-owned, and
unparseable entries; the caller is never blocked or failed.

Reads validate in order: the envelope must parse, the recorded owner
must match the current session owner, the entry must be inside its TTL
window, and the payload must unmarshal. Any failed check deletes the
entry and reports a miss, so a corrupted or stale store heals itself
through normal use.

# Session Isolation

InitializeSession binds the cache to a user. When the owner changes,
every cache-owned entry is wiped and a fresh session identifier is
generated. Entries written under one owner can never be read under
another, even if they survive in the store across a switch.

# Usage

	sc := cache.NewSessionCache(backing, cfg.Session, logger, collector)
	sc.InitializeSession(userID)

	sc.CacheSignedURL(asset.ID, url)
	if url, ok := sc.CachedSignedURL(asset.ID); ok {
		// serve without re-resolving
	}

	sc.CacheAssetList(filters, offset, page)

Purge entry points (PurgeAsset, PurgeOlderThan, ClearAll) derive keys
with the same functions used on write, so cleanup for one asset cannot
touch another's entries.
*/
package cache
