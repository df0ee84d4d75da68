package memory

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/internal/metrics"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// AssetRef tracks a registered asset
type AssetRef struct {
	ID           string
	LastAccessed time.Time
	Size         int64
	Visible      bool
	Priority     types.Priority

	// seq breaks LastAccessed ties by insertion order
	seq uint64
}

// Manager tracks registered assets, observes heap pressure through an
// injected probe, and evicts non-visible assets when pressure rises.
// Evicting or unregistering an asset cascades into a session-cache
// purge for that asset's derived keys.
//
// All operations are synchronous, local, and side-effect only; failures
// are absorbed and logged, never returned. A missing probe degrades to
// pressure level low.
type Manager struct {
	mu     sync.Mutex
	cfg    config.MemoryConfig
	assets map[string]*AssetRef
	seq    uint64

	probe  types.MemoryProbe
	purger types.CachePurger

	logger  *utils.StructuredLogger
	metrics *metrics.Collector

	stopCh chan struct{}
	doneCh chan struct{}
	closed bool

	now    func() time.Time
	gcHint func()
}

// NewManager creates a memory manager and starts its periodic cleanup
// timer. A nil probe degrades to pressure level low; a nil purger
// disables the session-cache cascade.
func NewManager(cfg config.MemoryConfig, probe types.MemoryProbe, purger types.CachePurger, logger *utils.StructuredLogger, collector *metrics.Collector) *Manager {
	if cfg.DefaultAssetSize <= 0 {
		cfg.DefaultAssetSize = 100 * 1024
	}
	if probe == nil || !cfg.ProbeEnabled {
		probe = NullProbe{}
	}
	if logger == nil {
		logger = utils.NewStructuredLogger(nil)
	}

	m := &Manager{
		cfg:     cfg,
		assets:  make(map[string]*AssetRef),
		probe:   probe,
		purger:  purger,
		logger:  logger.WithComponent("memory-manager"),
		metrics: collector,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		now:     time.Now,
		gcHint:  runtime.GC,
	}

	go m.cleanupLoop()

	return m
}

// RegisterAsset inserts or overwrites an asset reference. Idempotent by
// id; re-registering replaces the prior entry, including its priority.
func (m *Manager) RegisterAsset(id string, size int64, priority types.Priority) {
	if id == "" {
		return
	}
	if size <= 0 {
		size = m.cfg.DefaultAssetSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.assets[id] = &AssetRef{
		ID:           id,
		LastAccessed: m.now(),
		Size:         size,
		Priority:     priority,
		seq:          m.seq,
	}
}

// UpdateAssetVisibility toggles an asset's on-screen state and refreshes
// its access time. Unknown ids are a no-op.
func (m *Manager) UpdateAssetVisibility(id string, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.assets[id]
	if !ok {
		return
	}
	ref.Visible = visible
	ref.LastAccessed = m.now()
}

// UnregisterAsset removes an asset reference and purges its session
// cache entries
func (m *Manager) UnregisterAsset(id string) {
	m.mu.Lock()
	_, ok := m.assets[id]
	delete(m.assets, id)
	m.mu.Unlock()

	if ok && m.purger != nil {
		m.purger.PurgeAsset(id)
	}
}

// Visible reports whether an asset is currently tracked as on-screen
func (m *Manager) Visible(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.assets[id]
	return ok && ref.Visible
}

// Tracked reports whether an asset is currently registered
func (m *Manager) Tracked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.assets[id]
	return ok
}

// Stats computes a full memory snapshot including the derived pressure level
func (m *Manager) Stats() types.MemoryStats {
	used, total, ok := m.probe.Usage()

	var ratio float64
	if ok && total > 0 {
		ratio = float64(used) / float64(total)
	}

	m.mu.Lock()
	var assetBytes int64
	for _, ref := range m.assets {
		assetBytes += ref.Size
	}
	tracked := len(m.assets)
	m.mu.Unlock()

	var sessionBytes int64
	if m.purger != nil {
		sessionBytes = m.purger.SerializedSize()
	}

	stats := types.MemoryStats{
		TotalMemory:      total,
		UsedMemory:       used,
		AssetCacheSize:   assetBytes,
		SessionCacheSize: sessionBytes,
		TrackedAssets:    tracked,
		PressureLevel:    types.PressureFor(ratio),
	}

	m.metrics.SetMemoryStats(stats)
	return stats
}

// Pressure returns the current derived pressure level
func (m *Manager) Pressure() types.PressureLevel {
	return m.Stats().PressureLevel
}

// CheckPressure recomputes pressure and runs the eviction routine for
// the observed level. Called by the periodic timer; also usable as a
// hook for an external pressure notification.
func (m *Manager) CheckPressure() types.PressureLevel {
	level := m.Pressure()
	if level != types.PressureLow {
		m.shed(level)
	}
	return level
}

// Close cancels the cleanup timer and clears all tracked references.
// Intended for teardown, not normal operation.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.assets = make(map[string]*AssetRef)
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
}

// shed evicts per the policy table for the given level and purges
// correspondingly stale session cache entries
func (m *Manager) shed(level types.PressureLevel) {
	rule := types.PolicyFor(level).Eviction

	m.mu.Lock()
	candidates := make([]*AssetRef, 0, len(m.assets))
	for _, ref := range m.assets {
		if ref.Visible {
			continue
		}
		if !rule.AllPriorities && ref.Priority != types.PriorityLow {
			continue
		}
		candidates = append(candidates, ref)
	}

	// Oldest access first, insertion order breaks ties
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].LastAccessed.Equal(candidates[j].LastAccessed) {
			return candidates[i].seq < candidates[j].seq
		}
		return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
	})

	limit := rule.Count
	if rule.Fraction > 0 {
		limit = int(math.Ceil(rule.Fraction * float64(len(candidates))))
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	evicted := candidates[:limit]
	for _, ref := range evicted {
		delete(m.assets, ref.ID)
	}
	m.mu.Unlock()

	for _, ref := range evicted {
		if m.purger != nil {
			m.purger.PurgeAsset(ref.ID)
		}
	}

	purged := 0
	if m.purger != nil && rule.PurgeMaxAge > 0 {
		purged = m.purger.PurgeOlderThan(rule.PurgeMaxAge)
	}

	if level == types.PressureCritical && m.cfg.GCHintEnabled {
		m.gcHint()
	}

	m.metrics.RecordEviction(level, len(evicted))
	m.metrics.RecordPurged(purged)

	if len(evicted) > 0 || purged > 0 {
		m.logger.Info("Pressure eviction completed", map[string]interface{}{
			"level":   level.String(),
			"evicted": len(evicted),
			"purged":  purged,
		})
	}
}

// cleanupLoop runs the single self-rescheduling cleanup timer. The
// delay for the next tick always comes from the level observed on the
// current tick, so elevated pressure is rechecked more frequently.
func (m *Manager) cleanupLoop() {
	defer close(m.doneCh)

	timer := time.NewTimer(types.PolicyFor(types.PressureLow).TickInterval)
	defer timer.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-timer.C:
			level := m.CheckPressure()
			timer.Reset(types.PolicyFor(level).TickInterval)
		}
	}
}
