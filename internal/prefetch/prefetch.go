// Package prefetch scores and warms cache entries for assets the user
// is predicted to view next, based on observed library behavior.
package prefetch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediacache/mediacache/internal/cache"
	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/internal/memory"
	"github.com/mediacache/mediacache/internal/metrics"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// recentAssetAge is the candidate age under which the recency heuristic fires
const recentAssetAge = 7 * 24 * time.Hour

// Prefetcher computes per-asset prefetch strategies from behavior data,
// queues the top candidates, and feeds them through the session cache
// (URL caching) and the memory manager (low-priority registration) to
// warm the cache ahead of navigation.
//
// Queue processing is single-flight: a trigger while a run is already
// in flight only enqueues. Nothing here blocks its caller and nothing
// returns an error; prefetch is an optimization and every failure
// degrades to a missed warm-up.
type Prefetcher struct {
	mu  sync.Mutex
	cfg config.PrefetchConfig

	manager  *memory.Manager
	cache    *cache.SessionCache
	resolver types.URLResolver
	store    types.Store
	offline  types.OfflineStore

	logger  *utils.StructuredLogger
	metrics *metrics.Collector

	behavior   BehaviorData
	queue      []types.Asset
	processing bool

	ctx    context.Context
	cancel context.CancelFunc

	now func() time.Time
}

// NewPrefetcher creates a prefetcher. The offline store is a soft
// capability; nil degrades EnableOfflineMode to a logged no-op.
func NewPrefetcher(cfg config.PrefetchConfig, manager *memory.Manager, sessionCache *cache.SessionCache, resolver types.URLResolver, behaviorStore types.Store, offline types.OfflineStore, logger *utils.StructuredLogger, collector *metrics.Collector) *Prefetcher {
	if cfg.TopCandidates <= 0 {
		cfg.TopCandidates = 10
	}
	if cfg.ViewHistoryCap <= 0 {
		cfg.ViewHistoryCap = 50
	}
	if cfg.SearchHistoryCap <= 0 {
		cfg.SearchHistoryCap = 20
	}
	if cfg.InterBatchDelay <= 0 {
		cfg.InterBatchDelay = 100 * time.Millisecond
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 10 * time.Second
	}
	if cfg.OfflineAssetLimit <= 0 {
		cfg.OfflineAssetLimit = 10
	}
	if cfg.BehaviorKey == "" {
		cfg.BehaviorKey = "library-behavior-data"
	}
	if logger == nil {
		logger = utils.NewStructuredLogger(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Prefetcher{
		cfg:      cfg,
		manager:  manager,
		cache:    sessionCache,
		resolver: resolver,
		store:    behaviorStore,
		offline:  offline,
		logger:   logger.WithComponent("prefetch"),
		metrics:  collector,
		behavior: loadBehaviorData(behaviorStore, cfg.BehaviorKey),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}

	if offline == nil {
		p.logger.Warn("Offline store not available, offline mode disabled")
	}

	return p
}

// AnalyzeAndPrefetch scores every candidate, queues the top candidates
// by combined score, and kicks off queue processing. Safe to call
// repeatedly: a call while processing is in flight only enqueues.
func (p *Prefetcher) AnalyzeAndPrefetch(assets []types.Asset, currentFilters map[string]string) {
	if !p.cfg.Enabled || len(assets) == 0 {
		return
	}

	type scored struct {
		asset    types.Asset
		strategy types.PrefetchStrategy
	}

	p.mu.Lock()
	candidates := make([]scored, 0, len(assets))
	for _, asset := range assets {
		candidates = append(candidates, scored{
			asset:    asset,
			strategy: p.strategyForLocked(asset, currentFilters),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].strategy.Score() > candidates[j].strategy.Score()
	})

	limit := p.cfg.TopCandidates
	if limit > len(candidates) {
		limit = len(candidates)
	}
	for _, c := range candidates[:limit] {
		p.queue = append(p.queue, c.asset)
		p.logger.Debug("Queued prefetch candidate", map[string]interface{}{
			"asset":      c.asset.ID,
			"priority":   c.strategy.Priority,
			"confidence": c.strategy.Confidence,
			"reason":     c.strategy.Reason,
		})
	}
	p.metrics.SetQueueDepth(len(p.queue))

	start := !p.processing
	if start {
		p.processing = true
	}
	p.mu.Unlock()

	if start {
		go p.processQueue()
	}
}

// Strategy computes the prefetch strategy for a single candidate
// against the current behavior data
func (p *Prefetcher) Strategy(asset types.Asset, currentFilters map[string]string) types.PrefetchStrategy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strategyForLocked(asset, currentFilters)
}

// TrackAssetView records a viewed asset and persists behavior data
func (p *Prefetcher) TrackAssetView(asset types.Asset) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.behavior.ViewedAssets = pushFront(p.behavior.ViewedAssets, asset.ID, p.cfg.ViewHistoryCap)
	p.behavior.LastVisit = p.now()
	p.persistLocked()
}

// TrackSearch records a search term. Empty terms are a no-op.
func (p *Prefetcher) TrackSearch(term string) {
	if strings.TrimSpace(term) == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.behavior.SearchPatterns = pushFront(p.behavior.SearchPatterns, term, p.cfg.SearchHistoryCap)
	p.behavior.LastVisit = p.now()
	p.persistLocked()
}

// TrackFilterChange merges filters into the stored preferences. New
// values overwrite, unmentioned keys are kept.
func (p *Prefetcher) TrackFilterChange(filters map[string]string) {
	if len(filters) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for name, value := range filters {
		p.behavior.FilterPreferences[name] = value
	}
	p.behavior.LastVisit = p.now()
	p.persistLocked()
}

// TrackLibraryTime adds elapsed time to the cumulative counter
func (p *Prefetcher) TrackLibraryTime(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.behavior.TimeSpentInLibrary += elapsed
	p.behavior.LastVisit = p.now()
	p.persistLocked()
}

// Behavior returns a copy of the current behavior data
func (p *Prefetcher) Behavior() BehaviorData {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := p.behavior
	data.ViewedAssets = append([]string(nil), p.behavior.ViewedAssets...)
	data.SearchPatterns = append([]string(nil), p.behavior.SearchPatterns...)
	data.FilterPreferences = make(map[string]string, len(p.behavior.FilterPreferences))
	for name, value := range p.behavior.FilterPreferences {
		data.FilterPreferences[name] = value
	}
	return data
}

// QueueDepth returns the number of assets waiting to be prefetched
func (p *Prefetcher) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// EnableOfflineMode resolves URLs for previously viewed assets and
// writes them into the offline store, best effort. Without an offline
// store this is a logged no-op.
func (p *Prefetcher) EnableOfflineMode(ctx context.Context, assets []types.Asset) {
	if p.offline == nil {
		p.logger.Warn("Offline mode requested but no offline store is available")
		return
	}

	p.mu.Lock()
	viewed := make(map[string]bool, len(p.behavior.ViewedAssets))
	for _, id := range p.behavior.ViewedAssets {
		viewed[id] = true
	}
	p.mu.Unlock()

	stored := 0
	for _, asset := range assets {
		if stored >= p.cfg.OfflineAssetLimit {
			break
		}
		if !viewed[asset.ID] {
			continue
		}

		url, err := p.resolve(ctx, asset)
		if err != nil {
			p.logger.Warn("Failed to resolve asset for offline mode", map[string]interface{}{
				"asset": asset.ID,
				"error": err.Error(),
			})
			continue
		}
		if err := p.offline.Put(ctx, asset.ID, url); err != nil {
			p.logger.Warn("Failed to store offline asset", map[string]interface{}{
				"asset": asset.ID,
				"error": err.Error(),
			})
			continue
		}
		stored++
	}

	p.logger.Info("Offline mode prepared", map[string]interface{}{
		"stored": stored,
	})
}

// Close terminates queue processing and drops the queue
func (p *Prefetcher) Close() {
	p.cancel()

	p.mu.Lock()
	p.queue = nil
	p.mu.Unlock()
}

// strategyForLocked implements the scoring heuristics. Each triggered
// heuristic raises priority and confidence; the reason string lists
// what fired, for diagnostics only.
func (p *Prefetcher) strategyForLocked(asset types.Asset, currentFilters map[string]string) types.PrefetchStrategy {
	priority := 1
	confidence := 0.5
	var reasons []string

	// Coarse similarity: a previously viewed id containing the
	// candidate's type. Intentionally approximate.
	if asset.Type != "" {
		for _, viewed := range p.behavior.ViewedAssets {
			if strings.Contains(viewed, asset.Type) {
				priority += 3
				confidence += 0.3
				reasons = append(reasons, "similar to viewed assets")
				break
			}
		}
	}

	if asset.Prompt != "" {
		prompt := strings.ToLower(asset.Prompt)
		for _, pattern := range p.behavior.SearchPatterns {
			if pattern != "" && strings.Contains(prompt, strings.ToLower(pattern)) {
				priority += 2
				confidence += 0.2
				reasons = append(reasons, "matches search history")
				break
			}
		}
	}

	typePref := currentFilters["type"]
	if typePref == "" {
		typePref = p.behavior.FilterPreferences["type"]
	}
	if typePref != "" && asset.Type == typePref {
		priority++
		confidence += 0.1
		reasons = append(reasons, "matches filter preference")
	}

	if asset.Quality == "high" {
		priority++
		confidence += 0.1
		reasons = append(reasons, "high quality")
	}

	if !asset.CreatedAt.IsZero() && p.now().Sub(asset.CreatedAt) < recentAssetAge {
		priority++
		confidence += 0.1
		reasons = append(reasons, "recently created")
	}

	if priority > 10 {
		priority = 10
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return types.PrefetchStrategy{
		Priority:   priority,
		Confidence: confidence,
		Reason:     strings.Join(reasons, ", "),
	}
}

// processQueue drains the queue in pressure-sized batches. Single
// instance: the processing flag is set by the caller and cleared here.
// At critical pressure remaining items are left queued for a future
// trigger, not dropped.
func (p *Prefetcher) processQueue() {
	for {
		if p.ctx.Err() != nil {
			p.finish()
			return
		}

		level := p.manager.Pressure()
		if level == types.PressureCritical {
			p.finish()
			return
		}

		batchSize := types.PolicyFor(level).PrefetchBatch

		p.mu.Lock()
		if len(p.queue) == 0 {
			p.processing = false
			p.metrics.SetQueueDepth(0)
			p.mu.Unlock()
			return
		}
		if batchSize > len(p.queue) {
			batchSize = len(p.queue)
		}
		batch := make([]types.Asset, batchSize)
		copy(batch, p.queue[:batchSize])
		p.queue = p.queue[batchSize:]
		p.metrics.SetQueueDepth(len(p.queue))
		p.mu.Unlock()

		var wg sync.WaitGroup
		for _, asset := range batch {
			wg.Add(1)
			go func(asset types.Asset) {
				defer wg.Done()
				p.prefetchOne(asset)
			}(asset)
		}
		wg.Wait()

		select {
		case <-p.ctx.Done():
			p.finish()
			return
		case <-time.After(p.cfg.InterBatchDelay):
		}
	}
}

// prefetchOne resolves and caches a single asset. Failures are logged
// and never abort the batch.
func (p *Prefetcher) prefetchOne(asset types.Asset) {
	url, err := p.resolve(p.ctx, asset)
	if err != nil {
		p.metrics.RecordPrefetch(false)
		p.logger.Debug("Prefetch resolution failed", map[string]interface{}{
			"asset": asset.ID,
			"error": err.Error(),
		})
		return
	}

	p.cache.CacheSignedURL(asset.ID, url)
	p.manager.RegisterAsset(asset.ID, asset.Size, types.PriorityLow)
	p.metrics.RecordPrefetch(true)
}

// resolve calls the external resolver with the configured timeout. A
// hung resolver stalls only its own call, not the pipeline.
func (p *Prefetcher) resolve(ctx context.Context, asset types.Asset) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ResolveTimeout)
	defer cancel()
	return p.resolver.Resolve(ctx, asset)
}

// finish clears the single-flight flag without draining the queue
func (p *Prefetcher) finish() {
	p.mu.Lock()
	p.processing = false
	p.metrics.SetQueueDepth(len(p.queue))
	p.mu.Unlock()
}

// persistLocked re-serializes behavior data to the durable store
func (p *Prefetcher) persistLocked() {
	if err := saveBehaviorData(p.store, p.cfg.BehaviorKey, p.behavior); err != nil {
		p.logger.Warn("Failed to persist behavior data", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
