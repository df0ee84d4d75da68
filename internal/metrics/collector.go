// Package metrics provides Prometheus metrics collection for the cache subsystem
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/pkg/types"
)

// Collector aggregates cache, memory, and prefetch metrics and exposes
// them on an optional Prometheus endpoint. A nil Collector is valid and
// records nothing, so callers never branch on whether metrics are wired.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	cacheCounter    *prometheus.CounterVec
	evictionCounter *prometheus.CounterVec
	prefetchCounter *prometheus.CounterVec
	purgeCounter    prometheus.Counter

	trackedAssets     prometheus.Gauge
	assetCacheBytes   prometheus.Gauge
	sessionCacheBytes prometheus.Gauge
	pressureGauge     prometheus.Gauge
	queueDepth        prometheus.Gauge

	server *http.Server
}

// NewCollector creates a metrics collector. A disabled config returns a
// collector that records nothing.
func NewCollector(cfg config.MetricsConfig) (*Collector, error) {
	if !cfg.Enabled {
		return &Collector{config: cfg}, nil
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "mediacache"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}

	registry := prometheus.NewRegistry()

	c := &Collector{
		config:   cfg,
		registry: registry,
		cacheCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_requests_total",
			Help:      "Session cache reads by entry class and outcome",
		}, []string{"class", "result"}),
		evictionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "evictions_total",
			Help:      "Asset evictions by pressure level",
		}, []string{"level"}),
		prefetchCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "prefetch_total",
			Help:      "Prefetch resolutions by outcome",
		}, []string{"result"}),
		purgeCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_purged_entries_total",
			Help:      "Session cache entries removed by pressure-driven purges",
		}),
		trackedAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "tracked_assets",
			Help:      "Assets currently registered with the memory manager",
		}),
		assetCacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "asset_cache_bytes",
			Help:      "Aggregate byte size of registered assets",
		}),
		sessionCacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "session_cache_bytes",
			Help:      "Serialized byte size of session cache values",
		}),
		pressureGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "pressure_level",
			Help:      "Current memory pressure level (0=low 1=medium 2=high 3=critical)",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "prefetch_queue_depth",
			Help:      "Assets waiting in the prefetch queue",
		}),
	}

	collectors := []prometheus.Collector{
		c.cacheCounter, c.evictionCounter, c.prefetchCounter, c.purgeCounter,
		c.trackedAssets, c.assetCacheBytes, c.sessionCacheBytes,
		c.pressureGauge, c.queueDepth,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return c, nil
}

// Start serves the metrics endpoint in the background
func (c *Collector) Start() error {
	if c == nil || !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts down the metrics endpoint
func (c *Collector) Stop(ctx context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// Registry exposes the underlying registry for tests
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordCacheHit records a session cache hit for an entry class
func (c *Collector) RecordCacheHit(class string) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.cacheCounter.With(prometheus.Labels{"class": class, "result": "hit"}).Inc()
}

// RecordCacheMiss records a session cache miss for an entry class
func (c *Collector) RecordCacheMiss(class string) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.cacheCounter.With(prometheus.Labels{"class": class, "result": "miss"}).Inc()
}

// RecordEviction records asset evictions at a pressure level
func (c *Collector) RecordEviction(level types.PressureLevel, count int) {
	if c == nil || !c.config.Enabled || count == 0 {
		return
	}
	c.evictionCounter.With(prometheus.Labels{"level": level.String()}).Add(float64(count))
}

// RecordPurged records session cache entries removed by a purge
func (c *Collector) RecordPurged(count int) {
	if c == nil || !c.config.Enabled || count == 0 {
		return
	}
	c.purgeCounter.Add(float64(count))
}

// RecordPrefetch records a prefetch resolution outcome
func (c *Collector) RecordPrefetch(success bool) {
	if c == nil || !c.config.Enabled {
		return
	}
	result := "resolved"
	if !success {
		result = "failed"
	}
	c.prefetchCounter.With(prometheus.Labels{"result": result}).Inc()
}

// SetMemoryStats publishes a memory stats snapshot
func (c *Collector) SetMemoryStats(stats types.MemoryStats) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.trackedAssets.Set(float64(stats.TrackedAssets))
	c.assetCacheBytes.Set(float64(stats.AssetCacheSize))
	c.sessionCacheBytes.Set(float64(stats.SessionCacheSize))
	c.pressureGauge.Set(float64(stats.PressureLevel))
}

// SetQueueDepth publishes the prefetch queue depth
func (c *Collector) SetQueueDepth(depth int) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.queueDepth.Set(float64(depth))
}
