package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/pkg/types"
)

func enabledConfig() config.MetricsConfig {
	return config.MetricsConfig{
		Enabled:   true,
		Namespace: "mediacache",
		Path:      "/metrics",
	}
}

// TestNilCollectorIsSafe verifies every recording method tolerates a
// nil receiver
func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	c.RecordCacheHit("url")
	c.RecordCacheMiss("metadata")
	c.RecordEviction(types.PressureHigh, 3)
	c.RecordPurged(2)
	c.RecordPrefetch(true)
	c.SetMemoryStats(types.MemoryStats{})
	c.SetQueueDepth(5)

	if err := c.Start(); err != nil {
		t.Errorf("Start on nil collector: %v", err)
	}
	if c.Registry() != nil {
		t.Error("nil collector returned a registry")
	}
}

// TestDisabledCollectorRecordsNothing verifies the disabled path
func TestDisabledCollectorRecordsNothing(t *testing.T) {
	c, err := NewCollector(config.MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordCacheHit("url")
	c.SetQueueDepth(5)

	if c.Registry() != nil {
		t.Error("disabled collector registered metrics")
	}
}

// TestCacheCounters verifies hit and miss counting per entry class
func TestCacheCounters(t *testing.T) {
	c, err := NewCollector(enabledConfig())
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordCacheHit("url")
	c.RecordCacheHit("url")
	c.RecordCacheMiss("url")
	c.RecordCacheMiss("metadata")

	if got := testutil.ToFloat64(c.cacheCounter.WithLabelValues("url", "hit")); got != 2 {
		t.Errorf("url hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.cacheCounter.WithLabelValues("url", "miss")); got != 1 {
		t.Errorf("url misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.cacheCounter.WithLabelValues("metadata", "miss")); got != 1 {
		t.Errorf("metadata misses = %v, want 1", got)
	}
}

// TestEvictionAndPurgeCounters verifies pressure-labeled counting and
// the zero-count no-op
func TestEvictionAndPurgeCounters(t *testing.T) {
	c, err := NewCollector(enabledConfig())
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordEviction(types.PressureCritical, 4)
	c.RecordEviction(types.PressureCritical, 0)
	c.RecordPurged(7)
	c.RecordPurged(0)

	if got := testutil.ToFloat64(c.evictionCounter.WithLabelValues("critical")); got != 4 {
		t.Errorf("critical evictions = %v, want 4", got)
	}
	if got := testutil.ToFloat64(c.purgeCounter); got != 7 {
		t.Errorf("purged entries = %v, want 7", got)
	}
}

// TestPrefetchCounter verifies outcome labeling
func TestPrefetchCounter(t *testing.T) {
	c, err := NewCollector(enabledConfig())
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordPrefetch(true)
	c.RecordPrefetch(true)
	c.RecordPrefetch(false)

	if got := testutil.ToFloat64(c.prefetchCounter.WithLabelValues("resolved")); got != 2 {
		t.Errorf("resolved = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.prefetchCounter.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}

// TestMemoryGauges verifies the memory snapshot gauges
func TestMemoryGauges(t *testing.T) {
	c, err := NewCollector(enabledConfig())
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.SetMemoryStats(types.MemoryStats{
		TrackedAssets:    12,
		AssetCacheSize:   4096,
		SessionCacheSize: 2048,
		PressureLevel:    types.PressureHigh,
	})
	c.SetQueueDepth(3)

	if got := testutil.ToFloat64(c.trackedAssets); got != 12 {
		t.Errorf("tracked assets = %v, want 12", got)
	}
	if got := testutil.ToFloat64(c.assetCacheBytes); got != 4096 {
		t.Errorf("asset cache bytes = %v, want 4096", got)
	}
	if got := testutil.ToFloat64(c.sessionCacheBytes); got != 2048 {
		t.Errorf("session cache bytes = %v, want 2048", got)
	}
	if got := testutil.ToFloat64(c.pressureGauge); got != float64(types.PressureHigh) {
		t.Errorf("pressure = %v, want %v", got, float64(types.PressureHigh))
	}
	if got := testutil.ToFloat64(c.queueDepth); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
}

// TestRegistryGathers verifies the registered metric families gather
// without duplicates
func TestRegistryGathers(t *testing.T) {
	c, err := NewCollector(enabledConfig())
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordCacheHit("url")
	c.SetQueueDepth(1)

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("no metric families gathered")
	}
}
