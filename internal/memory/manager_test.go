package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/pkg/types"
)

// stubProbe reports a fixed heap usage
type stubProbe struct {
	used  uint64
	total uint64
	ok    bool
}

func (p *stubProbe) Usage() (uint64, uint64, bool) {
	return p.used, p.total, p.ok
}

// recordPurger records cascade purge calls
type recordPurger struct {
	mu         sync.Mutex
	purged     []string
	maxAges    []time.Duration
	purgeCount int
	size       int64
}

func (p *recordPurger) PurgeAsset(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purged = append(p.purged, id)
}

func (p *recordPurger) PurgeOlderThan(age time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxAges = append(p.maxAges, age)
	return p.purgeCount
}

func (p *recordPurger) SerializedSize() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *recordPurger) purgedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.purged...)
}

func testMemoryConfig() config.MemoryConfig {
	return config.MemoryConfig{
		DefaultAssetSize: 1024,
		ProbeEnabled:     true,
		GCHintEnabled:    true,
	}
}

// newTestManager builds a manager with a stub probe, a recording
// purger, a controllable clock, and a counting GC hint
func newTestManager(t *testing.T, probe *stubProbe) (*Manager, *recordPurger, *time.Time, *int) {
	t.Helper()

	purger := &recordPurger{}
	m := NewManager(testMemoryConfig(), probe, purger, nil, nil)
	t.Cleanup(m.Close)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gcHints := 0
	m.now = func() time.Time { return current }
	m.gcHint = func() { gcHints++ }

	return m, purger, &current, &gcHints
}

// TestRegisterAsset tests registration, defaulting, and overwrite
func TestRegisterAsset(t *testing.T) {
	m, _, _, _ := newTestManager(t, &stubProbe{})

	m.RegisterAsset("a1", 2048, types.PriorityHigh)
	if !m.Tracked("a1") {
		t.Error("registered asset not tracked")
	}

	m.RegisterAsset("", 2048, types.PriorityHigh)
	if m.Tracked("") {
		t.Error("empty id was registered")
	}

	m.RegisterAsset("a2", 0, types.PriorityLow)
	stats := m.Stats()
	if stats.TrackedAssets != 2 {
		t.Errorf("TrackedAssets = %d, want 2", stats.TrackedAssets)
	}
	if stats.AssetCacheSize != 2048+1024 {
		t.Errorf("AssetCacheSize = %d, want %d (zero size replaced by default)", stats.AssetCacheSize, 2048+1024)
	}

	// Re-registration replaces, it does not accumulate
	m.RegisterAsset("a1", 4096, types.PriorityLow)
	if got := m.Stats().AssetCacheSize; got != 4096+1024 {
		t.Errorf("AssetCacheSize after overwrite = %d, want %d", got, 4096+1024)
	}
}

// TestUpdateAssetVisibility tests visibility toggling and the unknown-id no-op
func TestUpdateAssetVisibility(t *testing.T) {
	m, _, _, _ := newTestManager(t, &stubProbe{})

	m.RegisterAsset("a1", 100, types.PriorityLow)
	if m.Visible("a1") {
		t.Error("asset visible before any update")
	}

	m.UpdateAssetVisibility("a1", true)
	if !m.Visible("a1") {
		t.Error("asset not visible after update")
	}

	m.UpdateAssetVisibility("a1", false)
	if m.Visible("a1") {
		t.Error("asset still visible after clearing")
	}

	m.UpdateAssetVisibility("unknown", true)
	if m.Tracked("unknown") {
		t.Error("visibility update created an asset")
	}
}

// TestUnregisterAssetCascades tests that removal purges the asset's
// session cache entries
func TestUnregisterAssetCascades(t *testing.T) {
	m, purger, _, _ := newTestManager(t, &stubProbe{})

	m.RegisterAsset("a1", 100, types.PriorityLow)
	m.UnregisterAsset("a1")

	if m.Tracked("a1") {
		t.Error("asset still tracked after unregister")
	}
	if ids := purger.purgedIDs(); len(ids) != 1 || ids[0] != "a1" {
		t.Errorf("purge cascade = %v, want [a1]", ids)
	}

	// Unknown ids do not cascade
	m.UnregisterAsset("a1")
	if len(purger.purgedIDs()) != 1 {
		t.Error("repeat unregister cascaded again")
	}
}

// TestStatsPressure tests ratio-derived pressure levels through the probe
func TestStatsPressure(t *testing.T) {
	tests := []struct {
		name  string
		probe *stubProbe
		want  types.PressureLevel
	}{
		{"no probe signal", &stubProbe{ok: false}, types.PressureLow},
		{"half used", &stubProbe{used: 50, total: 100, ok: true}, types.PressureLow},
		{"medium", &stubProbe{used: 75, total: 100, ok: true}, types.PressureMedium},
		{"high", &stubProbe{used: 90, total: 100, ok: true}, types.PressureHigh},
		{"critical", &stubProbe{used: 99, total: 100, ok: true}, types.PressureCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _, _ := newTestManager(t, tt.probe)
			if got := m.Pressure(); got != tt.want {
				t.Errorf("Pressure() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestStatsSessionCacheSize tests that the purger's serialized size is
// surfaced in stats
func TestStatsSessionCacheSize(t *testing.T) {
	m, purger, _, _ := newTestManager(t, &stubProbe{})
	purger.size = 4096

	if got := m.Stats().SessionCacheSize; got != 4096 {
		t.Errorf("SessionCacheSize = %d, want 4096", got)
	}
}

// TestCriticalEviction tests that critical pressure evicts every
// non-visible asset regardless of priority, spares visible assets,
// purges aged cache entries, and hints the collector
func TestCriticalEviction(t *testing.T) {
	probe := &stubProbe{used: 99, total: 100, ok: true}
	m, purger, _, gcHints := newTestManager(t, probe)

	m.RegisterAsset("offscreen-low", 100, types.PriorityLow)
	m.RegisterAsset("offscreen-high", 100, types.PriorityHigh)
	m.RegisterAsset("onscreen", 100, types.PriorityLow)
	m.UpdateAssetVisibility("onscreen", true)

	level := m.CheckPressure()
	if level != types.PressureCritical {
		t.Fatalf("CheckPressure() = %v, want critical", level)
	}

	if m.Tracked("offscreen-low") || m.Tracked("offscreen-high") {
		t.Error("non-visible assets survived critical eviction")
	}
	if !m.Tracked("onscreen") {
		t.Error("visible asset evicted")
	}

	ids := purger.purgedIDs()
	if len(ids) != 2 {
		t.Errorf("expected 2 cascade purges, got %v", ids)
	}
	if len(purger.maxAges) != 1 || purger.maxAges[0] != 5*time.Minute {
		t.Errorf("expected a 5m age purge, got %v", purger.maxAges)
	}
	if *gcHints != 1 {
		t.Errorf("expected 1 GC hint, got %d", *gcHints)
	}
}

// TestHighEvictionOldestHalf tests that high pressure evicts the oldest
// half of low-priority candidates
func TestHighEvictionOldestHalf(t *testing.T) {
	probe := &stubProbe{used: 90, total: 100, ok: true}
	m, _, clock, gcHints := newTestManager(t, probe)

	// Four low-priority assets registered a minute apart, oldest first
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		m.RegisterAsset(id, 100, types.PriorityLow)
		*clock = clock.Add(time.Minute)
	}
	// High-priority assets are not candidates below critical
	m.RegisterAsset("precious", 100, types.PriorityHigh)

	m.CheckPressure()

	if m.Tracked("a1") || m.Tracked("a2") {
		t.Error("oldest candidates survived high-pressure eviction")
	}
	if !m.Tracked("a3") || !m.Tracked("a4") {
		t.Error("newest candidates evicted at high pressure")
	}
	if !m.Tracked("precious") {
		t.Error("high-priority asset evicted below critical pressure")
	}
	if *gcHints != 0 {
		t.Error("GC hinted below critical pressure")
	}
}

// TestMediumEvictionCount tests the fixed eviction count at medium pressure
func TestMediumEvictionCount(t *testing.T) {
	probe := &stubProbe{used: 75, total: 100, ok: true}
	m, _, clock, _ := newTestManager(t, probe)

	for i := 0; i < 15; i++ {
		m.RegisterAsset(string(rune('a'+i)), 100, types.PriorityLow)
		*clock = clock.Add(time.Second)
	}

	m.CheckPressure()

	if got := m.Stats().TrackedAssets; got != 5 {
		t.Errorf("TrackedAssets after medium eviction = %d, want 5", got)
	}
	// The newest five are the survivors
	for i := 10; i < 15; i++ {
		if !m.Tracked(string(rune('a' + i))) {
			t.Errorf("newest asset %c evicted before older ones", rune('a'+i))
		}
	}
}

// TestLowPressureNoEviction tests that nothing is evicted at low pressure
func TestLowPressureNoEviction(t *testing.T) {
	m, purger, _, _ := newTestManager(t, &stubProbe{used: 10, total: 100, ok: true})

	m.RegisterAsset("a1", 100, types.PriorityLow)
	if level := m.CheckPressure(); level != types.PressureLow {
		t.Fatalf("CheckPressure() = %v, want low", level)
	}
	if !m.Tracked("a1") {
		t.Error("asset evicted at low pressure")
	}
	if len(purger.purgedIDs()) != 0 || len(purger.maxAges) != 0 {
		t.Error("purger invoked at low pressure")
	}
}

// TestVisibilityRefreshProtectsFromEviction tests that a recent
// visibility update moves an asset to the back of the eviction order
func TestVisibilityRefreshProtectsFromEviction(t *testing.T) {
	probe := &stubProbe{used: 90, total: 100, ok: true}
	m, _, clock, _ := newTestManager(t, probe)

	m.RegisterAsset("stale", 100, types.PriorityLow)
	m.RegisterAsset("touched", 100, types.PriorityLow)
	*clock = clock.Add(time.Hour)

	// The access-time refresh makes "touched" the newer candidate even
	// though it was registered second long ago
	m.UpdateAssetVisibility("touched", false)

	m.CheckPressure() // high pressure evicts the oldest half: 1 of 2

	if m.Tracked("stale") {
		t.Error("stale asset survived while a fresher one was evicted")
	}
	if !m.Tracked("touched") {
		t.Error("recently touched asset evicted first")
	}
}

// TestCloseIdempotent tests that Close stops the cleanup loop and can
// be called repeatedly
func TestCloseIdempotent(t *testing.T) {
	m := NewManager(testMemoryConfig(), &stubProbe{}, nil, nil, nil)
	m.RegisterAsset("a1", 100, types.PriorityLow)

	m.Close()
	m.Close()

	if m.Tracked("a1") {
		t.Error("tracked assets survived Close")
	}
}

// TestNilProbeDegradesToLow tests the capability-absent default
func TestNilProbeDegradesToLow(t *testing.T) {
	m := NewManager(testMemoryConfig(), nil, nil, nil, nil)
	defer m.Close()

	if got := m.Pressure(); got != types.PressureLow {
		t.Errorf("Pressure() without a probe = %v, want low", got)
	}
}
