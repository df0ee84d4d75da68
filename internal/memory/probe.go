// Package memory tracks registered assets and evicts them under memory pressure
package memory

import (
	"runtime"
)

// RuntimeProbe reports heap usage from the Go runtime
type RuntimeProbe struct{}

// Usage returns current heap usage from runtime.ReadMemStats
func (RuntimeProbe) Usage() (used, total uint64, ok bool) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	if memStats.HeapSys == 0 {
		return 0, 0, false
	}
	return memStats.HeapAlloc, memStats.HeapSys, true
}

// NullProbe is the capability-absent default. It always reports no
// usage, which degrades pressure to low.
type NullProbe struct{}

// Usage reports that no heap signal is available
func (NullProbe) Usage() (used, total uint64, ok bool) {
	return 0, 0, false
}
