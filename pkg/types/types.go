// Package types contains shared types used across mediacache components
package types

import (
	"time"
)

// Asset represents a cacheable, displayable media unit identified by an opaque id
type Asset struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Prompt    string    `json:"prompt,omitempty"`
	Quality   string    `json:"quality,omitempty"`
	Reference string    `json:"reference,omitempty"`
	Size      int64     `json:"size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Priority represents the retention priority of a tracked asset
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String returns the string representation of the priority
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// PressureLevel summarizes current memory scarcity
type PressureLevel int

const (
	PressureLow PressureLevel = iota
	PressureMedium
	PressureHigh
	PressureCritical
)

// String returns the string representation of the pressure level
func (l PressureLevel) String() string {
	switch l {
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Pressure ratio thresholds. Comparisons are strict, so a ratio of exactly
// 0.70 resolves to medium.
const (
	MediumPressureRatio   = 0.70
	HighPressureRatio     = 0.85
	CriticalPressureRatio = 0.95
)

// PressureFor maps a used/total heap ratio to a pressure level
func PressureFor(ratio float64) PressureLevel {
	switch {
	case ratio < MediumPressureRatio:
		return PressureLow
	case ratio < HighPressureRatio:
		return PressureMedium
	case ratio < CriticalPressureRatio:
		return PressureHigh
	default:
		return PressureCritical
	}
}

// EvictionRule describes how aggressively to evict at a pressure level.
// Candidates are always non-visible assets ordered oldest access first.
type EvictionRule struct {
	// AllPriorities evicts regardless of priority tier; otherwise only
	// low-priority candidates are considered.
	AllPriorities bool

	// Fraction of eligible candidates to evict. Takes precedence over Count.
	Fraction float64

	// Count is a fixed maximum number of candidates to evict.
	Count int

	// PurgeMaxAge removes session-cache entries older than this age.
	// Zero disables the purge.
	PurgeMaxAge time.Duration
}

// PressurePolicy couples a pressure level with its cleanup cadence,
// eviction rule, and prefetch batch size.
type PressurePolicy struct {
	TickInterval  time.Duration
	PrefetchBatch int
	Eviction      EvictionRule
}

// PolicyFor returns the policy table entry for a pressure level
func PolicyFor(level PressureLevel) PressurePolicy {
	switch level {
	case PressureCritical:
		return PressurePolicy{
			TickInterval:  5 * time.Second,
			PrefetchBatch: 1,
			Eviction: EvictionRule{
				AllPriorities: true,
				Fraction:      1.0,
				PurgeMaxAge:   5 * time.Minute,
			},
		}
	case PressureHigh:
		return PressurePolicy{
			TickInterval:  15 * time.Second,
			PrefetchBatch: 1,
			Eviction: EvictionRule{
				Fraction:    0.5,
				PurgeMaxAge: 15 * time.Minute,
			},
		}
	case PressureMedium:
		return PressurePolicy{
			TickInterval:  30 * time.Second,
			PrefetchBatch: 2,
			Eviction: EvictionRule{
				Count:       10,
				PurgeMaxAge: 30 * time.Minute,
			},
		}
	default:
		return PressurePolicy{
			TickInterval:  60 * time.Second,
			PrefetchBatch: 3,
		}
	}
}

// MemoryStats provides a snapshot of tracked memory state
type MemoryStats struct {
	TotalMemory      uint64        `json:"total_memory"`
	UsedMemory       uint64        `json:"used_memory"`
	AssetCacheSize   int64         `json:"asset_cache_size"`
	SessionCacheSize int64         `json:"session_cache_size"`
	TrackedAssets    int           `json:"tracked_assets"`
	PressureLevel    PressureLevel `json:"pressure_level"`
}

// CacheStats provides session-cache occupancy counters
type CacheStats struct {
	URLEntries      int   `json:"url_entries"`
	MetadataEntries int   `json:"metadata_entries"`
	TotalBytes      int64 `json:"total_bytes"`
}

// PrefetchStrategy is a per-asset computed ranking used to order
// prefetch candidates. It is never persisted.
type PrefetchStrategy struct {
	Priority   int     `json:"priority"`   // 1..10
	Confidence float64 `json:"confidence"` // 0..1
	Reason     string  `json:"reason"`
}

// Score is the combined ranking value used to pick prefetch candidates
func (s PrefetchStrategy) Score() float64 {
	return float64(s.Priority) * s.Confidence
}
