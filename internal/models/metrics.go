package models

import "time"

// SystemMetrics is a lightweight snapshot of process counters.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	PropagationsApplied      uint64    `json:"propagations_applied"`
	PropagationsFailed       uint64    `json:"propagations_failed"`
	HealRowsImported         uint64    `json:"heal_rows_imported"`
	HealMergeFailures        uint64    `json:"heal_merge_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
