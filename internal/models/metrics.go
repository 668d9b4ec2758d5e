package models

import "time"

// MetricsSnapshot is a point-in-time summary of the service instrumentation.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RowsCreated              uint64    `json:"rows_created"`
	RowsUpdated              uint64    `json:"rows_updated"`
	RowsRelinked             uint64    `json:"rows_relinked"`
	RowsFailed               uint64    `json:"rows_failed"`
	StageFailures            uint64    `json:"stage_failures"`
	NotificationsSent        uint64    `json:"notifications_sent"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
