package models

import (
	"encoding/json"
	"time"
)

// Job statuses persisted in Postgres.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusStale     = "stale"
)

// Statuses lists every lifecycle state. "cancelled" is reserved: it appears
// in metrics and filters but no engine operation currently drives the
// transition.
var Statuses = []string{
	StatusPending,
	StatusActive,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
	StatusStale,
}

// ValidStatus reports whether s names a known job status.
func ValidStatus(s string) bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Job is one queued unit of work. Payload and Headers are kept as raw JSON so
// they round-trip byte-identically through enqueue, claim, and get.
type Job struct {
	JobID       string          `json:"job_id"`
	ReadCt      int             `json:"read_ct"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	DequeuedAt  *time.Time      `json:"dequeued_at"`
	StaledAt    *time.Time      `json:"staled_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	CancelledAt *time.Time      `json:"cancelled_at"`
	FailedAt    *time.Time      `json:"failed_at"`
	Payload     json.RawMessage `json:"job"`
	Headers     json.RawMessage `json:"headers,omitempty"`
	Status      string          `json:"status"`
	StaleAfter  time.Duration   `json:"stale_after"`
	Priority    int             `json:"priority"`
}

// QueueRecord is a registry entry. The storage-mode flags are reserved and
// currently always false.
type QueueRecord struct {
	QueueName     string    `json:"queue_name"`
	IsPartitioned bool      `json:"is_partitioned"`
	IsUnlogged    bool      `json:"is_unlogged"`
	CreatedAt     time.Time `json:"created_at"`
}

// JobList is one page of jobs plus the unpaged total for pagination.
type JobList struct {
	TotalCount int   `json:"total_count"`
	Jobs       []Job `json:"jobs"`
}

// MetricsSnapshot is a point-in-time aggregation over one queue. Derived on
// demand, never stored.
type MetricsSnapshot struct {
	QueueName          string    `json:"queue_name"`
	QueueLength        int       `json:"queue_length"`
	QueueVisibleLength int       `json:"queue_visible_length"`
	TotalJobs          int       `json:"total_jobs"`
	PendingCount       int       `json:"pending_count"`
	ActiveCount        int       `json:"active_count"`
	CompletedCount     int       `json:"completed_count"`
	FailedCount        int       `json:"failed_count"`
	CancelledCount     int       `json:"cancelled_count"`
	StaledCount        int       `json:"staled_count"`
	NewestJobAgeSec    int       `json:"newest_job_age_sec"`
	OldestJobAgeSec    int       `json:"oldest_job_age_sec"`
	ScrapeTime         time.Time `json:"scrape_time"`
}

// TotalSnapshot rolls every queue's snapshot up into one cross-queue summary.
type TotalSnapshot struct {
	TotalQueues    int `json:"total_queues"`
	TotalJobs      int `json:"total_jobs"`
	PendingCount   int `json:"pending_count"`
	ActiveCount    int `json:"active_count"`
	CompletedCount int `json:"completed_count"`
	FailedCount    int `json:"failed_count"`
	CancelledCount int `json:"cancelled_count"`
	StaledCount    int `json:"staled_count"`
}

// ChartPoint is one (bucket, operation) cell of the activity time series.
// Buckets with no audit entries in range are emitted with a zero count.
type ChartPoint struct {
	Bucket    time.Time `json:"time"`
	Operation string    `json:"operation"`
	Count     int       `json:"count"`
}

// AuditEntry is one append-only operation log row.
type AuditEntry struct {
	JobID     string    `json:"job_id"`
	QueueName string    `json:"queue_name"`
	Operation string    `json:"operation"`
	CreatedAt time.Time `json:"created_at"`
}
