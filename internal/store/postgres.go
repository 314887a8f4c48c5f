package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radek-baczynski/pgjq/internal/models"
)

// Audit log operation names. Every mutating engine call appends exactly one
// entry per affected job, inside the same transaction as the mutation.
const (
	OpEnqueue   = "enqueue"
	OpDequeue   = "dequeue"
	OpAck       = "ack"
	OpNack      = "nack"
	OpDelete    = "delete"
	OpPurge     = "purge"
	OpMarkStale = "mark_stale"
)

// PurgeJobID tags queue-wide audit entries that have no single subject job.
const PurgeJobID = "ALL"

// Store wraps pgxpool for Postgres persistence of queues, jobs, and the
// audit log.
type Store struct {
	pool              *pgxpool.Pool
	defaultStaleAfter time.Duration
	checkInterval     time.Duration
}

// Option adjusts Store construction.
type Option func(*Store)

// WithDefaultStaleAfter overrides the lease length applied when an enqueue
// does not specify one.
func WithDefaultStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.defaultStaleAfter = d
		}
	}
}

// WithStaleCheckInterval overrides the minimum spacing between registry-wide
// stale sweeps.
func WithStaleCheckInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{
		pool:              pool,
		defaultStaleAfter: time.Minute,
		checkInterval:     time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// logOperation appends one audit row within the caller's transaction, so the
// entry commits or rolls back together with the mutation it records.
func logOperation(ctx context.Context, tx pgx.Tx, jobID, queue, op string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO pgjq.audit_log (job_id, queue_name, op, created_at)
		VALUES ($1, $2, $3, now())
	`, jobID, queue, op)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// jobColumns is the canonical select list; keep in sync with scanJob.
const jobColumns = `job_id, read_ct, enqueued_at, dequeued_at, staled_at,
	completed_at, cancelled_at, failed_at, job, headers, status,
	stale_after_ms, priority`

func scanJob(row pgx.Row) (models.Job, error) {
	var (
		j           models.Job
		dequeuedAt  pgtype.Timestamptz
		staledAt    pgtype.Timestamptz
		completedAt pgtype.Timestamptz
		cancelledAt pgtype.Timestamptz
		failedAt    pgtype.Timestamptz
		staleMs     int64
	)
	err := row.Scan(&j.JobID, &j.ReadCt, &j.EnqueuedAt, &dequeuedAt, &staledAt,
		&completedAt, &cancelledAt, &failedAt, &j.Payload, &j.Headers,
		&j.Status, &staleMs, &j.Priority)
	if err != nil {
		return models.Job{}, err
	}
	j.DequeuedAt = tsPtr(dequeuedAt)
	j.StaledAt = tsPtr(staledAt)
	j.CompletedAt = tsPtr(completedAt)
	j.CancelledAt = tsPtr(cancelledAt)
	j.FailedAt = tsPtr(failedAt)
	j.StaleAfter = time.Duration(staleMs) * time.Millisecond
	return j, nil
}

// jobWithTotal scans a job row carrying a trailing count(*) OVER () column,
// as produced by ListJobs.
type jobWithTotal struct {
	job         models.Job
	dequeuedAt  pgtype.Timestamptz
	staledAt    pgtype.Timestamptz
	completedAt pgtype.Timestamptz
	cancelledAt pgtype.Timestamptz
	failedAt    pgtype.Timestamptz
	staleMs     int64
	total       int
}

func (j *jobWithTotal) dest() []any {
	return []any{
		&j.job.JobID, &j.job.ReadCt, &j.job.EnqueuedAt, &j.dequeuedAt,
		&j.staledAt, &j.completedAt, &j.cancelledAt, &j.failedAt,
		&j.job.Payload, &j.job.Headers, &j.job.Status, &j.staleMs,
		&j.job.Priority, &j.total,
	}
}

func (j *jobWithTotal) toJob() models.Job {
	job := j.job
	job.DequeuedAt = tsPtr(j.dequeuedAt)
	job.StaledAt = tsPtr(j.staledAt)
	job.CompletedAt = tsPtr(j.completedAt)
	job.CancelledAt = tsPtr(j.cancelledAt)
	job.FailedAt = tsPtr(j.failedAt)
	job.StaleAfter = time.Duration(j.staleMs) * time.Millisecond
	return job
}

func tsPtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}
