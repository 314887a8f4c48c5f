package store

import (
	"context"
	"fmt"
	"time"

	"github.com/radek-baczynski/pgjq/internal/models"
)

// Metrics computes a point-in-time snapshot for one queue: totals, per-status
// counts, pending (visible) depth, and the age bounds of enqueued work.
// Reads only; never mutates.
func (s *Store) Metrics(ctx context.Context, queue string) (models.MetricsSnapshot, error) {
	if err := ValidateQueueName(queue); err != nil {
		return models.MetricsSnapshot{}, err
	}
	exists, err := s.QueueExists(ctx, queue)
	if err != nil {
		return models.MetricsSnapshot{}, err
	}
	if !exists {
		return models.MetricsSnapshot{}, fmt.Errorf("metrics for %q: %w", queue, ErrQueueNotFound)
	}

	m := models.MetricsSnapshot{QueueName: queue}
	err = s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'active'),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'failed'),
			count(*) FILTER (WHERE status = 'cancelled'),
			count(*) FILTER (WHERE status = 'stale'),
			coalesce(extract(epoch FROM now() - max(enqueued_at))::bigint, 0),
			coalesce(extract(epoch FROM now() - min(enqueued_at))::bigint, 0),
			now()
		FROM pgjq.jobs
		WHERE queue_name = $1
	`, queue).Scan(
		&m.TotalJobs,
		&m.PendingCount,
		&m.ActiveCount,
		&m.CompletedCount,
		&m.FailedCount,
		&m.CancelledCount,
		&m.StaledCount,
		&m.NewestJobAgeSec,
		&m.OldestJobAgeSec,
		&m.ScrapeTime,
	)
	if err != nil {
		return models.MetricsSnapshot{}, fmt.Errorf("queue metrics: %w", err)
	}
	m.QueueLength = m.TotalJobs
	m.QueueVisibleLength = m.PendingCount
	return m, nil
}

// MetricsAll snapshots every registered queue.
func (s *Store) MetricsAll(ctx context.Context) ([]models.MetricsSnapshot, error) {
	queues, err := s.ListQueues(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.MetricsSnapshot, 0, len(queues))
	for _, q := range queues {
		m, err := s.Metrics(ctx, q.QueueName)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// MetricsTotal sums MetricsAll into one cross-queue rollup.
func (s *Store) MetricsTotal(ctx context.Context) (models.TotalSnapshot, error) {
	all, err := s.MetricsAll(ctx)
	if err != nil {
		return models.TotalSnapshot{}, err
	}
	return SumSnapshots(all), nil
}

// SumSnapshots aggregates per-queue snapshots into a total.
func SumSnapshots(all []models.MetricsSnapshot) models.TotalSnapshot {
	t := models.TotalSnapshot{TotalQueues: len(all)}
	for _, m := range all {
		t.TotalJobs += m.TotalJobs
		t.PendingCount += m.PendingCount
		t.ActiveCount += m.ActiveCount
		t.CompletedCount += m.CompletedCount
		t.FailedCount += m.FailedCount
		t.CancelledCount += m.CancelledCount
		t.StaledCount += m.StaledCount
	}
	return t
}

// JobsChart builds a dense activity series from the audit log: one point per
// (bucket, operation observed in range), zero-filled where a bucket saw no
// entries, so consumers can render a gapless chart. Bucket boundaries are
// aligned to `from` via date_bin.
func (s *Store) JobsChart(ctx context.Context, queue string, from, to time.Time, bucket time.Duration) ([]models.ChartPoint, error) {
	if err := ValidateQueueName(queue); err != nil {
		return nil, err
	}
	if bucket <= 0 {
		bucket = time.Minute
	}
	if !to.After(from) {
		return nil, validationErrorf("chart range is empty: from %s to %s", from, to)
	}

	rows, err := s.pool.Query(ctx, `
		WITH buckets AS (
			SELECT generate_series($2::timestamptz, $3::timestamptz, make_interval(secs => $4)) AS bucket
		), ops AS (
			SELECT DISTINCT op
			FROM pgjq.audit_log
			WHERE queue_name = $1 AND created_at >= $2 AND created_at < $3
		), counts AS (
			SELECT date_bin(make_interval(secs => $4), created_at, $2::timestamptz) AS bucket, op, count(*) AS n
			FROM pgjq.audit_log
			WHERE queue_name = $1 AND created_at >= $2 AND created_at < $3
			GROUP BY 1, 2
		)
		SELECT b.bucket, o.op, coalesce(c.n, 0)
		FROM buckets b
		CROSS JOIN ops o
		LEFT JOIN counts c ON c.bucket = b.bucket AND c.op = o.op
		ORDER BY b.bucket, o.op
	`, queue, from, to, bucket.Seconds())
	if err != nil {
		return nil, fmt.Errorf("jobs chart: %w", err)
	}
	defer rows.Close()

	var out []models.ChartPoint
	for rows.Next() {
		var p models.ChartPoint
		if err := rows.Scan(&p.Bucket, &p.Operation, &p.Count); err != nil {
			return nil, fmt.Errorf("scan chart point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs chart: %w", err)
	}
	return out, nil
}
