package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// MarkStaleJobs transitions every active job whose lease has expired
// (dequeued_at + stale_after < now) to stale, stamping staled_at. One
// mark_stale audit entry is logged per affected job, in the same transaction.
// Returns the affected ids. Stale jobs are left in place for operator
// inspection; nothing re-queues them automatically.
func (s *Store) MarkStaleJobs(ctx context.Context, queue string) ([]string, error) {
	if err := ValidateQueueName(queue); err != nil {
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE pgjq.jobs
		SET status = 'stale', staled_at = now()
		WHERE queue_name = $1
		  AND status = 'active'
		  AND dequeued_at + stale_after_ms * interval '1 millisecond' < now()
		RETURNING job_id
	`, queue)
	if err != nil {
		return nil, fmt.Errorf("mark stale jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stale id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark stale jobs: %w", err)
	}

	for _, id := range ids {
		if err := logOperation(ctx, tx, id, queue, OpMarkStale); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// CheckStaleJobs sweeps every registered queue for expired leases, but only
// if at least the configured interval has elapsed since the previous sweep.
// The throttle is a singleton row claimed with a conditional update, so many
// concurrent callers (the reaper ticker, opportunistic dequeue paths) trigger
// at most one sweep per interval. Returns affected ids per queue, or nil when
// throttled.
func (s *Store) CheckStaleJobs(ctx context.Context) (map[string][]string, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pgjq.stale_check
		SET last_checked = now()
		WHERE id = 1
		  AND last_checked <= now() - make_interval(secs => $1)
	`, s.checkInterval.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim stale check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}

	queues, err := s.ListQueues(ctx)
	if err != nil {
		return nil, err
	}
	marked := make(map[string][]string)
	for _, q := range queues {
		ids, err := s.MarkStaleJobs(ctx, q.QueueName)
		if err != nil {
			return marked, err
		}
		if len(ids) > 0 {
			marked[q.QueueName] = ids
		}
	}
	return marked, nil
}
