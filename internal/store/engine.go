package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/radek-baczynski/pgjq/internal/models"
)

// foreignKeyViolation is the Postgres error code raised when a job insert
// references an unregistered queue.
const foreignKeyViolation = "23503"

// EnqueueParams collects inputs for a job insert. StaleAfter zero means the
// store default; Headers may be nil.
type EnqueueParams struct {
	Payload    json.RawMessage
	Headers    json.RawMessage
	StaleAfter time.Duration
	Priority   int
}

// Enqueue inserts a pending job and returns its freshly generated id.
func (s *Store) Enqueue(ctx context.Context, queue string, p EnqueueParams) (string, error) {
	if err := ValidateQueueName(queue); err != nil {
		return "", err
	}
	if p.Priority < 0 {
		return "", validationErrorf("priority must be non-negative, got %d", p.Priority)
	}
	if len(p.Payload) == 0 {
		return "", validationErrorf("job payload is required")
	}
	staleAfter := p.StaleAfter
	if staleAfter <= 0 {
		staleAfter = s.defaultStaleAfter
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	id := newJobID()
	_, err = tx.Exec(ctx, `
		INSERT INTO pgjq.jobs (queue_name, job_id, job, headers, status, stale_after_ms, priority, enqueued_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, now())
	`, queue, id, p.Payload, p.Headers, staleAfter.Milliseconds(), p.Priority)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return "", fmt.Errorf("enqueue into %q: %w", queue, ErrQueueNotFound)
		}
		return "", fmt.Errorf("insert job: %w", err)
	}
	if err := logOperation(ctx, tx, id, queue, OpEnqueue); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Dequeue claims the single best pending job: highest priority first, then
// smallest job id. The candidate select takes a row lock with SKIP LOCKED, so
// a row already claimed by a concurrent worker is bypassed rather than waited
// on; at most one claimant ever wins a given row. An empty queue returns
// (nil, nil) — a normal condition, not an error.
func (s *Store) Dequeue(ctx context.Context, queue string) (*models.Job, error) {
	if err := ValidateQueueName(queue); err != nil {
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		WITH candidate AS (
			SELECT job_id AS claim_id
			FROM pgjq.jobs
			WHERE queue_name = $1 AND status = 'pending'
			ORDER BY priority DESC, job_id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE pgjq.jobs j
		SET status = 'active', read_ct = j.read_ct + 1, dequeued_at = now()
		FROM candidate
		WHERE j.queue_name = $1 AND j.job_id = candidate.claim_id
		RETURNING `+jobColumns)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if err := logOperation(ctx, tx, job.JobID, queue, OpDequeue); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &job, nil
}

// Ack transitions an active job to completed. Returns false without touching
// the row when the job is absent or not exactly active, which is what makes a
// duplicate acknowledgement detectable and safe.
func (s *Store) Ack(ctx context.Context, queue, jobID string) (bool, error) {
	return s.finish(ctx, queue, jobID, models.StatusCompleted, "completed_at", OpAck)
}

// Nack transitions an active job to failed, with the same only-from-active
// guard as Ack.
func (s *Store) Nack(ctx context.Context, queue, jobID string) (bool, error) {
	return s.finish(ctx, queue, jobID, models.StatusFailed, "failed_at", OpNack)
}

// finish performs the guarded active -> terminal transition shared by Ack and
// Nack. tsColumn comes from the two hard-coded call sites, never from input.
func (s *Store) finish(ctx context.Context, queue, jobID, newStatus, tsColumn, op string) (bool, error) {
	if err := ValidateQueueName(queue); err != nil {
		return false, err
	}
	if jobID == "" {
		return false, validationErrorf("job id is required")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE pgjq.jobs
		SET status = $3, %s = now()
		WHERE queue_name = $1 AND job_id = $2 AND status = 'active'
	`, tsColumn), queue, jobID, newStatus)
	if err != nil {
		return false, fmt.Errorf("%s job: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := logOperation(ctx, tx, jobID, queue, op); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// DeleteJob permanently removes a job regardless of status. Returns whether a
// row existed.
func (s *Store) DeleteJob(ctx context.Context, queue, jobID string) (bool, error) {
	if err := ValidateQueueName(queue); err != nil {
		return false, err
	}
	if jobID == "" {
		return false, validationErrorf("job id is required")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM pgjq.jobs WHERE queue_name = $1 AND job_id = $2
	`, queue, jobID)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := logOperation(ctx, tx, jobID, queue, OpDelete); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// PurgeQueue removes every job in the queue in one bulk delete and returns
// the count. A single audit entry is logged against the synthetic "ALL" id.
func (s *Store) PurgeQueue(ctx context.Context, queue string) (int, error) {
	if err := ValidateQueueName(queue); err != nil {
		return 0, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM pgjq.jobs WHERE queue_name = $1`, queue)
	if err != nil {
		return 0, fmt.Errorf("purge queue: %w", err)
	}
	if err := logOperation(ctx, tx, PurgeJobID, queue, OpPurge); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetJob fetches one job by id. Absent rows are ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, queue, jobID string) (models.Job, error) {
	if err := ValidateQueueName(queue); err != nil {
		return models.Job{}, err
	}
	if jobID == "" {
		return models.Job{}, validationErrorf("job id is required")
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM pgjq.jobs
		WHERE queue_name = $1 AND job_id = $2
	`, queue, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, fmt.Errorf("get job %q: %w", jobID, ErrJobNotFound)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}
