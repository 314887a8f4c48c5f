package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/radek-baczynski/pgjq/internal/models"
)

// maxQueueNameLen bounds queue identifiers. Part of the public contract:
// longer names must fail, never truncate.
const maxQueueNameLen = 48

// forbiddenQueueRunes are rejected wherever a queue name could end up inside
// a dynamically assembled storage identifier.
const forbiddenQueueRunes = `$;'"`

// ValidateQueueName enforces the queue naming contract before any storage is
// touched.
func ValidateQueueName(name string) error {
	if name == "" {
		return validationErrorf("queue name must not be empty")
	}
	if len(name) > maxQueueNameLen {
		return validationErrorf("queue name exceeds %d characters", maxQueueNameLen)
	}
	if strings.ContainsAny(name, forbiddenQueueRunes) {
		return validationErrorf("queue name contains a forbidden character (one of %s)", forbiddenQueueRunes)
	}
	if strings.Contains(name, "--") {
		return validationErrorf(`queue name contains the forbidden sequence "--"`)
	}
	return nil
}

// CreateQueue registers a queue. Idempotent: creating an existing name is a
// no-op.
func (s *Store) CreateQueue(ctx context.Context, name string) error {
	if err := ValidateQueueName(name); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pgjq.queues (queue_name, is_partitioned, is_unlogged, created_at)
		VALUES ($1, false, false, now())
		ON CONFLICT (queue_name) DO NOTHING
	`, name)
	if err != nil {
		return fmt.Errorf("create queue %q: %w", name, err)
	}
	return nil
}

// DropQueue removes the registry entry and, via cascade, every job row.
// Audit rows are deliberately retained. Returns whether the queue existed.
func (s *Store) DropQueue(ctx context.Context, name string) (bool, error) {
	if err := ValidateQueueName(name); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM pgjq.queues WHERE queue_name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("drop queue %q: %w", name, err)
	}
	return tag.RowsAffected() > 0, nil
}

// QueueExists reports whether a queue is registered.
func (s *Store) QueueExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateQueueName(name); err != nil {
		return false, err
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM pgjq.queues WHERE queue_name = $1)
	`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("queue exists %q: %w", name, err)
	}
	return exists, nil
}

// ListQueues returns every registry entry, oldest first.
func (s *Store) ListQueues(ctx context.Context) ([]models.QueueRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT queue_name, is_partitioned, is_unlogged, created_at
		FROM pgjq.queues
		ORDER BY created_at, queue_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var out []models.QueueRecord
	for rows.Next() {
		var q models.QueueRecord
		if err := rows.Scan(&q.QueueName, &q.IsPartitioned, &q.IsUnlogged, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return out, nil
}
