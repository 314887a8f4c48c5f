package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/radek-baczynski/pgjq/internal/models"
)

const maxPerPage = 1000

// sortColumns is the allow-list of sortable identifiers. Sort input is
// resolved through this map before it is ever interpolated into SQL.
var sortColumns = map[string]string{
	"job_id":      "job_id",
	"read_ct":     "read_ct",
	"enqueued_at": "enqueued_at",
	"dequeued_at": "dequeued_at",
	"status":      "status",
	"priority":    "priority",
}

// ListParams controls job enumeration. Zero values mean: first page, 50 per
// page, sorted by job_id ascending, all statuses.
type ListParams struct {
	Page     int
	PerPage  int
	SortBy   string
	SortDir  string
	Statuses []string
}

// normalize validates and defaults the parameters, returning the vetted sort
// column and direction.
func (p *ListParams) normalize() (column, dir string, err error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PerPage == 0 {
		p.PerPage = 50
	}
	if p.SortBy == "" {
		p.SortBy = "job_id"
	}
	if p.SortDir == "" {
		p.SortDir = "ASC"
	}
	if p.Page < 1 {
		return "", "", validationErrorf("page must be >= 1, got %d", p.Page)
	}
	if p.PerPage < 1 || p.PerPage > maxPerPage {
		return "", "", validationErrorf("per_page must be between 1 and %d, got %d", maxPerPage, p.PerPage)
	}
	column, ok := sortColumns[p.SortBy]
	if !ok {
		return "", "", validationErrorf("unsupported sort column %q", p.SortBy)
	}
	switch strings.ToUpper(p.SortDir) {
	case "ASC":
		dir = "ASC"
	case "DESC":
		dir = "DESC"
	default:
		return "", "", validationErrorf("sort direction must be ASC or DESC, got %q", p.SortDir)
	}
	for _, st := range p.Statuses {
		if !models.ValidStatus(st) {
			return "", "", validationErrorf("unknown status filter %q", st)
		}
	}
	return column, dir, nil
}

// ListJobs returns one offset-based page of jobs plus the unpaged total.
func (s *Store) ListJobs(ctx context.Context, queue string, params ListParams) (models.JobList, error) {
	if err := ValidateQueueName(queue); err != nil {
		return models.JobList{}, err
	}
	column, dir, err := params.normalize()
	if err != nil {
		return models.JobList{}, err
	}

	var statuses []string
	if len(params.Statuses) > 0 {
		statuses = params.Statuses
	}
	offset := (params.Page - 1) * params.PerPage

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s, count(*) OVER () AS total_count
		FROM pgjq.jobs
		WHERE queue_name = $1
		  AND ($2::text[] IS NULL OR status = ANY ($2))
		ORDER BY %s %s
		LIMIT $3 OFFSET $4
	`, jobColumns, column, dir), queue, statuses, params.PerPage, offset)
	if err != nil {
		return models.JobList{}, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := models.JobList{Jobs: []models.Job{}}
	for rows.Next() {
		var j jobWithTotal
		if err := rows.Scan(j.dest()...); err != nil {
			return models.JobList{}, fmt.Errorf("scan job: %w", err)
		}
		out.Jobs = append(out.Jobs, j.toJob())
		out.TotalCount = j.total
	}
	if err := rows.Err(); err != nil {
		return models.JobList{}, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}
