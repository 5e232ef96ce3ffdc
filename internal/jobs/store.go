package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shapelearner/internal/metrics"
	"shapelearner/internal/services"
)

// casAttempts bounds how often Update re-reads a job whose status changed
// between the read and the conditional write.
const casAttempts = 5

// Create inserts a job in the Created status with empty fields and returns its id.
func (s *Store) Create(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (status, part_id, part_name, worker_ip, worker_port, message, created_at, updated_at)
         VALUES (?, 0, NULL, NULL, 0, NULL, ?, ?)`,
		StatusCreated, now, now,
	)
	if err != nil {
		return 0, storeError("create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeError("create", fmt.Errorf("last insert id: %w", err))
	}
	metrics.RecordJobTransition(string(StatusCreated))
	return id, nil
}

// Get fetches a job by identifier.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "get", fmt.Sprintf("job %d does not exist", id), nil)
	}
	if err != nil {
		return nil, storeError("get", err)
	}
	return job, nil
}

// List returns jobs ordered by id, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storeError("list", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list", err)
	}
	return out, nil
}

// Update overwrites every mutable field of a job and refreshes its timestamp.
// The write only lands if the stored status is still the one that was
// validated, so a concurrent terminal update is never overwritten.
func (s *Store) Update(ctx context.Context, req UpdateRequest) (int64, error) {
	if err := validateUpdate(req); err != nil {
		return 0, err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := s.Get(ctx, req.ID)
		if err != nil {
			return 0, err
		}
		if req.ExpectedStatus != "" && current.Status != req.ExpectedStatus {
			return 0, services.Wrap(services.ErrInvalidTransition, "jobs", "update",
				fmt.Sprintf("job %d is %s, expected %s", req.ID, current.Status, req.ExpectedStatus), nil)
		}
		if !CanTransition(current.Status, req.Status) {
			return 0, services.Wrap(services.ErrInvalidTransition, "jobs", "update",
				fmt.Sprintf("job %d cannot move from %s to %s", req.ID, current.Status, req.Status), nil)
		}

		res, err := s.execWithRetry(ctx,
			`UPDATE jobs
             SET status = ?, part_id = ?, part_name = ?, worker_ip = ?, worker_port = ?,
                 message = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			req.Status,
			req.PartID,
			nullableString(req.PartName),
			nullableString(req.WorkerIP),
			req.WorkerPort,
			nullableString(req.Message),
			formatTime(time.Now()),
			req.ID,
			current.Status,
		)
		if err != nil {
			return 0, storeError("update", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, storeError("update", err)
		}
		if affected == 1 {
			metrics.RecordJobTransition(string(req.Status))
			return req.ID, nil
		}
		metrics.RecordJobConflict()
	}

	return 0, services.Wrap(services.ErrTransient, "jobs", "update",
		fmt.Sprintf("job %d changed concurrently %d times", req.ID, casAttempts), nil)
}

func validateUpdate(req UpdateRequest) error {
	switch {
	case req.ID <= 0:
		return services.Wrap(services.ErrValidation, "jobs", "update", "job id must be positive", nil)
	case req.Status.rank() < 0:
		return services.Wrap(services.ErrValidation, "jobs", "update", fmt.Sprintf("unknown job status %q", req.Status), nil)
	case req.ExpectedStatus != "" && req.ExpectedStatus.rank() < 0:
		return services.Wrap(services.ErrValidation, "jobs", "update", fmt.Sprintf("unknown expected status %q", req.ExpectedStatus), nil)
	case req.PartID < 0:
		return services.Wrap(services.ErrValidation, "jobs", "update", "part id can't be negative", nil)
	case req.WorkerPort < 0 || req.WorkerPort > 65535:
		return services.Wrap(services.ErrValidation, "jobs", "update", fmt.Sprintf("worker port %d out of range", req.WorkerPort), nil)
	}
	return nil
}
