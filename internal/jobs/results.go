package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shapelearner/internal/services"
)

// AttachResult stores the classification outcome of a job, replacing any
// earlier result for the same job.
func (s *Store) AttachResult(ctx context.Context, result Result) error {
	if _, err := s.Get(ctx, result.JobID); err != nil {
		return err
	}
	payload, err := json.Marshal(result.Classes)
	if err != nil {
		return fmt.Errorf("marshal classes: %w", err)
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO job_results (job_id, part_id, model_version, classes_json, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(job_id) DO UPDATE SET
             part_id = excluded.part_id,
             model_version = excluded.model_version,
             classes_json = excluded.classes_json,
             created_at = excluded.created_at`,
		result.JobID,
		result.PartID,
		result.ModelVersion,
		string(payload),
		formatTime(result.CreatedAt),
	)
	if err != nil {
		return storeError("attach result", err)
	}
	return nil
}

// Result returns the classification outcome attached to a job.
func (s *Store) Result(ctx context.Context, jobID int64) (*Result, error) {
	var (
		result     Result
		payload    string
		createdRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, part_id, model_version, classes_json, created_at FROM job_results WHERE job_id = ?`,
		jobID,
	).Scan(&result.JobID, &result.PartID, &result.ModelVersion, &payload, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "result", fmt.Sprintf("job %d has no result", jobID), nil)
	}
	if err != nil {
		return nil, storeError("result", err)
	}
	if err := json.Unmarshal([]byte(payload), &result.Classes); err != nil {
		return nil, fmt.Errorf("decode classes for job %d: %w", jobID, err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		result.CreatedAt = created
	}
	return &result, nil
}
