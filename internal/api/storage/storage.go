package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/media-relay/internal/api/model"
	"github.com/cuongbtq/media-relay/internal/domain"
)

const jobColumns = `
	job_id, source_url, chat_id, status_message_id, requester_name, kind,
	stage, attempts, cancel_requested, error_message, created_at, updated_at, completed_at
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
	}
}

func (s *Storage) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, source_url, chat_id, status_message_id,
			requester_name, kind, stage, created_at, updated_at
		) VALUES (
			:job_id, :source_url, :chat_id, :status_message_id,
			:requester_name, :kind, :stage, :created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	ChatID   int64
	Kind     string
	Stage    string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.ChatID != 0 {
		query += fmt.Sprintf(" AND chat_id = $%d", argIdx)
		args = append(args, filter.ChatID)
		argIdx++
	}

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}

	if filter.Stage != "" {
		query += fmt.Sprintf(" AND stage = $%d", argIdx)
		args = append(args, filter.Stage)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// RequestCancel flags a non-terminal job for cancellation. The worker checks
// the flag before each stage.
func (s *Storage) RequestCancel(ctx context.Context, jobID string) (*model.Job, error) {
	query := `
		UPDATE jobs
		SET cancel_requested = TRUE,
		    updated_at = NOW()
		WHERE job_id = $1
		  AND stage NOT IN ($2, $3)
		RETURNING ` + jobColumns

	var job model.Job
	err := s.db.GetContext(ctx, &job, query, jobID, domain.StageDone, domain.StageFailed)
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}

	if _, err := s.GetJobByID(ctx, jobID); err != nil {
		return nil, err
	}
	return nil, domain.ErrJobFinished
}

// DeleteJob removes a job that reached DONE or FAILED
func (s *Storage) DeleteJob(ctx context.Context, jobID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE job_id = $1 AND stage IN ($2, $3)`,
		jobID, domain.StageDone, domain.StageFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := s.GetJobByID(ctx, jobID); err != nil {
		return err
	}
	return domain.ErrJobActive
}

// FailJob marks a job FAILED; used when the enqueue publish cannot be completed
func (s *Storage) FailJob(ctx context.Context, jobID, errorMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET stage = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
	`, domain.StageFailed, errorMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}
