package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/media-relay/internal/domain"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

type jobRow struct {
	JobID           string `db:"job_id"`
	SourceURL       string `db:"source_url"`
	ChatID          int64  `db:"chat_id"`
	StatusMessageID int    `db:"status_message_id"`
	RequesterName   string `db:"requester_name"`
	Kind            string `db:"kind"`
	Stage           string `db:"stage"`
	Attempts        int    `db:"attempts"`
}

func (r *jobRow) toJob() *domain.Job {
	kind := domain.Kind(r.Kind)
	if !kind.Valid() {
		kind = domain.KindAudio
	}
	return &domain.Job{
		ID:              r.JobID,
		SourceURL:       r.SourceURL,
		ChatID:          r.ChatID,
		StatusMessageID: r.StatusMessageID,
		RequesterName:   r.RequesterName,
		Kind:            kind,
		Attempt:         r.Attempts,
		Stage:           domain.Stage(r.Stage),
	}
}

// ClaimJob starts a new attempt of a non-terminal job and returns it.
// It returns ErrJobNotFound for unknown ids and ErrJobFinished when the job
// already reached DONE or FAILED.
func (s *Storage) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET attempts = attempts + 1,
		    updated_at = NOW()
		WHERE job_id = $1
		  AND stage NOT IN ($2, $3)
		RETURNING job_id, source_url, chat_id, status_message_id, requester_name, kind, stage, attempts
	`

	var row jobRow
	err := s.db.GetContext(ctx, &row, query, jobID, domain.StageDone, domain.StageFailed)
	if err == nil {
		s.logger.Info("Job claimed",
			slog.String("job_id", jobID),
			slog.Int("attempt", row.Attempts),
		)
		return row.toJob(), nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	var stage string
	err = s.db.GetContext(ctx, &stage, `SELECT stage FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	s.logger.Warn("Job already finished, skipping redelivery",
		slog.String("job_id", jobID),
		slog.String("stage", stage),
	)
	return nil, domain.ErrJobFinished
}

// ReleaseClaim returns the attempt taken by ClaimJob when the job never ran,
// so the counter and the next workspace prefix stay in step. It is a no-op
// when another claim has already moved the counter past attempt.
func (s *Storage) ReleaseClaim(ctx context.Context, jobID string, attempt int) error {
	query := `
		UPDATE jobs
		SET attempts = attempts - 1,
		    updated_at = NOW()
		WHERE job_id = $1
		  AND attempts = $2
		  AND attempts > 0
	`

	res, err := s.db.ExecContext(ctx, query, jobID, attempt)
	if err != nil {
		return fmt.Errorf("failed to release job claim: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("Job claim released",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt),
		)
	}
	return nil
}

// UpdateStage records a stage transition; terminal stages set completed_at
func (s *Storage) UpdateStage(ctx context.Context, jobID string, stage domain.Stage, errorMsg string) error {
	query := `
		UPDATE jobs
		SET stage = $1::text,
		    error_message = NULLIF($2, ''),
		    completed_at = CASE
				WHEN $1::text IN ($3::text, $4::text) THEN NOW()
				ELSE NULL
			END,
		    updated_at = NOW()
		WHERE job_id = $5
	`

	_, err := s.db.ExecContext(ctx, query, stage, errorMsg, domain.StageDone, domain.StageFailed, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job stage: %w", err)
	}

	s.logger.Debug("Job stage updated",
		slog.String("job_id", jobID),
		slog.String("stage", string(stage)),
	)

	return nil
}

// IsCancelRequested reports whether the requester asked to stop the job
func (s *Storage) IsCancelRequested(ctx context.Context, jobID string) (bool, error) {
	var canceled bool
	err := s.db.GetContext(ctx, &canceled, `SELECT cancel_requested FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return canceled, nil
}
