package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-relay/internal/domain"
	"github.com/cuongbtq/media-relay/internal/events"
)

// StageStore persists stage transitions
type StageStore interface {
	UpdateStage(ctx context.Context, jobID string, stage domain.Stage, errorMsg string) error
}

// StageRecorder persists every stage transition and publishes it as a lifecycle event.
// Failures are logged; they never stop the pipeline.
type StageRecorder struct {
	store     StageStore
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewStageRecorder creates a recorder; publisher may be events.Nop{}
func NewStageRecorder(store StageStore, publisher events.Publisher, logger *slog.Logger) *StageRecorder {
	return &StageRecorder{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// StageChanged implements pipeline.StageListener
func (r *StageRecorder) StageChanged(ctx context.Context, job *domain.Job, stage domain.Stage, cause error) {
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	if err := r.store.UpdateStage(ctx, job.ID, stage, errMsg); err != nil {
		r.logger.Warn("Failed to record job stage",
			slog.String("job_id", job.ID),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
	}

	event := domain.LifecycleEvent{
		JobID:      job.ID,
		Attempt:    job.Attempt,
		ChatID:     job.ChatID,
		Stage:      stage,
		Error:      errMsg,
		HappenedAt: r.now().Unix(),
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("Failed to publish lifecycle event",
			slog.String("job_id", job.ID),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
	}
}
