package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/media-relay/internal/domain"
	"github.com/cuongbtq/media-relay/internal/pipeline"
)

// settlement is how a delivery is acknowledged
type settlement int

const (
	settleAck settlement = iota
	settleReject
	settleRequeue
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleReject:
		return "reject"
	default:
		return "requeue"
	}
}

// handleDelivery processes one delivery and settles it exactly once
func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery, workerName string) {
	decision, jobID := w.processDelivery(ctx, delivery)

	var err error
	switch decision {
	case settleAck:
		err = delivery.Ack(false)
	case settleReject:
		err = delivery.Nack(false, false)
	case settleRequeue:
		err = delivery.Nack(false, true)
	}

	if err != nil {
		w.logger.Error("Failed to settle message",
			slog.String("worker_name", workerName),
			slog.String("job_id", jobID),
			slog.String("settlement", decision.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Info("Message settled",
		slog.String("worker_name", workerName),
		slog.String("job_id", jobID),
		slog.String("settlement", decision.String()),
	)
}

// processDelivery validates, claims and runs the job carried by delivery
func (w *Worker) processDelivery(ctx context.Context, delivery amqp.Delivery) (settlement, string) {
	var msg domain.JobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		w.logger.Error("Failed to parse message JSON",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		// malformed messages go to the DLQ
		return settleReject, ""
	}

	if _, err := uuid.Parse(msg.JobID); err != nil {
		w.logger.Error("Invalid job_id format - not a UUID",
			slog.String("job_id", msg.JobID),
			slog.String("error", fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err).Error()),
		)
		return settleReject, msg.JobID
	}

	job, err := w.store.ClaimJob(ctx, msg.JobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobFinished):
			// redelivered after a terminal action but before the ack
			return settleAck, msg.JobID
		case errors.Is(err, domain.ErrJobNotFound):
			w.logger.Error("Job not found in database",
				slog.String("job_id", msg.JobID),
			)
			return settleReject, msg.JobID
		default:
			w.logger.Error("Failed to claim job",
				slog.String("job_id", msg.JobID),
				slog.String("error", err.Error()),
			)
			return settleRequeue, msg.JobID
		}
	}

	switch w.runJob(ctx, job) {
	case pipeline.OutcomeInterrupted:
		return settleRequeue, job.ID
	case pipeline.OutcomeDuplicate:
		// another runner owns the job; this delivery never started an attempt
		if err := w.store.ReleaseClaim(context.WithoutCancel(ctx), job.ID, job.Attempt); err != nil {
			w.logger.Warn("Failed to release job claim",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return settleAck, job.ID
}

// runJob runs the pipeline, containing panics as a failed outcome
func (w *Worker) runJob(ctx context.Context, job *domain.Job) (outcome pipeline.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("Job panicked, marking as failed",
				slog.String("job_id", job.ID),
				slog.Any("panic", p),
			)
			msg := fmt.Sprintf("internal error: %v", p)
			if err := w.store.UpdateStage(context.WithoutCancel(ctx), job.ID, domain.StageFailed, msg); err != nil {
				w.logger.Error("Failed to update job stage to FAILED",
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()),
				)
			}
			outcome = pipeline.OutcomeFailed
		}
	}()

	outcome, err := w.runner.Run(ctx, job)

	attrs := []any{
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
		slog.String("outcome", outcome.String()),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	w.logger.Info("Job finished", attrs...)

	return outcome
}
