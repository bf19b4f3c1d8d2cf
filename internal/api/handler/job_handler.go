package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/media-relay/internal/api/dto"
	"github.com/cuongbtq/media-relay/internal/api/model"
	"github.com/cuongbtq/media-relay/internal/api/storage"
	"github.com/cuongbtq/media-relay/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateJob handles POST /api/v1/jobs
// Records a QUEUED job and publishes it to the work queue
func (h *JobHandler) CreateJob(c *gin.Context) {
	h.logger.Info("CreateJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	kind := domain.Kind(req.Kind)
	if kind == "" {
		kind = domain.KindAudio
	}

	now := time.Now().UTC()
	job := model.Job{
		JobID:           uuid.New().String(),
		SourceURL:       req.SourceURL,
		ChatID:          req.ChatID,
		StatusMessageID: req.StatusMessageID,
		RequesterName:   req.RequesterName,
		Kind:            string(kind),
		Stage:           string(domain.StageQueued),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	ctx := c.Request.Context()
	if err := h.storage.CreateJob(ctx, &job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	body, err := json.Marshal(domain.JobMessage{
		JobID:           job.JobID,
		SourceURL:       job.SourceURL,
		ChatID:          job.ChatID,
		StatusMessageID: job.StatusMessageID,
		RequesterName:   job.RequesterName,
		Kind:            kind,
	})
	if err == nil {
		err = h.publisher.PublishWithRetry(ctx, body, "application/json", job.JobID)
	}
	if err != nil {
		h.logger.Error("Failed to publish job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		// the row must not stay QUEUED without a message behind it
		if failErr := h.storage.FailJob(context.WithoutCancel(ctx), job.JobID, "enqueue failed: "+err.Error()); failErr != nil {
			h.logger.Error("Failed to mark unpublished job as failed",
				slog.String("job_id", job.JobID),
				slog.String("error", failErr.Error()),
			)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	h.logger.Info("Job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("kind", job.Kind),
		slog.Int64("chat_id", job.ChatID),
	)

	c.JSON(http.StatusAccepted, dto.CreateJobResponse{
		JobID: job.JobID,
		Stage: job.Stage,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.storage.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		h.writeStorageError(c, "Failed to get job", jobID, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	h.logger.Info("ListJobs called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
	)

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		ChatID:   req.ChatID,
		Kind:     req.Kind,
		Stage:    req.Stage,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = dto.NewJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// The worker stops the job before its next stage
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.storage.RequestCancel(c.Request.Context(), jobID)
	if err != nil {
		h.writeStorageError(c, "Failed to cancel job", jobID, err)
		return
	}

	h.logger.Info("Job cancellation requested",
		slog.String("job_id", jobID),
		slog.String("stage", job.Stage),
	)

	c.JSON(http.StatusAccepted, dto.NewJobDTO(job))
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id
// Only DONE and FAILED jobs can be deleted
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	if err := h.storage.DeleteJob(c.Request.Context(), jobID); err != nil {
		h.writeStorageError(c, "Failed to delete job", jobID, err)
		return
	}

	h.logger.Info("Job deleted", slog.String("job_id", jobID))
	c.Status(http.StatusNoContent)
}

func (h *JobHandler) jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")

	h.logger.Info("Job request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}

	return jobID, true
}

func (h *JobHandler) writeStorageError(c *gin.Context, message, jobID string, err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, domain.ErrJobFinished):
		c.JSON(http.StatusConflict, gin.H{"error": "Job already finished"})
	case errors.Is(err, domain.ErrJobActive):
		c.JSON(http.StatusConflict, gin.H{"error": "Job is still active"})
	default:
		h.logger.Error(message,
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
