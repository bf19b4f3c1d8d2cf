package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/media-relay/internal/api/model"
	"github.com/cuongbtq/media-relay/internal/api/storage"
)

// JobStorage is the job record store used by the handlers
type JobStorage interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJobByID(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
	RequestCancel(ctx context.Context, jobID string) (*model.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, errorMsg string) error
}

// Publisher puts a job message on the work queue
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType, messageID string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Storage     JobStorage
	Publisher   Publisher
	HealthCheck func(ctx context.Context) error
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	storage   JobStorage
	publisher Publisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		storage:   deps.Storage,
		publisher: deps.Publisher,
	}
}
