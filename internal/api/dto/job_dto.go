package dto

import (
	"time"

	"github.com/cuongbtq/media-relay/internal/api/model"
)

type CreateJobRequest struct {
	SourceURL       string `json:"source_url" binding:"required,url"`
	ChatID          int64  `json:"chat_id" binding:"required"`
	StatusMessageID int    `json:"status_message_id" binding:"required"`
	RequesterName   string `json:"requester_name"`
	Kind            string `json:"kind" binding:"omitempty,oneof=audio video"`
}

type CreateJobResponse struct {
	JobID string `json:"job_id"`
	Stage string `json:"stage"`
}

type ListJobsRequest struct {
	ChatID   int64  `form:"chat_id"`
	Kind     string `form:"kind"`
	Stage    string `form:"stage"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID           string `json:"job_id"`
	SourceURL       string `json:"source_url"`
	ChatID          int64  `json:"chat_id"`
	StatusMessageID int    `json:"status_message_id"`
	RequesterName   string `json:"requester_name,omitempty"`
	Kind            string `json:"kind"`
	Stage           string `json:"stage"`
	Attempts        int    `json:"attempts"`
	CancelRequested bool   `json:"cancel_requested"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

// NewJobDTO converts a job row into its JSON representation
func NewJobDTO(job *model.Job) JobDTO {
	d := JobDTO{
		JobID:           job.JobID,
		SourceURL:       job.SourceURL,
		ChatID:          job.ChatID,
		StatusMessageID: job.StatusMessageID,
		RequesterName:   job.RequesterName,
		Kind:            job.Kind,
		Stage:           job.Stage,
		Attempts:        job.Attempts,
		CancelRequested: job.CancelRequested,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}
	if job.ErrorMessage.Valid {
		d.ErrorMessage = job.ErrorMessage.String
	}
	if job.CompletedAt.Valid {
		d.CompletedAt = job.CompletedAt.Time.Format(time.RFC3339)
	}
	return d
}
