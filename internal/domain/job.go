package domain

import "time"

// Job is one media retrieval-to-delivery unit of work
type Job struct {
	ID              string
	SourceURL       string
	ChatID          int64
	StatusMessageID int
	RequesterName   string
	Kind            Kind
	Attempt         int
	Stage           Stage
}

// JobMessage is the RabbitMQ message body published at enqueue time
type JobMessage struct {
	JobID           string `json:"job_id"`
	SourceURL       string `json:"source_url"`
	ChatID          int64  `json:"chat_id"`
	StatusMessageID int    `json:"status_message_id"`
	RequesterName   string `json:"requester_name"`
	Kind            Kind   `json:"kind"`
}

// ToJob converts the message into a queued job
func (m *JobMessage) ToJob() *Job {
	kind := m.Kind
	if kind == "" {
		kind = KindAudio
	}
	return &Job{
		ID:              m.JobID,
		SourceURL:       m.SourceURL,
		ChatID:          m.ChatID,
		StatusMessageID: m.StatusMessageID,
		RequesterName:   m.RequesterName,
		Kind:            kind,
		Stage:           StageQueued,
	}
}

// Media describes what the retrieval stage left in the workspace
type Media struct {
	Path      string
	Thumbnail string // empty when the extractor produced none
	Title     string
	Uploader  string
	Duration  time.Duration
}

// Artifact is the final deliverable produced by the transform stage
type Artifact struct {
	Path      string
	FileName  string
	Thumbnail string
	Title     string
	Performer string
	Duration  time.Duration
	Kind      Kind
}

// LifecycleEvent is published on every stage transition
type LifecycleEvent struct {
	JobID      string `json:"job_id"`
	Attempt    int    `json:"attempt"`
	ChatID     int64  `json:"chat_id"`
	Stage      Stage  `json:"stage"`
	Error      string `json:"error,omitempty"`
	HappenedAt int64  `json:"happened_at"`
}
