package model

import (
	"database/sql"
	"time"
)

type Job struct {
	JobID           string         `db:"job_id"`
	SourceURL       string         `db:"source_url"`
	ChatID          int64          `db:"chat_id"`
	StatusMessageID int            `db:"status_message_id"`
	RequesterName   string         `db:"requester_name"`
	Kind            string         `db:"kind"`
	Stage           string         `db:"stage"`
	Attempts        int            `db:"attempts"`
	CancelRequested bool           `db:"cancel_requested"`
	ErrorMessage    sql.NullString `db:"error_message"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
}
