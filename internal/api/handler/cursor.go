package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/media-relay/internal/api/storage"
)

var errInvalidCursor = errors.New("invalid cursor format")

// DecodeJobCursor parses an opaque page cursor; an empty string means the first page
func DecodeJobCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidCursor, err)
	}

	createdPart, jobID, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, errInvalidCursor
	}

	createdAt, err := strconv.ParseInt(createdPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", errInvalidCursor, err)
	}

	if _, err := uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("%w: job_id: %v", errInvalidCursor, err)
	}

	return &storage.JobCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		JobID:     jobID,
	}, nil
}

// EncodeJobCursor is the inverse of DecodeJobCursor
func EncodeJobCursor(cursor *storage.JobCursor) string {
	cs := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 10) + "|" + cursor.JobID
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
