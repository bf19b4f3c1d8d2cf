package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/media-relay/internal/api/dto"
	"github.com/cuongbtq/media-relay/internal/api/model"
	"github.com/cuongbtq/media-relay/internal/api/storage"
	"github.com/cuongbtq/media-relay/internal/domain"
)

const testJobID = "9b2d3c1e-4f5a-4b6c-8d7e-0f1a2b3c4d5e"

type fakeStorage struct {
	mu        sync.Mutex
	created   []model.Job
	failed    map[string]string
	jobs      []model.Job
	lastQuery storage.JobFilter
	err       error
}

func (s *fakeStorage) CreateJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, *job)
	return nil
}

func (s *fakeStorage) GetJobByID(_ context.Context, jobID string) (*model.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.Job{JobID: jobID, Kind: "audio", Stage: "RETRIEVING", Attempts: 1}, nil
}

func (s *fakeStorage) ListJobs(_ context.Context, filter storage.JobFilter) ([]model.Job, error) {
	s.lastQuery = filter
	if s.err != nil {
		return nil, s.err
	}
	if len(s.jobs) > filter.PageSize+1 {
		return s.jobs[:filter.PageSize+1], nil
	}
	return s.jobs, nil
}

func (s *fakeStorage) RequestCancel(_ context.Context, jobID string) (*model.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.Job{JobID: jobID, Stage: "QUEUED", CancelRequested: true}, nil
}

func (s *fakeStorage) DeleteJob(_ context.Context, _ string) error {
	return s.err
}

func (s *fakeStorage) FailJob(_ context.Context, jobID, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[string]string{}
	}
	s.failed[jobID] = errorMsg
	return nil
}

type fakePublisher struct {
	bodies     [][]byte
	messageIDs []string
	err        error
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, body []byte, _ string, messageID string) error {
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	p.messageIDs = append(p.messageIDs, messageID)
	return nil
}

func newTestEngine(store *fakeStorage, pub *fakePublisher) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewJobHandler(&Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Storage:   store,
		Publisher: pub,
	})

	r := gin.New()
	r.POST("/jobs", h.CreateJob)
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:job_id", h.GetJob)
	r.POST("/jobs/:job_id/cancel", h.CancelJob)
	r.DELETE("/jobs/:job_id", h.DeleteJob)
	return r
}

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateJob(t *testing.T) {
	valid := map[string]any{
		"source_url":        "https://www.youtube.com/watch?v=abc",
		"chat_id":           42,
		"status_message_id": 7,
		"requester_name":    "alice",
	}

	tests := []struct {
		name       string
		body       map[string]any
		storeErr   error
		publishErr error
		wantStatus int
		wantKind   domain.Kind
		wantFailed bool
	}{
		{name: "audio by default", body: valid, wantStatus: http.StatusAccepted, wantKind: domain.KindAudio},
		{
			name: "video job",
			body: map[string]any{
				"source_url": "https://x.test/v", "chat_id": 42, "status_message_id": 7, "kind": "video",
			},
			wantStatus: http.StatusAccepted,
			wantKind:   domain.KindVideo,
		},
		{
			name:       "missing source url",
			body:       map[string]any{"chat_id": 42, "status_message_id": 7},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not a url",
			body:       map[string]any{"source_url": "not a url", "chat_id": 42, "status_message_id": 7},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown kind",
			body: map[string]any{
				"source_url": "https://x.test/v", "chat_id": 42, "status_message_id": 7, "kind": "gif",
			},
			wantStatus: http.StatusBadRequest,
		},
		{name: "insert fails", body: valid, storeErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
		{
			name:       "publish fails marks the row failed",
			body:       valid,
			publishErr: errors.New("channel closed"),
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStorage{err: tt.storeErr}
			pub := &fakePublisher{err: tt.publishErr}

			w := doRequest(newTestEngine(store, pub), http.MethodPost, "/jobs", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantFailed {
				require.Len(t, store.created, 1)
				assert.Contains(t, store.failed[store.created[0].JobID], "channel closed")
				return
			}
			if tt.wantStatus != http.StatusAccepted {
				assert.Empty(t, pub.bodies)
				return
			}

			var resp dto.CreateJobResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "QUEUED", resp.Stage)

			require.Len(t, store.created, 1)
			assert.Equal(t, resp.JobID, store.created[0].JobID)
			assert.Equal(t, string(tt.wantKind), store.created[0].Kind)

			require.Len(t, pub.bodies, 1)
			assert.Equal(t, []string{resp.JobID}, pub.messageIDs)

			var msg domain.JobMessage
			require.NoError(t, json.Unmarshal(pub.bodies[0], &msg))
			assert.Equal(t, resp.JobID, msg.JobID)
			assert.Equal(t, int64(42), msg.ChatID)
			assert.Equal(t, 7, msg.StatusMessageID)
			assert.Equal(t, tt.wantKind, msg.Kind)
		})
	}
}

func TestJobByID_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		err        error
		wantStatus int
	}{
		{name: "get ok", method: http.MethodGet, path: "/jobs/" + testJobID, wantStatus: http.StatusOK},
		{name: "get bad id", method: http.MethodGet, path: "/jobs/nope", wantStatus: http.StatusBadRequest},
		{name: "get missing", method: http.MethodGet, path: "/jobs/" + testJobID, err: domain.ErrJobNotFound, wantStatus: http.StatusNotFound},
		{name: "get db error", method: http.MethodGet, path: "/jobs/" + testJobID, err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
		{name: "cancel ok", method: http.MethodPost, path: "/jobs/" + testJobID + "/cancel", wantStatus: http.StatusAccepted},
		{name: "cancel finished", method: http.MethodPost, path: "/jobs/" + testJobID + "/cancel", err: domain.ErrJobFinished, wantStatus: http.StatusConflict},
		{name: "delete ok", method: http.MethodDelete, path: "/jobs/" + testJobID, wantStatus: http.StatusNoContent},
		{name: "delete active", method: http.MethodDelete, path: "/jobs/" + testJobID, err: domain.ErrJobActive, wantStatus: http.StatusConflict},
		{name: "delete missing", method: http.MethodDelete, path: "/jobs/" + testJobID, err: domain.ErrJobNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStorage{err: tt.err}
			w := doRequest(newTestEngine(store, &fakePublisher{}), tt.method, tt.path, nil)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestListJobs_Pagination(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStorage{}
	for i := 0; i < 3; i++ {
		store.jobs = append(store.jobs, model.Job{
			JobID:     testJobID,
			Kind:      "audio",
			Stage:     "DONE",
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		})
	}
	r := newTestEngine(store, &fakePublisher{})

	w := doRequest(r, http.MethodGet, "/jobs?page_size=2&chat_id=42&stage=DONE", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 2)
	require.NotEmpty(t, resp.NextCursor)
	assert.Equal(t, int64(42), store.lastQuery.ChatID)
	assert.Equal(t, "DONE", store.lastQuery.Stage)

	cursor, err := DecodeJobCursor(resp.NextCursor)
	require.NoError(t, err)
	assert.True(t, base.Add(-time.Minute).Equal(cursor.CreatedAt))

	w = doRequest(r, http.MethodGet, "/jobs?cursor="+resp.NextCursor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, store.lastQuery.Cursor)
	assert.Equal(t, defaultPageSize, store.lastQuery.PageSize)

	w = doRequest(r, http.MethodGet, "/jobs?page_size=1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxPageSize, store.lastQuery.PageSize)

	w = doRequest(r, http.MethodGet, "/jobs?cursor=!!", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecodeJobCursor(t *testing.T) {
	c, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)

	raw := func(payload string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(payload))
	}

	for _, bad := range []string{"!!", raw("abc|" + testJobID), raw("123"), raw("123|nope")} {
		_, err := DecodeJobCursor(bad)
		assert.ErrorIs(t, err, errInvalidCursor, bad)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)
	c, err = DecodeJobCursor(EncodeJobCursor(&storage.JobCursor{CreatedAt: created, JobID: testJobID}))
	require.NoError(t, err)
	assert.True(t, created.Equal(c.CreatedAt))
	assert.Equal(t, testJobID, c.JobID)
}
