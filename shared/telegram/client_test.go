package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(&Config{APIURL: server.URL, Token: "123:abc", Timeout: 5 * time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_EditMessageText(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	})

	require.NoError(t, client.EditMessageText(context.Background(), 42, 7, "⚙️ **Processing...**"))

	assert.Equal(t, "/bot123:abc/editMessageText", gotPath)
	assert.Equal(t, float64(42), gotBody["chat_id"])
	assert.Equal(t, float64(7), gotBody["message_id"])
	assert.Equal(t, "Markdown", gotBody["parse_mode"])
}

func TestClient_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message to delete not found"}`))
	})

	err := client.DeleteMessage(context.Background(), 42, 7)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "deleteMessage", apiErr.Method)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "message to delete not found")
}

func TestClient_SendAudio(t *testing.T) {
	thumb := filepath.Join(t.TempDir(), "cover.jpg")
	require.NoError(t, os.WriteFile(thumb, []byte("jpeg-bytes"), 0o644))

	fields := map[string]string{}
	files := map[string]string{}
	var fileName string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendAudio", r.URL.Path)

		reader, err := r.MultipartReader()
		require.NoError(t, err)
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, _ := io.ReadAll(part)
			if part.FileName() != "" {
				files[part.FormName()] = string(data)
				if part.FormName() == "audio" {
					fileName = part.FileName()
				}
				continue
			}
			fields[part.FormName()] = string(data)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := client.SendAudio(context.Background(), AudioUpload{
		ChatID:    42,
		File:      strings.NewReader("mp3-bytes"),
		FileName:  "Song.mp3",
		Thumbnail: thumb,
		Title:     "Song",
		Performer: "Band",
		Caption:   "💿 Song",
		Duration:  215 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, "42", fields["chat_id"])
	assert.Equal(t, "Song", fields["title"])
	assert.Equal(t, "Band", fields["performer"])
	assert.Equal(t, "215", fields["duration"])
	assert.Equal(t, "💿 Song", fields["caption"])
	assert.Equal(t, "mp3-bytes", files["audio"])
	assert.Equal(t, "jpeg-bytes", files["thumbnail"])
	assert.Equal(t, "Song.mp3", fileName)
}

func TestClient_SendVideo(t *testing.T) {
	var streaming string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		streaming = r.FormValue("supports_streaming")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := client.SendVideo(context.Background(), VideoUpload{
		ChatID:            42,
		File:              strings.NewReader("mp4-bytes"),
		FileName:          "clip.mp4",
		SupportsStreaming: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "true", streaming)
}

func TestClient_SendAudio_MissingThumbnail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := client.SendAudio(context.Background(), AudioUpload{
		ChatID:    42,
		File:      strings.NewReader("mp3"),
		FileName:  "a.mp3",
		Thumbnail: filepath.Join(t.TempDir(), "missing.jpg"),
	})
	require.Error(t, err)
}
