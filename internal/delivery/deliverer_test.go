package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/media-relay/internal/domain"
	"github.com/cuongbtq/media-relay/internal/progress"
	"github.com/cuongbtq/media-relay/shared/telegram"
)

type fakeSender struct {
	err   error
	audio *telegram.AudioUpload
	video *telegram.VideoUpload
	body  string
}

func (f *fakeSender) SendAudio(_ context.Context, upload telegram.AudioUpload) error {
	data, _ := io.ReadAll(upload.File)
	f.body = string(data)
	f.audio = &upload
	return f.err
}

func (f *fakeSender) SendVideo(_ context.Context, upload telegram.VideoUpload) error {
	data, _ := io.ReadAll(upload.File)
	f.body = string(data)
	f.video = &upload
	return f.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []progress.Event
}

func (s *recordingSink) Publish(ev progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job-a1.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDeliverer_Audio(t *testing.T) {
	content := strings.Repeat("a", 100_000)
	sender := &fakeSender{}
	sink := &recordingSink{}
	d := NewDeliverer(sender, testLogger())

	artifact := &domain.Artifact{
		Path:      writeArtifact(t, content),
		FileName:  "Song.mp3",
		Title:     "Song",
		Performer: "Band",
		Duration:  time.Minute,
		Kind:      domain.KindAudio,
	}

	require.NoError(t, d.Deliver(context.Background(), &domain.Job{ID: "job", ChatID: 42}, artifact, sink))

	require.NotNil(t, sender.audio)
	assert.Equal(t, content, sender.body)
	assert.Equal(t, int64(42), sender.audio.ChatID)
	assert.Equal(t, "💿 Song", sender.audio.Caption)
	assert.Equal(t, "Band", sender.audio.Performer)

	require.NotEmpty(t, sink.events)
	var last int64
	for _, ev := range sink.events {
		assert.GreaterOrEqual(t, ev.Done, last)
		assert.Equal(t, int64(len(content)), ev.Total)
		last = ev.Done
	}
	assert.Equal(t, int64(len(content)), last)
}

func TestDeliverer_Video(t *testing.T) {
	sender := &fakeSender{}
	d := NewDeliverer(sender, testLogger())

	artifact := &domain.Artifact{Path: writeArtifact(t, "mp4"), FileName: "clip.mp4", Title: "Clip", Kind: domain.KindVideo}
	require.NoError(t, d.Deliver(context.Background(), &domain.Job{ID: "job", ChatID: 1}, artifact, nil))

	require.NotNil(t, sender.video)
	assert.True(t, sender.video.SupportsStreaming)
	assert.Equal(t, "Clip", sender.video.Caption)
}

func TestDeliverer_Failures(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		d := NewDeliverer(&fakeSender{err: errors.New("Request Entity Too Large")}, testLogger())
		artifact := &domain.Artifact{Path: writeArtifact(t, "x"), Kind: domain.KindAudio}

		err := d.Deliver(context.Background(), &domain.Job{ID: "job"}, artifact, nil)
		assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
		assert.Contains(t, err.Error(), "Too Large")
	})

	t.Run("missing artifact", func(t *testing.T) {
		d := NewDeliverer(&fakeSender{}, testLogger())
		artifact := &domain.Artifact{Path: filepath.Join(t.TempDir(), "nope.mp3")}

		err := d.Deliver(context.Background(), &domain.Job{ID: "job"}, artifact, nil)
		assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
	})
}

// earlyReplySender answers before the body is fully consumed, like a server
// rejecting an upload while the multipart writer is still streaming.
type earlyReplySender struct {
	done chan struct{}
}

func (s *earlyReplySender) drain(r io.Reader) {
	go func() {
		defer close(s.done)
		buf := make([]byte, 3)
		for {
			if _, err := r.Read(buf); err != nil {
				return
			}
		}
	}()
}

func (s *earlyReplySender) SendAudio(_ context.Context, upload telegram.AudioUpload) error {
	s.drain(upload.File)
	return nil
}

func (s *earlyReplySender) SendVideo(_ context.Context, upload telegram.VideoUpload) error {
	s.drain(upload.File)
	return nil
}

func TestDeliverer_ReplyBeforeBodyConsumed(t *testing.T) {
	sender := &earlyReplySender{done: make(chan struct{})}
	sink := &recordingSink{}
	d := NewDeliverer(sender, testLogger())

	artifact := &domain.Artifact{Path: writeArtifact(t, strings.Repeat("x", 4096)), Kind: domain.KindAudio}
	require.NoError(t, d.Deliver(context.Background(), &domain.Job{ID: "job", ChatID: 1}, artifact, sink))

	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("upload reader never finished")
	}
}

func TestProgressReader_ConcurrentBytes(t *testing.T) {
	r := newProgressReader(strings.NewReader(strings.Repeat("y", 1000)), 1000, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(io.Discard, r)
	}()

	for i := 0; i < 100; i++ {
		assert.LessOrEqual(t, r.Bytes(), int64(1000))
	}
	wg.Wait()
	assert.Equal(t, int64(1000), r.Bytes())
}
