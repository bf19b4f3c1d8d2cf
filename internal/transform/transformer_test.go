package transform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/media-relay/internal/domain"
)

type fakeToolchain struct {
	audioErr    error
	writeOutput bool
	snapErr     error

	audioReq AudioRequest
	snapped  bool
}

func (f *fakeToolchain) ExtractAudio(_ context.Context, req AudioRequest) error {
	f.audioReq = req
	if f.audioErr != nil {
		return f.audioErr
	}
	if f.writeOutput {
		return os.WriteFile(req.Output, []byte("mp3"), 0o644)
	}
	return nil
}

func (f *fakeToolchain) Snapshot(_ context.Context, _, dst string) error {
	f.snapped = true
	if f.snapErr != nil {
		return f.snapErr
	}
	return os.WriteFile(dst, []byte("jpg"), 0o644)
}

type fakeScaler struct {
	err error
}

func (f fakeScaler) Scale(_ context.Context, _, dst string, _ int) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dst, []byte("cover"), 0o644)
}

func testConfig() Config {
	return Config{Codec: "libmp3lame", Bitrate: "192k", Extension: "mp3", ThumbnailBox: 320, FilenameMaxLength: 60}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	return path
}

func TestTransformer_Audio(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "job-a1")
	media := &domain.Media{
		Path:      writeFile(t, prefix+".webm"),
		Thumbnail: writeFile(t, prefix+".webp"),
		Title:     "Café: Song",
		Uploader:  "Band",
		Duration:  3 * time.Minute,
	}
	tool := &fakeToolchain{writeOutput: true}
	tr := NewTransformer(tool, fakeScaler{}, testConfig(), testLogger())

	artifact, err := tr.Transform(context.Background(), &domain.Job{ID: "job", Kind: domain.KindAudio}, prefix, media)
	require.NoError(t, err)

	assert.Equal(t, prefix+".mp3", artifact.Path)
	assert.Equal(t, "Cafe Song.mp3", artifact.FileName)
	assert.Equal(t, prefix+"_cover.jpg", artifact.Thumbnail)
	assert.Equal(t, prefix+"_cover.jpg", tool.audioReq.Cover)
	assert.Equal(t, "Band", artifact.Performer)
	assert.Equal(t, 3*time.Minute, artifact.Duration)
}

func TestTransformer_ScalerFailureKeepsRawThumbnail(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "job-a1")
	media := &domain.Media{
		Path:      writeFile(t, prefix+".m4a"),
		Thumbnail: writeFile(t, prefix+".jpg"),
	}
	tool := &fakeToolchain{writeOutput: true}
	tr := NewTransformer(tool, fakeScaler{err: errors.New("ffmpeg failed: exit status 1")}, testConfig(), testLogger())

	artifact, err := tr.Transform(context.Background(), &domain.Job{ID: "job", Kind: domain.KindAudio}, prefix, media)
	require.NoError(t, err)

	assert.Equal(t, media.Thumbnail, artifact.Thumbnail)
	assert.Equal(t, media.Thumbnail, tool.audioReq.Cover)
	assert.Equal(t, "audio.mp3", artifact.FileName)
}

func TestTransformer_AudioFailures(t *testing.T) {
	tests := []struct {
		name string
		tool *fakeToolchain
	}{
		{name: "transcoder error", tool: &fakeToolchain{audioErr: errors.New("ffmpeg failed")}},
		{name: "missing output", tool: &fakeToolchain{writeOutput: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix := filepath.Join(t.TempDir(), "job-a1")
			media := &domain.Media{Path: writeFile(t, prefix+".webm")}
			tr := NewTransformer(tt.tool, fakeScaler{}, testConfig(), testLogger())

			artifact, err := tr.Transform(context.Background(), &domain.Job{ID: "job", Kind: domain.KindAudio}, prefix, media)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrTransformFailed)
			assert.Nil(t, artifact)
		})
	}
}

func TestTransformer_SourceAlreadyTargetExtension(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "job-a1")
	media := &domain.Media{Path: writeFile(t, prefix+".mp3")}
	tool := &fakeToolchain{writeOutput: true}
	tr := NewTransformer(tool, nil, testConfig(), testLogger())

	artifact, err := tr.Transform(context.Background(), &domain.Job{ID: "job", Kind: domain.KindAudio}, prefix, media)
	require.NoError(t, err)
	assert.Equal(t, prefix+"_audio.mp3", artifact.Path)
}

func TestTransformer_Video(t *testing.T) {
	t.Run("derives a thumbnail when missing", func(t *testing.T) {
		prefix := filepath.Join(t.TempDir(), "job-a1")
		media := &domain.Media{Path: writeFile(t, prefix+".mp4"), Title: "Clip"}
		tool := &fakeToolchain{}
		tr := NewTransformer(tool, fakeScaler{}, testConfig(), testLogger())

		artifact, err := tr.Transform(context.Background(), &domain.Job{ID: "job", Kind: domain.KindVideo}, prefix, media)
		require.NoError(t, err)

		assert.True(t, tool.snapped)
		assert.Equal(t, media.Path, artifact.Path)
		assert.Equal(t, "Clip.mp4", artifact.FileName)
		assert.Equal(t, prefix+"_snapshot_cover.jpg", artifact.Thumbnail)
	})

	t.Run("snapshot failure degrades", func(t *testing.T) {
		prefix := filepath.Join(t.TempDir(), "job-a1")
		media := &domain.Media{Path: writeFile(t, prefix+".mp4")}
		tr := NewTransformer(&fakeToolchain{snapErr: errors.New("no video stream")}, fakeScaler{}, testConfig(), testLogger())

		artifact, err := tr.Transform(context.Background(), &domain.Job{ID: "job", Kind: domain.KindVideo}, prefix, media)
		require.NoError(t, err)
		assert.Empty(t, artifact.Thumbnail)
		assert.Equal(t, "video.mp4", artifact.FileName)
	})
}
