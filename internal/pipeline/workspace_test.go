package pipeline

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/media-relay/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestAcquireWorkspace(t *testing.T) {
	root := filepath.Join(t.TempDir(), "downloads")

	ws, err := AcquireWorkspace(root, "job-1", 1, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "job-1-a1"), ws.Prefix)
	assert.FileExists(t, filepath.Join(root, "job-1.lock"))

	touch(t, ws.Prefix+".webm")
	touch(t, ws.Prefix+".webp")
	touch(t, ws.Prefix+"_cover.jpg")
	touch(t, filepath.Join(root, "job-2-a1.webm"))
	assert.Len(t, ws.Files(), 3)

	ws.Release()

	assert.Empty(t, ws.Files())
	assert.NoFileExists(t, filepath.Join(root, "job-1.lock"))
	assert.FileExists(t, filepath.Join(root, "job-2-a1.webm"))
}

func TestAcquireWorkspace_SweepsPreviousAttempts(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "job-1-a1.webm.part"))
	touch(t, filepath.Join(root, "job-1-a1.mp3"))

	ws, err := AcquireWorkspace(root, "job-1", 2, discardLogger())
	require.NoError(t, err)
	defer ws.Release()

	matches, _ := filepath.Glob(filepath.Join(root, "job-1-*"))
	assert.Empty(t, matches)
	assert.Equal(t, filepath.Join(root, "job-1-a2"), ws.Prefix)
}

func TestAcquireWorkspace_Busy(t *testing.T) {
	root := t.TempDir()
	other := flock.New(filepath.Join(root, "job-1.lock"))
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer other.Unlock()

	_, err = AcquireWorkspace(root, "job-1", 1, discardLogger())
	assert.ErrorIs(t, err, domain.ErrWorkspaceBusy)
}
