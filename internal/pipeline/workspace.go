package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/cuongbtq/media-relay/internal/domain"
)

// Workspace is the exclusively owned scratch area of one job attempt.
// Every file the attempt creates starts with Prefix.
type Workspace struct {
	Prefix string

	root     string
	jobID    string
	lockPath string
	lock     *flock.Flock
	logger   *slog.Logger
}

// AcquireWorkspace locks the job's workspace under root and sweeps residue
// left by earlier attempts. It returns ErrWorkspaceBusy when another runner
// holds the lock.
func AcquireWorkspace(root, jobID string, attempt int, logger *slog.Logger) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	lockPath := filepath.Join(root, jobID+".lock")
	lock := flock.New(lockPath)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !ok {
		return nil, domain.ErrWorkspaceBusy
	}

	ws := &Workspace{
		Prefix:   filepath.Join(root, fmt.Sprintf("%s-a%d", jobID, attempt)),
		root:     root,
		jobID:    jobID,
		lockPath: lockPath,
		lock:     lock,
		logger:   logger,
	}

	if removed := ws.removeMatching(filepath.Join(root, jobID+"-")); removed > 0 {
		logger.Warn("Swept residue from a previous attempt",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt),
			slog.Int("files", removed),
		)
	}

	return ws, nil
}

// Files lists the paths currently under the workspace prefix
func (w *Workspace) Files() []string {
	matches, _ := filepath.Glob(escapeGlob(w.Prefix) + "*")
	return matches
}

// Release removes every file under the prefix and drops the lock.
// Removal failures are logged, never returned.
func (w *Workspace) Release() {
	w.removeMatching(w.Prefix)

	if err := w.lock.Unlock(); err != nil {
		w.logger.Warn("Failed to unlock workspace",
			slog.String("job_id", w.jobID),
			slog.Any("error", err),
		)
	}
	if err := os.Remove(w.lockPath); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("Failed to remove workspace lock file",
			slog.String("job_id", w.jobID),
			slog.Any("error", err),
		)
	}
}

func (w *Workspace) removeMatching(prefix string) int {
	matches, err := filepath.Glob(escapeGlob(prefix) + "*")
	if err != nil {
		w.logger.Error("Failed to scan workspace",
			slog.String("job_id", w.jobID),
			slog.Any("error", fmt.Errorf("%w: %v", domain.ErrCleanupFailed, err)),
		)
		return 0
	}

	removed := 0
	for _, path := range matches {
		if path == w.lockPath {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			w.logger.Error("Failed to remove workspace file",
				slog.String("job_id", w.jobID),
				slog.String("path", path),
				slog.Any("error", fmt.Errorf("%w: %v", domain.ErrCleanupFailed, err)),
			)
			continue
		}
		removed++
	}
	return removed
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`).Replace(s)
}
