package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuongbtq/media-relay/internal/domain"
	"github.com/cuongbtq/media-relay/internal/progress"
)

// Format selectors per media kind
const (
	AudioFormat = "bestaudio/best"
	VideoFormat = "best[ext=mp4]/best"
)

var thumbnailExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

var partialExts = map[string]bool{
	".part": true,
	".ytdl": true,
	".temp": true,
}

// Config holds the extractor options applied to every request
type Config struct {
	PlayerClients []string
	PlayerSkip    []string
}

// Retriever runs the retrieval stage of a job
type Retriever struct {
	extractor Extractor
	cookies   *CookiePool
	config    Config
	logger    *slog.Logger
}

// NewRetriever creates a retrieval stage
func NewRetriever(extractor Extractor, cookies *CookiePool, config Config, logger *slog.Logger) *Retriever {
	return &Retriever{
		extractor: extractor,
		cookies:   cookies,
		config:    config,
		logger:    logger,
	}
}

// Retrieve downloads job.SourceURL into files starting with prefix and reports
// progress to sink. Every fault is returned as a RetrievalFailed error.
func (r *Retriever) Retrieve(ctx context.Context, job *domain.Job, prefix string, sink progress.Sink) (*domain.Media, error) {
	cookieFile := ""
	if r.cookies != nil {
		cookieFile = r.cookies.Pick()
	}

	format := AudioFormat
	if job.Kind == domain.KindVideo {
		format = VideoFormat
	}

	r.logger.Info("Retrieving media",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.Bool("with_cookies", cookieFile != ""),
	)

	meta, err := r.extractor.Extract(ctx, Request{
		URL:            job.SourceURL,
		OutputTemplate: prefix + ".%(ext)s",
		Format:         format,
		CookieFile:     cookieFile,
		PlayerClients:  r.config.PlayerClients,
		PlayerSkip:     r.config.PlayerSkip,
		WriteThumbnail: true,
		Progress:       forward(sink),
	})
	if err != nil {
		if IsCredentialError(err) && r.cookies != nil {
			r.cookies.Quarantine(cookieFile)
		}
		return nil, domain.RetrievalFailed(err)
	}

	mediaPath, thumbPath, err := locate(prefix)
	if err != nil {
		return nil, domain.RetrievalFailed(err)
	}

	media := &domain.Media{
		Path:      mediaPath,
		Thumbnail: thumbPath,
	}
	if meta != nil {
		media.Title = meta.Title
		media.Uploader = meta.Uploader
		media.Duration = meta.Duration
	}

	r.logger.Info("Media retrieved",
		slog.String("job_id", job.ID),
		slog.String("file", filepath.Base(mediaPath)),
		slog.Bool("has_thumbnail", thumbPath != ""),
	)

	return media, nil
}

func forward(sink progress.Sink) func(Update) {
	if sink == nil {
		return nil
	}
	return func(u Update) {
		switch u.Status {
		case StatusDownloading:
			sink.Publish(progress.Event{
				Phase: progress.PhaseDownloading,
				Done:  u.DownloadedBytes,
				Total: u.TotalBytes,
				Speed: u.Speed,
			})
		case StatusFinished:
			sink.Publish(progress.Event{Phase: progress.PhaseFinished})
		}
	}
}

// locate finds the downloaded media file and optional thumbnail for prefix
func locate(prefix string) (string, string, error) {
	matches, err := filepath.Glob(globEscape(prefix) + ".*")
	if err != nil {
		return "", "", fmt.Errorf("failed to scan workspace: %w", err)
	}
	sort.Strings(matches)

	var media, thumb string
	var mediaSize int64 = -1
	for _, path := range matches {
		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case partialExts[ext]:
			continue
		case thumbnailExts[ext]:
			if thumb == "" {
				thumb = path
			}
		default:
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			if info.Size() > mediaSize {
				media, mediaSize = path, info.Size()
			}
		}
	}

	if media == "" {
		return "", "", errors.New("extractor produced no media file")
	}

	return media, thumb, nil
}

// globEscape quotes glob metacharacters in a literal path prefix
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
