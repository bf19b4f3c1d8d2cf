package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/media-relay/internal/domain"
)

// Toolchain is the external transcoder used by the stage
type Toolchain interface {
	ExtractAudio(ctx context.Context, req AudioRequest) error
	Snapshot(ctx context.Context, src, dst string) error
}

// Config holds the transcode target and thumbnail bounds
type Config struct {
	Codec             string
	Bitrate           string
	Extension         string
	ThumbnailBox      int
	FilenameMaxLength int
}

// Transformer runs the transform stage of a job
type Transformer struct {
	toolchain Toolchain
	scaler    ThumbnailScaler
	config    Config
	logger    *slog.Logger
}

// NewTransformer creates a transform stage
func NewTransformer(toolchain Toolchain, scaler ThumbnailScaler, config Config, logger *slog.Logger) *Transformer {
	return &Transformer{
		toolchain: toolchain,
		scaler:    scaler,
		config:    config,
		logger:    logger,
	}
}

// Transform turns retrieved media into the artifact to deliver. Audio
// faults are returned as TransformFailed; thumbnail faults only degrade.
func (t *Transformer) Transform(ctx context.Context, job *domain.Job, prefix string, media *domain.Media) (*domain.Artifact, error) {
	thumb := media.Thumbnail
	if thumb == "" && job.Kind == domain.KindVideo {
		thumb = t.snapshot(ctx, job, prefix, media.Path)
	}
	thumb = t.normalizeThumbnail(ctx, job, thumb)

	artifact := &domain.Artifact{
		Thumbnail: thumb,
		Title:     media.Title,
		Performer: media.Uploader,
		Duration:  media.Duration,
		Kind:      job.Kind,
	}

	policy := FilenamePolicy{MaxLength: t.config.FilenameMaxLength, Fallback: string(domain.KindAudio)}
	if job.Kind == domain.KindVideo {
		policy.Fallback = string(domain.KindVideo)
	}

	if job.Kind == domain.KindVideo {
		artifact.Path = media.Path
		artifact.FileName = policy.Apply(media.Title, strings.TrimPrefix(filepath.Ext(media.Path), "."))
		return artifact, nil
	}

	out := prefix + "." + t.config.Extension
	if out == media.Path {
		out = prefix + "_audio." + t.config.Extension
	}

	t.logger.Info("Transcoding audio",
		slog.String("job_id", job.ID),
		slog.String("codec", t.config.Codec),
		slog.String("bitrate", t.config.Bitrate),
	)

	err := t.toolchain.ExtractAudio(ctx, AudioRequest{
		Input:   media.Path,
		Cover:   thumb,
		Output:  out,
		Codec:   t.config.Codec,
		Bitrate: t.config.Bitrate,
		Title:   media.Title,
		Artist:  media.Uploader,
	})
	if err != nil {
		return nil, domain.TransformFailed(err)
	}

	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return nil, domain.TransformFailed(fmt.Errorf("transcoder produced no output at %s", filepath.Base(out)))
	}

	artifact.Path = out
	artifact.FileName = policy.Apply(media.Title, t.config.Extension)
	return artifact, nil
}

func (t *Transformer) snapshot(ctx context.Context, job *domain.Job, prefix, src string) string {
	dst := prefix + "_snapshot.jpg"
	if err := t.toolchain.Snapshot(ctx, src, dst); err != nil {
		t.logger.Warn("Failed to derive thumbnail, delivering without one",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return ""
	}
	if !fileExists(dst) {
		return ""
	}
	return dst
}

// normalizeThumbnail returns the scaled cover, or raw when scaling fails
func (t *Transformer) normalizeThumbnail(ctx context.Context, job *domain.Job, raw string) string {
	if raw == "" || t.scaler == nil {
		return raw
	}

	cover := strings.TrimSuffix(raw, filepath.Ext(raw)) + "_cover.jpg"
	err := t.scaler.Scale(ctx, raw, cover, t.config.ThumbnailBox)
	if err == nil && !fileExists(cover) {
		err = errors.New("scaler produced no output")
	}
	if err != nil {
		t.logger.Warn("Failed to normalize thumbnail, using raw thumbnail",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return raw
	}

	return cover
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
