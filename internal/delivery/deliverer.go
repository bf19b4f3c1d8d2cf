package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cuongbtq/media-relay/internal/domain"
	"github.com/cuongbtq/media-relay/internal/progress"
	"github.com/cuongbtq/media-relay/shared/telegram"
)

// Sender is the upload half of the messaging API
type Sender interface {
	SendAudio(ctx context.Context, upload telegram.AudioUpload) error
	SendVideo(ctx context.Context, upload telegram.VideoUpload) error
}

// Deliverer runs the delivery stage of a job
type Deliverer struct {
	sender Sender
	logger *slog.Logger
}

// NewDeliverer creates a delivery stage
func NewDeliverer(sender Sender, logger *slog.Logger) *Deliverer {
	return &Deliverer{sender: sender, logger: logger}
}

// Deliver uploads the artifact to the job's chat, publishing upload progress
// to sink. Any fault is returned as DeliveryFailed; nothing is retried here.
func (d *Deliverer) Deliver(ctx context.Context, job *domain.Job, artifact *domain.Artifact, sink progress.Sink) error {
	f, err := os.Open(artifact.Path)
	if err != nil {
		return domain.DeliveryFailed(fmt.Errorf("failed to open artifact: %w", err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.DeliveryFailed(fmt.Errorf("failed to stat artifact: %w", err))
	}

	body := newProgressReader(f, info.Size(), sink)

	d.logger.Info("Uploading artifact",
		slog.String("job_id", job.ID),
		slog.String("file_name", artifact.FileName),
		slog.Int64("size", info.Size()),
	)

	if artifact.Kind == domain.KindVideo {
		err = d.sender.SendVideo(ctx, telegram.VideoUpload{
			ChatID:            job.ChatID,
			File:              body,
			FileName:          artifact.FileName,
			Thumbnail:         artifact.Thumbnail,
			Caption:           artifact.Title,
			Duration:          artifact.Duration,
			SupportsStreaming: true,
		})
	} else {
		err = d.sender.SendAudio(ctx, telegram.AudioUpload{
			ChatID:    job.ChatID,
			File:      body,
			FileName:  artifact.FileName,
			Thumbnail: artifact.Thumbnail,
			Title:     artifact.Title,
			Performer: artifact.Performer,
			Caption:   audioCaption(artifact.Title),
			Duration:  artifact.Duration,
		})
	}
	if err != nil {
		return domain.DeliveryFailed(err)
	}

	d.logger.Info("Artifact delivered",
		slog.String("job_id", job.ID),
		slog.Int64("size", info.Size()),
	)

	return nil
}

func audioCaption(title string) string {
	if title == "" {
		return ""
	}
	return "💿 " + title
}
