package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Thumbnail backends selectable from config
const (
	BackendFFmpeg  = "ffmpeg"
	BackendImaging = "imaging"
)

// ThumbnailScaler fits an image into a square box, writing a JPEG
type ThumbnailScaler interface {
	Scale(ctx context.Context, src, dst string, box int) error
}

// FFmpegScaler scales through the ffmpeg binary
type FFmpegScaler struct {
	ffmpeg *FFmpeg
}

// NewFFmpegScaler creates a scaler backed by ffmpeg
func NewFFmpegScaler(ffmpeg *FFmpeg) *FFmpegScaler {
	return &FFmpegScaler{ffmpeg: ffmpeg}
}

// Scale implements ThumbnailScaler
func (s *FFmpegScaler) Scale(ctx context.Context, src, dst string, box int) error {
	return s.ffmpeg.ScaleImage(ctx, src, dst, box)
}

// ImagingScaler scales in-process. It never upscales.
type ImagingScaler struct{}

// Scale implements ThumbnailScaler
func (ImagingScaler) Scale(_ context.Context, src, dst string, box int) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	thumb := imaging.Fit(img, box, box, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	if err := imaging.Save(thumb, dst, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	return nil
}

// NewScaler returns the scaler for backend, defaulting to ffmpeg
func NewScaler(backend string, ffmpeg *FFmpeg) ThumbnailScaler {
	if backend == BackendImaging {
		return ImagingScaler{}
	}
	return NewFFmpegScaler(ffmpeg)
}
