package transform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandRunner executes an external tool and returns its combined output
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// AudioRequest describes one audio transcode
type AudioRequest struct {
	Input   string
	Cover   string // optional image embedded as front cover
	Output  string
	Codec   string
	Bitrate string
	Title   string
	Artist  string
}

// FFmpeg drives the ffmpeg and ffprobe binaries
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	runner      CommandRunner
}

// NewFFmpeg creates a toolchain using the given binaries
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      execRunner{},
	}
}

// ExtractAudio transcodes req.Input into req.Output with ID3 tags and an optional cover
func (f *FFmpeg) ExtractAudio(ctx context.Context, req AudioRequest) error {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", req.Input}
	if req.Cover != "" {
		args = append(args, "-i", req.Cover, "-map", "0:a", "-map", "1:0", "-disposition:v", "attached_pic")
	} else {
		args = append(args, "-vn")
	}

	args = append(args,
		"-c:a", req.Codec,
		"-b:a", req.Bitrate,
		"-id3v2_version", "3",
	)
	if req.Title != "" {
		args = append(args, "-metadata", "title="+req.Title)
	}
	if req.Artist != "" {
		args = append(args, "-metadata", "artist="+req.Artist)
	}
	args = append(args, req.Output)

	return f.run(ctx, f.ffmpegPath, args...)
}

// ScaleImage fits src into a box×box square preserving aspect ratio and writes a JPEG to dst
func (f *FFmpeg) ScaleImage(ctx context.Context, src, dst string, box int) error {
	return f.run(ctx, f.ffmpegPath,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", box, box),
		"-q:v", "2",
		dst,
	)
}

// Snapshot writes the frame at the midpoint of src to dst
func (f *FFmpeg) Snapshot(ctx context.Context, src, dst string) error {
	duration, err := f.Duration(ctx, src)
	if err != nil {
		return err
	}

	return f.run(ctx, f.ffmpegPath,
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.FormatFloat((duration/2).Seconds(), 'f', 3, 64),
		"-i", src,
		"-frames:v", "1",
		"-q:v", "2",
		dst,
	)
}

// Duration reads the container duration with ffprobe
func (f *FFmpeg) Duration(ctx context.Context, src string) (time.Duration, error) {
	out, err := f.runner.Run(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w\nOutput: %s", err, strings.TrimSpace(string(out)))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || seconds <= 0 {
		return 0, errors.New("ffprobe reported no duration")
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

func (f *FFmpeg) run(ctx context.Context, name string, args ...string) error {
	out, err := f.runner.Run(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("%s failed: %w\nOutput: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
