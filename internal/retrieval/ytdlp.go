package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

const defaultProgressFrequency = 500 * time.Millisecond

// YTDLP runs extractions through the yt-dlp binary
type YTDLP struct {
	progressFrequency time.Duration
}

// NewYTDLP creates a yt-dlp backed extractor
func NewYTDLP() *YTDLP {
	return &YTDLP{progressFrequency: defaultProgressFrequency}
}

// Extract implements Extractor
func (y *YTDLP) Extract(ctx context.Context, req Request) (*Metadata, error) {
	dl := ytdlp.New().
		Format(req.Format).
		Output(req.OutputTemplate).
		NoCacheDir().
		NoCheckCertificates().
		NoPlaylist().
		PrintJSON()

	if req.WriteThumbnail {
		dl.WriteThumbnail()
	}
	if req.CookieFile != "" {
		dl.Cookies(req.CookieFile)
	}
	if args := extractorArgs(req.PlayerClients, req.PlayerSkip); args != "" {
		dl.ExtractorArgs(args)
	}

	if req.Progress != nil {
		dl.ProgressFunc(y.progressFrequency, func(update ytdlp.ProgressUpdate) {
			req.Progress(toUpdate(update))
		})
	}

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New(extractorMessage(err))
	}

	meta := &Metadata{}
	info, err := result.GetExtractedInfo()
	if err != nil || len(info) == 0 {
		// metadata is optional, the media file is what matters
		return meta, nil
	}

	first := info[0]
	if first.Title != nil {
		meta.Title = *first.Title
	}
	if first.Uploader != nil {
		meta.Uploader = *first.Uploader
	}
	if first.Duration != nil {
		meta.Duration = time.Duration(*first.Duration * float64(time.Second))
	}

	return meta, nil
}

func toUpdate(update ytdlp.ProgressUpdate) Update {
	u := Update{
		Status:          string(update.Status),
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
	}

	if !update.Started.IsZero() {
		if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
			u.Speed = float64(update.DownloadedBytes) / elapsed
		}
	}

	return u
}

// extractorArgs renders the youtube client-profile restriction
func extractorArgs(clients, skip []string) string {
	var parts []string
	if len(clients) > 0 {
		parts = append(parts, "player_client="+strings.Join(clients, ","))
	}
	if len(skip) > 0 {
		parts = append(parts, "player_skip="+strings.Join(skip, ","))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("youtube:%s", strings.Join(parts, ";"))
}

// extractorMessage keeps the last "ERROR:" line yt-dlp printed, or the whole error
func extractorMessage(err error) string {
	msg := strings.TrimSpace(err.Error())

	lines := strings.Split(msg, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
	}

	return msg
}
