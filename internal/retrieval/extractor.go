package retrieval

import (
	"context"
	"time"
)

// Extractor status values forwarded through Update.Status
const (
	StatusDownloading = "downloading"
	StatusFinished    = "finished"
)

// Request describes one extraction into the job workspace
type Request struct {
	URL            string
	OutputTemplate string // e.g. "<prefix>.%(ext)s"
	Format         string
	CookieFile     string // empty for credential-less requests
	PlayerClients  []string
	PlayerSkip     []string
	WriteThumbnail bool
	Progress       func(Update)
}

// Update is one progress notification from the extractor
type Update struct {
	Status          string
	DownloadedBytes int64
	TotalBytes      int64
	Speed           float64 // bytes per second, 0 when unknown
}

// Metadata is what the extractor reports about the retrieved item
type Metadata struct {
	Title    string
	Uploader string
	Duration time.Duration
}

// Extractor downloads a URL into files matching the output template.
// Implementations return an error carrying the extractor's own message.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Metadata, error)
}
