package delivery

import (
	"io"
	"sync/atomic"

	"github.com/cuongbtq/media-relay/internal/progress"
)

// progressReader publishes (read so far, total) to a sink on every Read.
// The upload goroutine may still be reading after the request returns.
type progressReader struct {
	r     io.Reader
	sink  progress.Sink
	total int64
	read  atomic.Int64
}

func newProgressReader(r io.Reader, total int64, sink progress.Sink) *progressReader {
	return &progressReader{r: r, sink: sink, total: total}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		done := p.read.Add(int64(n))
		if p.sink != nil {
			p.sink.Publish(progress.Event{
				Phase: progress.PhaseDownloading,
				Done:  done,
				Total: p.total,
			})
		}
	}
	return n, err
}

// Bytes returns the number of bytes consumed so far
func (p *progressReader) Bytes() int64 {
	return p.read.Load()
}
