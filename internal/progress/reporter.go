package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/media-relay/internal/domain"
)

// Messenger is the part of the messaging API the reporter edits through
type Messenger interface {
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Phase is the kind of progress sample a stage emits
type Phase int

const (
	PhaseDownloading Phase = iota
	PhaseFinished
)

// Event is one progress sample. Total is 0 when unknown.
type Event struct {
	Phase Phase
	Done  int64
	Total int64
	Speed float64 // bytes per second
}

// Sink receives progress events from a stage. Publish never blocks.
type Sink interface {
	Publish(ev Event)
}

// Option configures a Reporter
type Option func(*Reporter)

// WithClock replaces time.Now, used by tests
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// Reporter owns the status message of one job
type Reporter struct {
	messenger  Messenger
	chatID     int64
	messageID  int
	logger     *slog.Logger
	now        func() time.Time
	terminated atomic.Bool
}

// NewReporter creates a reporter editing messageID in chatID
func NewReporter(messenger Messenger, chatID int64, messageID int, logger *slog.Logger, opts ...Option) *Reporter {
	r := &Reporter{
		messenger: messenger,
		chatID:    chatID,
		messageID: messageID,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status shows a one-off status text, bypassing rate limiting
func (r *Reporter) Status(ctx context.Context, text string) {
	if r.terminated.Load() {
		return
	}
	r.edit(ctx, text)
}

// Complete deletes the placeholder. Only the first terminal call has an effect.
func (r *Reporter) Complete(ctx context.Context) bool {
	if !r.terminated.CompareAndSwap(false, true) {
		return false
	}
	if err := r.messenger.DeleteMessage(ctx, r.chatID, r.messageID); err != nil {
		r.logger.Warn("Failed to delete status message",
			slog.Int64("chat_id", r.chatID),
			slog.Int("message_id", r.messageID),
			slog.Any("error", fmt.Errorf("%w: %v", domain.ErrReportingFailed, err)),
		)
	}
	return true
}

// Fail edits the placeholder with the error text. Only the first terminal call has an effect.
func (r *Reporter) Fail(ctx context.Context, cause error) bool {
	if !r.terminated.CompareAndSwap(false, true) {
		return false
	}
	r.edit(ctx, FailureText(cause))
	return true
}

// Terminated reports whether a terminal action already ran
func (r *Reporter) Terminated() bool {
	return r.terminated.Load()
}

func (r *Reporter) edit(ctx context.Context, text string) {
	if err := r.messenger.EditMessageText(ctx, r.chatID, r.messageID, text); err != nil {
		r.logger.Warn("Failed to edit status message",
			slog.Int64("chat_id", r.chatID),
			slog.Int("message_id", r.messageID),
			slog.Any("error", fmt.Errorf("%w: %v", domain.ErrReportingFailed, err)),
		)
	}
}

// StreamSpec describes one rate-limited progress stream
type StreamSpec struct {
	Title        string
	Format       Format
	Interval     time.Duration
	FinishedText string // shown once on the first PhaseFinished event; empty to ignore
}

// Stream consumes progress events for one stage and edits the status
// message at most once per Interval. Only the latest pending sample is kept.
type Stream struct {
	reporter *Reporter
	ctx      context.Context
	spec     StreamSpec

	mu              sync.Mutex
	pending         Event
	hasPending      bool
	finishedPending bool
	closed          bool

	notify    chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the run goroutine
	last         time.Time
	finishedSent bool
}

// Stream starts a progress stream; Close must be called when the stage ends
func (r *Reporter) Stream(ctx context.Context, spec StreamSpec) *Stream {
	s := &Stream{
		reporter: r,
		ctx:      ctx,
		spec:     spec,
		notify:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish implements Sink
func (s *Stream) Publish(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if ev.Phase == PhaseFinished {
		s.finishedPending = true
	} else {
		s.pending = ev
		s.hasPending = true
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Close stops the stream after handling what is still pending
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.quit)
	})
	<-s.done
}

func (s *Stream) run() {
	defer close(s.done)
	for {
		select {
		case <-s.notify:
			s.flush()
		case <-s.quit:
			s.flush()
			return
		}
	}
}

func (s *Stream) flush() {
	s.mu.Lock()
	ev, hasEv := s.pending, s.hasPending
	finished := s.finishedPending
	s.hasPending = false
	s.finishedPending = false
	s.mu.Unlock()

	if hasEv {
		s.maybeEmit(ev)
	}
	if finished && !s.finishedSent {
		s.finishedSent = true
		if s.spec.FinishedText != "" {
			s.reporter.Status(s.ctx, s.spec.FinishedText)
		}
	}
}

func (s *Stream) maybeEmit(ev Event) {
	now := s.reporter.now()
	if !s.last.IsZero() && now.Sub(s.last) < s.spec.Interval {
		return
	}
	s.last = now
	s.reporter.Status(s.ctx, Render(s.spec.Title, s.spec.Format, ev))
}
