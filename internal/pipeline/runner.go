package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-relay/internal/domain"
	"github.com/cuongbtq/media-relay/internal/progress"
)

const terminalTimeout = 30 * time.Second

// Outcome is how a run ended, from the queue's point of view
type Outcome int

const (
	// OutcomeDone means the artifact was delivered
	OutcomeDone Outcome = iota
	// OutcomeFailed means a terminal error was reported to the requester
	OutcomeFailed
	// OutcomeInterrupted means the run was cut short by shutdown; nothing terminal was sent
	OutcomeInterrupted
	// OutcomeDuplicate means another runner on this host already owns the job
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeFailed:
		return "failed"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Retriever runs the retrieval stage
type Retriever interface {
	Retrieve(ctx context.Context, job *domain.Job, prefix string, sink progress.Sink) (*domain.Media, error)
}

// Transformer runs the transform stage
type Transformer interface {
	Transform(ctx context.Context, job *domain.Job, prefix string, media *domain.Media) (*domain.Artifact, error)
}

// Deliverer runs the delivery stage
type Deliverer interface {
	Deliver(ctx context.Context, job *domain.Job, artifact *domain.Artifact, sink progress.Sink) error
}

// CancelChecker reports whether the requester asked to stop the job
type CancelChecker interface {
	IsCancelRequested(ctx context.Context, jobID string) (bool, error)
}

// StageListener observes stage transitions. cause is set for FAILED.
type StageListener interface {
	StageChanged(ctx context.Context, job *domain.Job, stage domain.Stage, cause error)
}

// Config holds runner settings
type Config struct {
	WorkspaceDir      string
	JobTimeout        time.Duration
	RetrievalInterval time.Duration
	DeliveryInterval  time.Duration
}

// Runner executes one job end to end
type Runner struct {
	retriever   Retriever
	transformer Transformer
	deliverer   Deliverer
	messenger   progress.Messenger
	canceler    CancelChecker
	listener    StageListener
	config      Config
	logger      *slog.Logger

	reporterOptions []progress.Option
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithCancelChecker enables between-stage cancellation
func WithCancelChecker(c CancelChecker) RunnerOption {
	return func(r *Runner) { r.canceler = c }
}

// WithStageListener registers an observer for stage transitions
func WithStageListener(l StageListener) RunnerOption {
	return func(r *Runner) { r.listener = l }
}

// WithReporterOptions passes options to every job's progress reporter
func WithReporterOptions(opts ...progress.Option) RunnerOption {
	return func(r *Runner) { r.reporterOptions = append(r.reporterOptions, opts...) }
}

// NewRunner creates a job runner
func NewRunner(retriever Retriever, transformer Transformer, deliverer Deliverer, messenger progress.Messenger, config Config, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		retriever:   retriever,
		transformer: transformer,
		deliverer:   deliverer,
		messenger:   messenger,
		config:      config,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes retrieval, transform and delivery in order. Exactly one
// terminal status action is sent unless the run is interrupted by ctx, and
// the workspace is cleaned on every exit path, panics included.
func (r *Runner) Run(ctx context.Context, job *domain.Job) (Outcome, error) {
	logger := r.logger.With(slog.String("job_id", job.ID), slog.Int("attempt", job.Attempt))
	reporter := progress.NewReporter(r.messenger, job.ChatID, job.StatusMessageID, logger, r.reporterOptions...)

	ws, err := AcquireWorkspace(r.config.WorkspaceDir, job.ID, job.Attempt, logger)
	if err != nil {
		if errors.Is(err, domain.ErrWorkspaceBusy) {
			logger.Warn("Job workspace is owned by another runner, skipping")
			return OutcomeDuplicate, err
		}
		r.fail(ctx, job, reporter, err)
		return OutcomeFailed, err
	}
	defer ws.Release()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Job runner panicked", slog.Any("panic", p))
			r.fail(ctx, job, reporter, fmt.Errorf("internal error: %v", p))
			panic(p)
		}
	}()

	jobCtx := ctx
	if r.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, r.config.JobTimeout)
		defer cancel()
	}

	logger.Info("Job started", slog.String("kind", string(job.Kind)))
	start := time.Now()

	err = r.execute(jobCtx, job, ws, reporter)
	if err == nil {
		termCtx, cancel := terminalContext(ctx)
		defer cancel()

		reporter.Complete(termCtx)
		r.transition(termCtx, job, domain.StageDone, nil)
		logger.Info("Job completed", slog.Duration("elapsed", time.Since(start)))
		return OutcomeDone, nil
	}

	if ctx.Err() != nil {
		logger.Warn("Job interrupted by shutdown",
			slog.String("stage", string(job.Stage)),
			slog.Any("error", err),
		)
		return OutcomeInterrupted, err
	}

	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", r.config.JobTimeout, err)
	}

	r.fail(ctx, job, reporter, err)
	logger.Error("Job failed",
		slog.String("stage", string(job.Stage)),
		slog.Duration("elapsed", time.Since(start)),
		slog.Any("error", err),
	)
	return OutcomeFailed, err
}

func (r *Runner) execute(ctx context.Context, job *domain.Job, ws *Workspace, reporter *progress.Reporter) error {
	if err := r.enter(ctx, job, domain.StageRetrieving); err != nil {
		return err
	}
	media, err := r.retrieve(ctx, job, ws, reporter)
	if err != nil {
		return err
	}

	if err := r.enter(ctx, job, domain.StageTransforming); err != nil {
		return err
	}
	artifact, err := r.transformer.Transform(ctx, job, ws.Prefix, media)
	if err != nil {
		return err
	}

	if err := r.enter(ctx, job, domain.StageDelivering); err != nil {
		return err
	}
	return r.deliver(ctx, job, artifact, reporter)
}

func (r *Runner) retrieve(ctx context.Context, job *domain.Job, ws *Workspace, reporter *progress.Reporter) (*domain.Media, error) {
	reporter.Status(ctx, progress.TextStarting)

	stream := reporter.Stream(ctx, progress.StreamSpec{
		Title:        progress.TextDownloading,
		Format:       progress.FormatRate,
		Interval:     r.config.RetrievalInterval,
		FinishedText: progress.TextProcessing,
	})
	defer stream.Close()

	return r.retriever.Retrieve(ctx, job, ws.Prefix, stream)
}

func (r *Runner) deliver(ctx context.Context, job *domain.Job, artifact *domain.Artifact, reporter *progress.Reporter) error {
	reporter.Status(ctx, progress.TextUploading)

	stream := reporter.Stream(ctx, progress.StreamSpec{
		Title:    progress.TextUploading,
		Format:   progress.FormatTotal,
		Interval: r.config.DeliveryInterval,
	})
	defer stream.Close()

	return r.deliverer.Deliver(ctx, job, artifact, stream)
}

// enter checks for cancellation and moves the job to stage
func (r *Runner) enter(ctx context.Context, job *domain.Job, stage domain.Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.canceler != nil {
		canceled, err := r.canceler.IsCancelRequested(ctx, job.ID)
		if err != nil {
			r.logger.Warn("Failed to check cancellation, continuing",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		} else if canceled {
			return domain.ErrJobCanceled
		}
	}

	r.transition(ctx, job, stage, nil)
	return nil
}

func (r *Runner) fail(ctx context.Context, job *domain.Job, reporter *progress.Reporter, cause error) {
	termCtx, cancel := terminalContext(ctx)
	defer cancel()

	if reporter.Fail(termCtx, cause) {
		r.transition(termCtx, job, domain.StageFailed, cause)
	}
}

func (r *Runner) transition(ctx context.Context, job *domain.Job, stage domain.Stage, cause error) {
	job.Stage = stage
	if r.listener != nil {
		r.listener.StageChanged(ctx, job, stage, cause)
	}
}

// terminalContext survives job timeouts so the final edit is still sent
func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalTimeout)
}
