package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/media-relay/internal/domain"
	"github.com/cuongbtq/media-relay/internal/pipeline"
)

// Broker is the queue the worker consumes from
type Broker interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// JobStore claims jobs and records terminal state
type JobStore interface {
	ClaimJob(ctx context.Context, jobID string) (*domain.Job, error)
	ReleaseClaim(ctx context.Context, jobID string, attempt int) error
	UpdateStage(ctx context.Context, jobID string, stage domain.Stage, errorMsg string) error
}

// JobRunner executes one claimed job
type JobRunner interface {
	Run(ctx context.Context, job *domain.Job) (pipeline.Outcome, error)
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Broker      Broker
	Store       JobStore
	Runner      JobRunner
	Concurrency int
	WorkerID    string
}

// Worker consumes job messages and runs them on a fixed pool of goroutines
type Worker struct {
	logger      *slog.Logger
	broker      Broker
	store       JobStore
	runner      JobRunner
	concurrency int
	workerID    string

	jobsChan chan amqp.Delivery
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once

	// jobCtx outlives the Start context so in-flight jobs can finish during shutdown
	jobCtx    context.Context
	cancelJob context.CancelFunc
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	jobCtx, cancel := context.WithCancel(context.Background())
	return &Worker{
		logger:      cfg.Logger,
		broker:      cfg.Broker,
		store:       cfg.Store,
		runner:      cfg.Runner,
		concurrency: cfg.Concurrency,
		workerID:    cfg.WorkerID,
		jobsChan:    make(chan amqp.Delivery),
		stopChan:    make(chan struct{}),
		jobCtx:      jobCtx,
		cancelJob:   cancel,
	}
}

// Start begins processing jobs and blocks until ctx is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool()

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		w.startMessageDispatcher(ctx, deliveries)
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
	case <-dispatcherDone:
		w.logger.Warn("Message dispatcher exited")
	}

	<-dispatcherDone
	return nil
}

// Stop stops accepting jobs and waits up to timeout for in-flight jobs.
// Jobs still running after timeout are interrupted and requeued.
func (w *Worker) Stop(timeout time.Duration) {
	w.logger.Info("Stopping worker...", slog.Duration("timeout", timeout))
	w.stopOnce.Do(func() { close(w.stopChan) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		w.logger.Warn("Shutdown timeout reached, interrupting in-flight jobs")
		w.cancelJob()
		<-done
	}

	w.cancelJob()
	w.logger.Info("Worker stopped")
}
