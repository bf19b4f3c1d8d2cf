package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/media-relay/internal/bootstrap"
	"github.com/cuongbtq/media-relay/internal/config"
	"github.com/cuongbtq/media-relay/internal/delivery"
	"github.com/cuongbtq/media-relay/internal/events"
	"github.com/cuongbtq/media-relay/internal/pipeline"
	"github.com/cuongbtq/media-relay/internal/retrieval"
	"github.com/cuongbtq/media-relay/internal/transform"
	"github.com/cuongbtq/media-relay/internal/worker"
	"github.com/cuongbtq/media-relay/internal/worker/storage"
	"github.com/cuongbtq/media-relay/shared/nats"
	"github.com/cuongbtq/media-relay/shared/telegram"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig("WORKER_SERVICE_CONFIG_PATH", "configs/worker-service/config.yaml")
	if err != nil {
		return err
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := bootstrap.OpenPostgres(&cfg.Database, appLogger.Logger)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	rabbitClient, err := bootstrap.OpenRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return err
	}
	defer rabbitClient.Close()

	// Lifecycle events are optional
	publisher, closeEvents, err := initEvents(&cfg.Events, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize events: %w", err)
	}
	defer closeEvents()

	jobStorage := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	runner := initPipeline(cfg, jobStorage, publisher, appLogger.Logger)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:      appLogger.Logger,
		Broker:      rabbitClient,
		Store:       jobStorage,
		Runner:      runner,
		Concurrency: cfg.Worker.Concurrency,
		WorkerID:    workerID(),
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		if runErr != nil {
			appLogger.Error("Worker error", slog.Any("error", runErr))
		} else {
			appLogger.Warn("Worker stopped consuming, shutting down")
		}
	}

	// Stop dispatching, then let in-flight jobs finish or requeue
	cancel()
	workerInstance.Stop(cfg.Worker.ShutdownTimeout)

	appLogger.Info("Worker service shutdown complete",
		slog.String("db_stats", dbClient.Stats()),
	)
	return runErr
}

// initPipeline wires retrieval, transform and delivery into a job runner
func initPipeline(cfg *config.Config, jobStorage *storage.Storage, publisher events.Publisher, logger *slog.Logger) *pipeline.Runner {
	p := cfg.Pipeline

	telegramClient := telegram.NewClient(&telegram.Config{
		APIURL:  cfg.Telegram.APIURL,
		Token:   cfg.Telegram.Token,
		Timeout: cfg.Telegram.Timeout,
	}, logger)

	cookies := retrieval.NewCookiePool(p.CookiePoolDir, p.CookieCooldown, logger)
	retriever := retrieval.NewRetriever(retrieval.NewYTDLP(), cookies, retrieval.Config{
		PlayerClients: p.PlayerClients,
		PlayerSkip:    p.PlayerSkip,
	}, logger)

	ffmpeg := transform.NewFFmpeg(p.FFmpegPath, p.FFprobePath)
	transformer := transform.NewTransformer(ffmpeg, transform.NewScaler(p.Thumbnail.Backend, ffmpeg), transform.Config{
		Codec:             p.Audio.Codec,
		Bitrate:           p.Audio.Bitrate,
		Extension:         p.Audio.Extension,
		ThumbnailBox:      p.Thumbnail.MaxDimension,
		FilenameMaxLength: p.FilenameMaxLength,
	}, logger)

	deliverer := delivery.NewDeliverer(telegramClient, logger)

	return pipeline.NewRunner(retriever, transformer, deliverer, telegramClient, pipeline.Config{
		WorkspaceDir:      p.WorkspaceDir,
		JobTimeout:        cfg.Worker.JobTimeout,
		RetrievalInterval: p.RetrievalInterval,
		DeliveryInterval:  p.DeliveryInterval,
	}, logger,
		pipeline.WithCancelChecker(jobStorage),
		pipeline.WithStageListener(worker.NewStageRecorder(jobStorage, publisher, logger)),
	)
}

// initEvents connects to NATS when configured; otherwise events are dropped
func initEvents(cfg *config.EventsConfig, logger *slog.Logger) (events.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		logger.Info("Lifecycle events disabled")
		return events.Nop{}, func() {}, nil
	}

	bus, err := nats.Connect(cfg.NATSURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return events.NewBusPublisher(bus, cfg.Subject), bus.Close, nil
}

// workerID names this process as a RabbitMQ consumer tag
func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
