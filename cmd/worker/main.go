/**
 * FormExtract Worker - Main Entry Point
 *
 * Go worker extracting configured fields from classified form images.
 *
 * Architecture:
 * - Asynq or raw Redis list consumer for the extraction job queue
 * - Rule-based classification of extraction points into processing groups
 * - Resolver dispatch per page-matching image, merged per extraction point
 * - Optional Tesseract backfill for images without an OCR output
 * - PostgreSQL persistence of extraction runs and job status
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/formextract-worker/internal/config"
	"github.com/adverant/nexus/formextract-worker/internal/extract"
	"github.com/adverant/nexus/formextract-worker/internal/logging"
	"github.com/adverant/nexus/formextract-worker/internal/ocr"
	"github.com/adverant/nexus/formextract-worker/internal/ocr/tesseract"
	"github.com/adverant/nexus/formextract-worker/internal/processor"
	"github.com/adverant/nexus/formextract-worker/internal/queue"
	"github.com/adverant/nexus/formextract-worker/internal/resolvers"
	"github.com/adverant/nexus/formextract-worker/internal/storage"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load(".env.nexus")

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.NewLogger("worker").Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger := logging.NewLogger("worker")
	if envErr != nil {
		logger.Warn(".env.nexus not found, using system environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("FormExtract Worker failed", "error", err)
		os.Exit(1)
	}
}

// workerStore is the result store the worker owns and closes on exit
type workerStore interface {
	storage.ResultStore
	Close() error
}

// openStore connects to PostgreSQL and prepares the schema
var openStore = func(ctx context.Context, databaseURL string) (workerStore, error) {
	pg, err := storage.NewPostgresClient(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pg.EnsureSchema(schemaCtx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to prepare database schema: %w", err)
	}
	return pg, nil
}

// run wires the worker and blocks until ctx is cancelled. Every resource it
// opens is released before it returns, on success and on error.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("FormExtract Worker starting",
		"queue_backend", cfg.QueueBackend, "queue", cfg.QueueName, "workers", cfg.WorkerConcurrency,
		"extract_parallelism", cfg.ExtractParallelism, "missing_ocr_policy", cfg.MissingOCRPolicy,
		"ocr_backfill", cfg.OCRBackfill, "persistence", cfg.DatabaseURL != "")

	// Storage is optional; without it results live only in the queue backend
	var store storage.ResultStore
	if cfg.DatabaseURL != "" {
		pg, err := openStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Warn("Failed to close PostgreSQL", "error", err)
			}
		}()
		store = pg
		logger.Info("PostgreSQL connected")
	}

	registry, err := resolvers.Default()
	if err != nil {
		return fmt.Errorf("failed to build resolver registry: %w", err)
	}
	logger.Info("Resolver registry ready", "resolvers", registry.Names())

	policy, err := extract.ParsePolicy(cfg.MissingOCRPolicy)
	if err != nil {
		return fmt.Errorf("invalid missing OCR policy: %w", err)
	}

	orchestrator, err := extract.NewOrchestrator(registry,
		extract.WithLogger(logging.NewLogger("extract")),
		extract.WithParallelism(cfg.ExtractParallelism),
		extract.WithFailurePolicy(policy),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	procCfg := &processor.ProcessorConfig{
		Parser:      orchestrator,
		Store:       store,
		OCRBackfill: cfg.OCRBackfill,
		Logger:      logging.NewLogger("processor"),
	}
	if cfg.OCRBackfill {
		engine, err := tesseract.New(&tesseract.Config{Language: cfg.TesseractLanguage})
		if err != nil {
			return fmt.Errorf("failed to initialize Tesseract: %w", err)
		}
		procCfg.Recognizer = engine
		procCfg.Fetcher = ocr.NewHTTPFetcher(&ocr.HTTPFetcherConfig{Logger: logging.NewLogger("ocr-fetch")})
	}

	proc, err := processor.NewExtractionProcessor(procCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize extraction processor: %w", err)
	}

	stop, err := startConsumer(cfg, proc)
	if err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}

	logger.Info("FormExtract Worker is READY, waiting for jobs")

	<-ctx.Done()
	logger.Info("Received signal, initiating graceful shutdown")

	if err := stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

// startConsumer starts the configured queue backend and returns its stop function
func startConsumer(cfg *config.Config, proc processor.ExtractionProcessorInterface) (func() error, error) {
	if cfg.QueueBackend == config.QueueBackendRedis {
		consumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			MaxRetries:        cfg.MaxRetries,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			Logger:            logging.NewLogger("redis-queue"),
		})
		if err != nil {
			return nil, err
		}
		if err := consumer.Start(); err != nil {
			return nil, err
		}
		return func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if stats, err := consumer.GetStats(ctx); err == nil {
				logging.NewLogger("worker").Info("Queue statistics", "stats", stats)
			}
			return consumer.Stop()
		}, nil
	}

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         proc,
		ProcessingTimeout: int64(cfg.ProcessingTimeout),
		Logger:            logging.NewLogger("queue"),
	})
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(context.Background()); err != nil {
		return nil, err
	}
	return func() error {
		logging.NewLogger("worker").Info("Queue statistics", "stats", consumer.GetStatistics())
		return consumer.Stop(context.Background())
	}, nil
}
