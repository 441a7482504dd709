/**
 * FormExtract CLI
 *
 * Runs one extraction job file locally and prints the result as JSON, or
 * submits it to the worker queue with -enqueue. -run prints a stored run.
 */

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

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
	jobPath := flag.String("job", "", "path to a job JSON file (job_id, form_config, images, ocr_outputs); - reads stdin")
	enqueue := flag.Bool("enqueue", false, "submit the job to the worker queue instead of running it")
	outPath := flag.String("out", "", "write the result to this file instead of stdout")
	runID := flag.String("run", "", "print the stored extraction run with this ID (needs DATABASE_URL)")
	flag.Parse()

	_ = godotenv.Load(".env.nexus")

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: os.Stderr})
	logger := logging.NewLogger("extract-cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *runID != "" {
		stored, err := loadRun(ctx, cfg, *runID)
		if err != nil {
			logger.Error("Failed to load run", "run_id", *runID, "error", err)
			os.Exit(1)
		}
		if err := writeJSON(*outPath, stored); err != nil {
			logger.Error("Failed to write run", "error", err)
			os.Exit(1)
		}
		return
	}

	if *jobPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	job, err := readJob(*jobPath)
	if err != nil {
		logger.Error("Failed to read job", "path", *jobPath, "error", err)
		os.Exit(1)
	}

	if *enqueue {
		if err := submit(ctx, cfg, job); err != nil {
			logger.Error("Failed to enqueue job", "job_id", job.JobID, "error", err)
			os.Exit(1)
		}
		logger.Info("Job enqueued", "job_id", job.JobID, "backend", cfg.QueueBackend, "queue", cfg.QueueName)
		return
	}

	result, err := run(ctx, cfg, job)
	if err != nil {
		logger.Error("Extraction failed", "job_id", job.JobID, "error", err)
		os.Exit(1)
	}

	if err := writeJSON(*outPath, result); err != nil {
		logger.Error("Failed to write result", "error", err)
		os.Exit(1)
	}
}

func readJob(path string) (*queue.JobData, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return queue.DecodeJobData(data)
}

// run executes the job in-process; the run is persisted when DATABASE_URL is set
func run(ctx context.Context, cfg *config.Config, job *queue.JobData) (*processor.ExtractResult, error) {
	registry, err := resolvers.Default()
	if err != nil {
		return nil, err
	}

	policy, err := extract.ParsePolicy(cfg.MissingOCRPolicy)
	if err != nil {
		return nil, err
	}

	orchestrator, err := extract.NewOrchestrator(registry,
		extract.WithLogger(logging.NewLogger("extract")),
		extract.WithParallelism(cfg.ExtractParallelism),
		extract.WithFailurePolicy(policy),
	)
	if err != nil {
		return nil, err
	}

	procCfg := &processor.ProcessorConfig{
		Parser:      orchestrator,
		OCRBackfill: cfg.OCRBackfill,
		Logger:      logging.NewLogger("processor"),
	}
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		procCfg.Store = pg
	}
	if cfg.OCRBackfill {
		engine, err := tesseract.New(&tesseract.Config{Language: cfg.TesseractLanguage})
		if err != nil {
			return nil, err
		}
		procCfg.Recognizer = engine
		procCfg.Fetcher = ocr.NewHTTPFetcher(nil)
	}

	proc, err := processor.NewExtractionProcessor(procCfg)
	if err != nil {
		return nil, err
	}

	return proc.ProcessJob(ctx, job.Request())
}

// submit pushes the job to the configured queue backend
func submit(ctx context.Context, cfg *config.Config, job *queue.JobData) error {
	if cfg.QueueBackend == config.QueueBackendRedis {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opt)
		defer client.Close()
		return queue.PushRedisJob(ctx, client, cfg.QueueName, job, cfg.MaxRetries)
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	_, err = queue.Enqueue(ctx, client, cfg.QueueName, job, cfg.MaxRetries)
	return err
}

// loadRun reads a persisted run
func loadRun(ctx context.Context, cfg *config.Config, runID string) (*storage.RunRecord, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required to look up runs")
	}
	pg, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	defer pg.Close()

	return pg.GetRun(ctx, runID)
}

func writeJSON(path string, v interface{}) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
