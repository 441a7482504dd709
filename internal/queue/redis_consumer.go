/**
 * Direct Redis Queue Consumer for FormExtract Worker
 *
 * Uses simple Redis LIST operations: job IDs on the list, job envelopes in
 * <queue>:data, status sets and result hashes alongside, events on pub/sub.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/formextract-worker/internal/logging"
	"github.com/adverant/nexus/formextract-worker/internal/processor"
)

var errNoJobs = errors.New("no jobs available")

// redisOpTimeout bounds bookkeeping writes, which must not depend on the consumer's lifetime
const redisOpTimeout = 10 * time.Second

// jobStore records job state transitions in Redis
type jobStore interface {
	load(ctx context.Context, id string) (string, error)
	requeue(ctx context.Context, envelope *RedisJobData) error
	markProcessing(ctx context.Context, jobID string)
	markCompleted(ctx context.Context, jobID string, result *processor.ExtractResult)
	markFailed(ctx context.Context, jobID string, details map[string]interface{})
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client *redis.Client
	store  jobStore
	runner *jobRunner
	config *RedisConsumerConfig
	keys   queueKeys
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	MaxRetries        int // used when a job envelope carries none
	Processor         processor.ExtractionProcessorInterface
	ProcessingTimeout int64 // Processing timeout in milliseconds (default: 300000 = 5 minutes)
	Logger            *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "formextract:jobs"
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("redis-queue")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())
	keys := newQueueKeys(cfg.QueueName)

	return &RedisConsumer{
		client: client,
		store:  &redisJobStore{client: client, keys: keys, logger: logger},
		runner: newJobRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		keys:   keys,
		logger: logger,
		ctx:    consumerCtx,
		cancel: cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop stops fetching new jobs and waits for in-flight jobs to finish
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping Redis queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if errors.Is(err, errNoJobs) || c.ctx.Err() != nil {
					continue
				}
				c.logger.Error("Worker error", "worker", id, "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue.
// Only the blocking pop follows the consumer context; once a job is popped it
// runs to completion and its state is written even during shutdown.
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.keys.list).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	return c.handleJob(result[1])
}

// handleJob loads, runs and settles the popped job id
func (c *RedisConsumer) handleJob(id string) error {
	loadCtx, cancel := opContext()
	raw, err := c.store.load(loadCtx, id)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	var envelope RedisJobData
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		c.settle(func(ctx context.Context) {
			c.store.markFailed(ctx, id, map[string]interface{}{"error": fmt.Sprintf("invalid job envelope: %v", err)})
		})
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if envelope.ID == "" {
		envelope.ID = id
	}
	if envelope.Payload.JobID == "" {
		envelope.Payload.JobID = envelope.ID
	}
	if envelope.MaxRetries == 0 {
		envelope.MaxRetries = c.config.MaxRetries
	}

	job := &envelope.Payload
	c.logger.Info("Received job", "job_id", job.JobID, "attempt", envelope.Attempts+1, "job", describe(job))
	c.settle(func(ctx context.Context) { c.store.markProcessing(ctx, job.JobID) })

	startTime := time.Now()
	extractResult, err := c.runner.run(context.Background(), job)
	duration := time.Since(startTime)

	if err != nil {
		envelope.Attempts++
		if retryable(err) && envelope.Attempts < envelope.MaxRetries {
			ctx, cancel := opContext()
			defer cancel()
			return c.store.requeue(ctx, &envelope)
		}
		c.settle(func(ctx context.Context) { c.store.markFailed(ctx, job.JobID, failureMetadata(err, duration)) })
		return nil
	}

	c.settle(func(ctx context.Context) { c.store.markCompleted(ctx, job.JobID, extractResult) })
	return nil
}

// settle runs a bookkeeping write under its own timeout
func (c *RedisConsumer) settle(write func(ctx context.Context)) {
	ctx, cancel := opContext()
	defer cancel()
	write(ctx)
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

// redisJobStore is the go-redis jobStore
type redisJobStore struct {
	client *redis.Client
	keys   queueKeys
	logger *logging.Logger
}

func (s *redisJobStore) load(ctx context.Context, id string) (string, error) {
	return s.client.HGet(ctx, s.keys.data, id).Result()
}

func (s *redisJobStore) requeue(ctx context.Context, envelope *RedisJobData) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", envelope.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.keys.data, envelope.ID, data)
	pipe.SRem(ctx, s.keys.processing, envelope.Payload.JobID)
	pipe.LPush(ctx, s.keys.list, envelope.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", envelope.ID, err)
	}

	s.logger.Info("Job re-queued for retry", "job_id", envelope.Payload.JobID,
		"attempt", envelope.Attempts, "max_retries", envelope.MaxRetries)
	return nil
}

func (s *redisJobStore) markProcessing(ctx context.Context, jobID string) {
	if err := s.client.SAdd(ctx, s.keys.processing, jobID).Err(); err != nil {
		s.logger.Warn("Failed to mark job processing", "job_id", jobID, "error", err)
	}
	s.publish(ctx, jobID, "processing")
}

func (s *redisJobStore) markCompleted(ctx context.Context, jobID string, result *processor.ExtractResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("Failed to marshal result", "job_id", jobID, "error", err)
		data = []byte("{}")
	}

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.keys.processing, jobID)
	pipe.SAdd(ctx, s.keys.completed, jobID)
	pipe.HSet(ctx, s.keys.results, jobID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("Failed to mark job completed", "job_id", jobID, "error", err)
	}
	s.publish(ctx, jobID, "completed")
}

func (s *redisJobStore) markFailed(ctx context.Context, jobID string, details map[string]interface{}) {
	data, err := json.Marshal(details)
	if err != nil {
		data = []byte(`{"error":"unknown error"}`)
	}

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.keys.processing, jobID)
	pipe.SAdd(ctx, s.keys.failed, jobID)
	pipe.HSet(ctx, s.keys.errors, jobID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("Failed to mark job failed", "job_id", jobID, "error", err)
	}
	s.publish(ctx, jobID, "failed")
}

// publish sends a job event for streaming subscribers
func (s *redisJobStore) publish(ctx context.Context, jobID, status string) {
	if err := s.client.Publish(ctx, s.keys.events, jobEvent(jobID, status, time.Now())).Err(); err != nil {
		s.logger.Warn("Failed to publish job event", "job_id", jobID, "status", status, "error", err)
	}
}

func jobEvent(jobID, status string, at time.Time) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"event":     "job:" + status,
		"job_id":    jobID,
		"timestamp": at.UTC().Format(time.RFC3339),
	})
	return data
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.keys.list)
	processing := pipe.SCard(ctx, c.keys.processing)
	completed := pipe.SCard(ctx, c.keys.completed)
	failed := pipe.SCard(ctx, c.keys.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
