/**
 * Configuration for FormExtract Worker
 *
 * Loads configuration from environment variables matching .env.nexus
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Queue backends
const (
	QueueBackendAsynq = "asynq"
	QueueBackendRedis = "redis"
)

// Missing OCR policies
const (
	MissingOCRAbort   = "abort"
	MissingOCRIsolate = "isolate"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL     string
	QueueBackend string
	QueueName    string
	MaxRetries   int

	// PostgreSQL configuration; empty disables persistence
	DatabaseURL string

	// Worker configuration
	WorkerConcurrency  int
	ProcessingTimeout  int // milliseconds
	ExtractParallelism int
	MissingOCRPolicy   string

	// OCR backfill for images arriving without an OCR output
	OCRBackfill       bool
	TesseractLanguage string

	// Logging
	LogLevel  string
	LogFormat string

	// Node environment
	NodeEnv string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		QueueBackend:       strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", QueueBackendAsynq)),
		QueueName:          getEnvOrDefault("QUEUE_NAME", "formextract:jobs"),
		MaxRetries:         getEnvAsIntOrDefault("MAX_RETRIES", 3),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		WorkerConcurrency:  getEnvAsIntOrDefault("WORKER_CONCURRENCY", 10),
		ProcessingTimeout:  getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		ExtractParallelism: getEnvAsIntOrDefault("EXTRACT_PARALLELISM", 1),
		MissingOCRPolicy:   strings.ToLower(getEnvOrDefault("MISSING_OCR_POLICY", MissingOCRAbort)),
		OCRBackfill:        getEnvAsBoolOrDefault("OCR_BACKFILL", false),
		TesseractLanguage:  getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          getEnvOrDefault("LOG_FORMAT", "console"),
		NodeEnv:            getEnvOrDefault("NODE_ENV", "development"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueBackend != QueueBackendAsynq && c.QueueBackend != QueueBackendRedis {
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendAsynq, QueueBackendRedis, c.QueueBackend)
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.ExtractParallelism < 1 || c.ExtractParallelism > 64 {
		return fmt.Errorf("EXTRACT_PARALLELISM must be between 1 and 64, got %d", c.ExtractParallelism)
	}

	if c.MissingOCRPolicy != MissingOCRAbort && c.MissingOCRPolicy != MissingOCRIsolate {
		return fmt.Errorf("MISSING_OCR_POLICY must be %q or %q, got %q", MissingOCRAbort, MissingOCRIsolate, c.MissingOCRPolicy)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
