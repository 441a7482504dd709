package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/adverant/nexus/formextract-worker/internal/logging"
)

// HTTPFetcher downloads images with retry and exponential backoff
type HTTPFetcher struct {
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxBytes       int64
	logger         *logging.Logger
}

// HTTPFetcherConfig holds download settings
type HTTPFetcherConfig struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxBytes       int64
	Logger         *logging.Logger
}

// NewHTTPFetcher creates a fetcher, filling unset values with defaults
func NewHTTPFetcher(cfg *HTTPFetcherConfig) *HTTPFetcher {
	if cfg == nil {
		cfg = &HTTPFetcherConfig{}
	}

	f := &HTTPFetcher{
		client:         &http.Client{Timeout: cfg.Timeout},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		maxBytes:       cfg.MaxBytes,
		logger:         cfg.Logger,
	}
	if f.client.Timeout == 0 {
		f.client.Timeout = 60 * time.Second
	}
	if f.maxRetries < 1 {
		f.maxRetries = 3
	}
	if f.initialBackoff == 0 {
		f.initialBackoff = time.Second
	}
	if f.maxBackoff == 0 {
		f.maxBackoff = 16 * time.Second
	}
	if f.maxBytes == 0 {
		f.maxBytes = 50 << 20 // 50MB
	}
	if f.logger == nil {
		f.logger = logging.NewLogger("ocr-fetch")
	}

	return f
}

// StatusError is a non-2xx download response
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// Temporary reports whether the server may answer differently later
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// errTooLarge marks an image over the size limit
var errTooLarge = errors.New("image too large")

// retryableFetchError reports whether another attempt could succeed
func retryableFetchError(err error) bool {
	if errors.Is(err, errTooLarge) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// Fetch downloads url, retrying transport errors, 5xx and 429 responses
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		f.logger.Warn("Download attempt failed", "url", url, "attempt", attempt, "max_retries", f.maxRetries, "error", err)

		if !retryableFetchError(err) {
			return nil, fmt.Errorf("failed to download %s: %w", url, err)
		}

		if attempt == f.maxRetries {
			break
		}

		backoff := time.Duration(float64(f.initialBackoff) * math.Pow(2, float64(attempt-1)))
		if backoff > f.maxBackoff {
			backoff = f.maxBackoff
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("failed to download %s after %d attempts: %w", url, f.maxRetries, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", errTooLarge, f.maxBytes)
	}

	return data, nil
}
