package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	exterrors "github.com/adverant/nexus/formextract-worker/internal/errors"
	"github.com/adverant/nexus/formextract-worker/internal/logging"
	"github.com/adverant/nexus/formextract-worker/internal/processor"
)

const defaultProcessingTimeout = 300000 * time.Millisecond // 5 minutes

// jobRunner runs one job with a timeout and records its status
type jobRunner struct {
	processor processor.ExtractionProcessorInterface
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(p processor.ExtractionProcessorInterface, timeoutMs int64, logger *logging.Logger) *jobRunner {
	timeout := defaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &jobRunner{processor: p, timeout: timeout, logger: logger}
}

func (r *jobRunner) run(ctx context.Context, job *JobData) (*processor.ExtractResult, error) {
	startTime := time.Now()
	log := r.logger.With("job_id", job.JobID, "form_type_id", job.FormConfig.FormTypeID)

	if err := r.processor.UpdateJobStatus(ctx, job.JobID, "processing", map[string]interface{}{
		"form_type_id": job.FormConfig.FormTypeID,
	}); err != nil {
		log.Warn("Failed to update status to processing", "error", err)
	}

	log.Debug("Processing timeout set", "timeout", r.timeout.String())

	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.processor.ProcessJob(processCtx, job.Request())
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(processCtx.Err(), context.DeadlineExceeded) {
			log.Error("Processing timed out", "duration", duration.String(), "timeout", r.timeout.String())
			err = exterrors.NewProcessingTimeoutError(job.JobID, r.timeout, err)
		} else {
			log.Error("Processing failed", "duration", duration.String(), "error", err)
		}

		if updateErr := r.processor.UpdateJobStatus(ctx, job.JobID, "failed", failureMetadata(err, duration)); updateErr != nil {
			log.Warn("Failed to update status to failed", "error", updateErr)
		}
		return nil, err
	}

	log.Info("Processing completed", "duration", duration.String(), "run_id", result.RunID,
		"contents", len(result.Contents), "empty_fields", result.EmptyFields)

	if err := r.processor.UpdateJobStatus(ctx, job.JobID, "completed", map[string]interface{}{
		"run_id":             result.RunID,
		"form_type_id":       result.FormTypeID,
		"processing_time_ms": duration.Milliseconds(),
		"empty_fields":       result.EmptyFields,
		"contents":           len(result.Contents),
	}); err != nil {
		log.Warn("Failed to update status to completed", "error", err)
	}

	return result, nil
}

// failureMetadata renders err for the job status row
func failureMetadata(err error, duration time.Duration) map[string]interface{} {
	metadata := map[string]interface{}{}

	var extractionErr *exterrors.ExtractionError
	if errors.As(err, &extractionErr) {
		for k, v := range extractionErr.ToMap() {
			metadata[k] = v
		}
	}
	metadata["error"] = err.Error()
	metadata["processing_time_ms"] = duration.Milliseconds()

	return metadata
}

// retryable reports whether running the job again could succeed
func retryable(err error) bool {
	var extractionErr *exterrors.ExtractionError
	if !errors.As(err, &extractionErr) {
		return true
	}
	switch extractionErr.Code {
	case exterrors.ErrorInvalidRequest, exterrors.ErrorOCRResultMissing, exterrors.ErrorNoResolverAvailable:
		return false
	default:
		return true
	}
}

// describe is a short log-friendly form of a job
func describe(job *JobData) string {
	return fmt.Sprintf("form_type=%s points=%d images=%d ocr=%d",
		job.FormConfig.FormTypeID, len(job.FormConfig.ExtractPoint), len(job.Images), len(job.OcrOutputs))
}
