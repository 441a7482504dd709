package errors

import (
	"fmt"
	"time"
)

/**
 * Custom error types for FormExtract Worker
 *
 * Design Pattern: Factory Pattern for error creation
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Dispatch errors
	ErrorNoResolverAvailable ErrorCode = "NO_RESOLVER_AVAILABLE"
	ErrorOCRResultMissing    ErrorCode = "OCR_RESULT_MISSING"

	// Request errors
	ErrorInvalidRequest ErrorCode = "INVALID_REQUEST"

	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorOCRFailed         ErrorCode = "OCR_FAILED"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// Sentinels for errors.Is; any ExtractionError with the same code matches
var (
	ErrNoResolverAvailable = &ExtractionError{Code: ErrorNoResolverAvailable, Message: "no resolver available"}
	ErrOCRResultMissing    = &ExtractionError{Code: ErrorOCRResultMissing, Message: "ocr result missing"}
)

// ExtractionError represents a structured extraction error
type ExtractionError struct {
	Code          ErrorCode
	Message       string
	JobID         string
	FormTypeID    string
	DocumentField string
	ImageID       string
	Timestamp     time.Time
	Details       map[string]interface{}
	Cause         error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Is matches any ExtractionError carrying the same code
func (e *ExtractionError) Is(target error) bool {
	t, ok := target.(*ExtractionError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Factory functions for common errors

func NewNoResolverAvailableError(reason string) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorNoResolverAvailable,
		Message:   reason,
		Timestamp: time.Now(),
	}
}

func NewOCRResultMissingError(documentField, imageID string) *ExtractionError {
	return &ExtractionError{
		Code:          ErrorOCRResultMissing,
		Message:       fmt.Sprintf("No OCR output for image %s", imageID),
		DocumentField: documentField,
		ImageID:       imageID,
		Timestamp:     time.Now(),
		Details: map[string]interface{}{
			"document_field": documentField,
			"image_id":       imageID,
		},
	}
}

func NewInvalidRequestError(jobID string, reason string) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorInvalidRequest,
		Message:   reason,
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewOCRFailedError(imageID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed for image %s", imageID),
		ImageID:   imageID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"image_id": imageID,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store extraction results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// WithJob returns a copy tagged with the job and form type
func (e *ExtractionError) WithJob(jobID, formTypeID string) *ExtractionError {
	c := *e
	c.JobID = jobID
	c.FormTypeID = formTypeID
	return &c
}

// ToMap converts error to map for database storage
func (e *ExtractionError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.JobID != "" {
		result["job_id"] = e.JobID
	}
	if e.FormTypeID != "" {
		result["form_type_id"] = e.FormTypeID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
