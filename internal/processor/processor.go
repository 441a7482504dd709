/**
 * Extraction Processor for FormExtract Worker
 *
 * Runs one extraction job end to end:
 * - request validation
 * - optional OCR backfill for images without an OCR output
 * - classification summary of the configured extraction points
 * - resolver dispatch and merge via the orchestrator
 * - persistence of the run and its job status
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/formextract-worker/internal/classify"
	exterrors "github.com/adverant/nexus/formextract-worker/internal/errors"
	"github.com/adverant/nexus/formextract-worker/internal/logging"
	"github.com/adverant/nexus/formextract-worker/internal/model"
	"github.com/adverant/nexus/formextract-worker/internal/ocr"
	"github.com/adverant/nexus/formextract-worker/internal/storage"
)

// ExtractionProcessorInterface defines the interface for extraction processing
type ExtractionProcessorInterface interface {
	ProcessJob(ctx context.Context, req *ExtractRequest) (*ExtractResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error
}

// Parser turns a form configuration plus images and OCR outputs into contents
type Parser interface {
	Parse(ctx context.Context, images []model.Image, ocrOutputs []model.OcrOutput, cfg model.FormConfig) ([]model.Content, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Parser      Parser
	Store       storage.ResultStore // optional
	Recognizer  ocr.Recognizer      // required when OCRBackfill is set
	Fetcher     ocr.Fetcher         // required when OCRBackfill is set
	OCRBackfill bool
	Logger      *logging.Logger
}

// ExtractRequest represents an extraction job
type ExtractRequest struct {
	JobID      string
	FormConfig model.FormConfig
	Images     []model.Image
	OcrOutputs []model.OcrOutput
	Metadata   map[string]interface{}
}

// ExtractResult represents the extraction result
type ExtractResult struct {
	RunID            string              `json:"run_id"`
	FormTypeID       string              `json:"form_type_id"`
	Contents         []model.Content     `json:"contents"`
	Groups           map[string][]string `json:"groups"`
	EmptyFields      int                 `json:"empty_fields"`
	ProcessingTimeMs int64               `json:"processing_time_ms"`
}

// ExtractionProcessor handles extraction jobs
type ExtractionProcessor struct {
	parser     Parser
	store      storage.ResultStore
	recognizer ocr.Recognizer
	fetcher    ocr.Fetcher
	backfill   bool
	logger     *logging.Logger
}

// NewExtractionProcessor creates a new extraction processor
func NewExtractionProcessor(cfg *ProcessorConfig) (*ExtractionProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}

	if cfg.OCRBackfill && (cfg.Recognizer == nil || cfg.Fetcher == nil) {
		return nil, fmt.Errorf("OCR backfill requires a recognizer and a fetcher")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("processor")
	}

	return &ExtractionProcessor{
		parser:     cfg.Parser,
		store:      cfg.Store,
		recognizer: cfg.Recognizer,
		fetcher:    cfg.Fetcher,
		backfill:   cfg.OCRBackfill,
		logger:     logger,
	}, nil
}

// ProcessJob runs the extraction pipeline for one job
func (p *ExtractionProcessor) ProcessJob(ctx context.Context, req *ExtractRequest) (*ExtractResult, error) {
	startTime := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	log := p.logger.With("job_id", req.JobID, "form_type_id", req.FormConfig.FormTypeID)
	log.Info("Starting extraction pipeline",
		"points", len(req.FormConfig.ExtractPoint), "images", len(req.Images), "ocr_outputs", len(req.OcrOutputs))

	// Step 1: OCR backfill
	outputs := req.OcrOutputs
	if missing := ocr.Missing(req.Images, outputs); len(missing) > 0 {
		if p.backfill {
			log.Info("Step 1: Backfilling OCR", "missing", len(missing))
			var err error
			outputs, err = ocr.Backfill(ctx, p.recognizer, p.fetcher, req.Images, outputs)
			if err != nil {
				return nil, tagError(err, req)
			}
		} else {
			log.Warn("Step 1: Images without OCR output", "image_ids", missing)
		}
	}

	// Step 2: Classification summary
	groups := summarizeGroups(req.FormConfig)
	if unclassified := unclassifiedFields(req.FormConfig); len(unclassified) > 0 {
		log.Warn("Step 2: Points match no processing group", "document_fields", unclassified)
	}
	log.Debug("Step 2: Classified extraction points", "groups", len(groups))

	// Step 3: Dispatch
	contents, err := p.parser.Parse(ctx, req.Images, outputs, req.FormConfig)
	if err != nil {
		return nil, tagError(err, req)
	}

	result := &ExtractResult{
		RunID:            uuid.New().String(),
		FormTypeID:       req.FormConfig.FormTypeID,
		Contents:         contents,
		Groups:           groups,
		EmptyFields:      countEmpty(contents),
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	}

	// Step 4: Persist
	if p.store != nil {
		run := &storage.RunRecord{
			ID:               result.RunID,
			JobID:            req.JobID,
			FormTypeID:       result.FormTypeID,
			Contents:         result.Contents,
			Groups:           result.Groups,
			EmptyFields:      result.EmptyFields,
			ProcessingTimeMs: result.ProcessingTimeMs,
		}
		if err := p.store.SaveRun(ctx, run); err != nil {
			return nil, exterrors.NewStorageFailedError(req.JobID, err).WithJob(req.JobID, req.FormConfig.FormTypeID)
		}
	}

	log.Info("Extraction completed",
		"run_id", result.RunID, "contents", len(result.Contents),
		"empty_fields", result.EmptyFields, "processing_time_ms", result.ProcessingTimeMs)

	return result, nil
}

// UpdateJobStatus updates job status in the result store
func (p *ExtractionProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	if p.store == nil {
		return nil
	}

	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if runID, ok := metadata["run_id"].(string); ok {
			update.RunID = runID
		}
		if formTypeID, ok := metadata["form_type_id"].(string); ok {
			update.FormTypeID = formTypeID
		}
		if processingTime, ok := metadata["processing_time_ms"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if errorCode, ok := metadata["error_code"].(string); ok {
			update.ErrorCode = errorCode
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			if update.ErrorCode == "" {
				update.ErrorCode = "PROCESSING_ERROR"
			}
			update.ErrorMessage = errorMsg
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

func validateRequest(req *ExtractRequest) error {
	if req == nil {
		return exterrors.NewInvalidRequestError("", "request is required")
	}
	if req.JobID == "" {
		return exterrors.NewInvalidRequestError("", "job ID is required")
	}
	if req.FormConfig.FormTypeID == "" {
		return exterrors.NewInvalidRequestError(req.JobID, "form_type_id is required")
	}
	for i, point := range req.FormConfig.ExtractPoint {
		if point.DocumentField == "" {
			return exterrors.NewInvalidRequestError(req.JobID, fmt.Sprintf("extract_point[%d] has no document_field", i))
		}
	}
	return nil
}

// tagError attaches job identity to extraction errors and passes others through
func tagError(err error, req *ExtractRequest) error {
	var extractionErr *exterrors.ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr.WithJob(req.JobID, req.FormConfig.FormTypeID)
	}
	return err
}

// summarizeGroups maps each processing group to the document fields it contains
func summarizeGroups(cfg model.FormConfig) map[string][]string {
	batches := classify.DivideIntoGroups(cfg.ExtractPoint, cfg.MultiPage)
	groups := make(map[string][]string, len(batches))
	for group, points := range batches {
		fields := make([]string, len(points))
		for i, point := range points {
			fields[i] = point.DocumentField
		}
		groups[string(group)] = fields
	}
	return groups
}

func unclassifiedFields(cfg model.FormConfig) []string {
	var fields []string
	for _, point := range cfg.ExtractPoint {
		if len(classify.Classify(point, cfg.MultiPage)) == 0 {
			fields = append(fields, point.DocumentField)
		}
	}
	return fields
}

func countEmpty(contents []model.Content) int {
	n := 0
	for _, c := range contents {
		if c.Empty() {
			n++
		}
	}
	return n
}
