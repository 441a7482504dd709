/**
 * Extraction orchestrator
 *
 * For every extraction point of a form configuration: select a resolver,
 * run it on each image of the point's page and merge the per-image results.
 * Output order always equals configuration order.
 */

package extract

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	exterrors "github.com/adverant/nexus/formextract-worker/internal/errors"
	"github.com/adverant/nexus/formextract-worker/internal/logging"
	"github.com/adverant/nexus/formextract-worker/internal/model"
	"github.com/adverant/nexus/formextract-worker/internal/resolver"
)

// FailurePolicy decides what a missing OCR output does to a run
type FailurePolicy int

const (
	// AbortRun fails the whole Parse call
	AbortRun FailurePolicy = iota
	// IsolatePoint records the failure on the affected point and continues
	IsolatePoint
)

// ParsePolicy maps a configuration value ("abort", "isolate") to a FailurePolicy
func ParsePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "abort":
		return AbortRun, nil
	case "isolate":
		return IsolatePoint, nil
	default:
		return AbortRun, fmt.Errorf("unknown failure policy %q", s)
	}
}

func (p FailurePolicy) String() string {
	if p == IsolatePoint {
		return "isolate"
	}
	return "abort"
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger for degraded-path warnings
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithParallelism processes up to n points concurrently; n <= 1 is sequential
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		o.parallelism = n
	}
}

// WithFailurePolicy sets the missing OCR policy
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(o *Orchestrator) {
		o.policy = policy
	}
}

// Orchestrator dispatches extraction points to resolvers
type Orchestrator struct {
	registry    *resolver.Registry
	logger      *logging.Logger
	parallelism int
	policy      FailurePolicy
}

// NewOrchestrator creates an orchestrator over registry
func NewOrchestrator(registry *resolver.Registry, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, exterrors.NewNoResolverAvailableError("registry is required")
	}

	o := &Orchestrator{
		registry:    registry,
		logger:      logging.NewLogger("extract"),
		parallelism: 1,
		policy:      AbortRun,
	}
	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// run holds the per-call inputs shared by every point
type run struct {
	images     []model.Image
	ocr        map[string]model.OcrOutput
	formTypeID string
}

// Parse extracts every point of cfg. The result has exactly one Content per
// point, in configuration order. Any fatal error discards all results.
func (o *Orchestrator) Parse(ctx context.Context, images []model.Image, ocrOutputs []model.OcrOutput, cfg model.FormConfig) ([]model.Content, error) {
	r := &run{
		images:     images,
		ocr:        indexOCR(ocrOutputs),
		formTypeID: cfg.FormTypeID,
	}
	contents := make([]model.Content, len(cfg.ExtractPoint))

	if o.parallelism <= 1 {
		for i, point := range cfg.ExtractPoint {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			content, err := o.parsePoint(ctx, r, point)
			if err != nil {
				return nil, err
			}
			contents[i] = content
		}
		return contents, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, point := range cfg.ExtractPoint {
		i, point := i, point
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := o.parsePoint(gctx, r, point)
			if err != nil {
				return err
			}
			contents[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return contents, nil
}

func (o *Orchestrator) parsePoint(ctx context.Context, r *run, point model.ExtractionPoint) (model.Content, error) {
	if len(r.images) == 0 {
		o.logger.Warn("extract.no_images", "form_type_id", r.formTypeID, "document_field", point.DocumentField)
		return model.NewContent("", point), nil
	}

	res := o.registry.Find(point)
	if res == nil {
		o.logger.Warn("extract.no_resolver", "form_type_id", r.formTypeID, "document_field", point.DocumentField,
			"value_environment", point.ValueEnvironment, "value_type", point.ValueType)
		return model.NewContent("", point), nil
	}

	var merged *model.Content
	for _, image := range r.images {
		if image.DocumentPage != point.Page {
			continue
		}

		ocr, ok := r.ocr[image.ImageID]
		if !ok {
			missing := exterrors.NewOCRResultMissingError(point.DocumentField, image.ImageID)
			missing.FormTypeID = r.formTypeID
			if o.policy == IsolatePoint {
				o.logger.Warn("extract.ocr_missing", "form_type_id", r.formTypeID, "document_field", point.DocumentField,
					"image_id", image.ImageID)
				content := model.NewContent(image.ImageID, point)
				content.Error = missing.Error()
				return content, nil
			}
			return model.Content{}, missing
		}

		content, err := res.Resolve(ctx, &resolver.Context{
			Image:      image,
			OCR:        ocr,
			Point:      point,
			Images:     r.images,
			FormTypeID: r.formTypeID,
		})
		if err != nil && !errors.Is(err, resolver.ErrNoValue) {
			return model.Content{}, fmt.Errorf("resolver %s failed for %s on image %s: %w",
				res.Name(), point.DocumentField, image.ImageID, err)
		}
		if err != nil || content == nil {
			o.logger.Warn("extract.no_value", "form_type_id", r.formTypeID, "document_field", point.DocumentField,
				"image_id", image.ImageID, "resolver", res.Name())
			empty := model.NewContent(image.ImageID, point)
			content = &empty
		}

		if merged == nil {
			base := *content
			base.ValueInfo = append([]model.Field{}, content.ValueInfo...)
			merged = &base
			continue
		}
		merged.ValueInfo = MergeFields(merged.ValueInfo, content.ValueInfo)
	}

	if merged == nil {
		return model.NewContent("", point), nil
	}
	return *merged, nil
}

// indexOCR keys outputs by image name; the first output for a name wins
func indexOCR(outputs []model.OcrOutput) map[string]model.OcrOutput {
	index := make(map[string]model.OcrOutput, len(outputs))
	for _, out := range outputs {
		if _, ok := index[out.ImageName]; !ok {
			index[out.ImageName] = out
		}
	}
	return index
}
