/**
 * OCR backfill
 *
 * Recognizes the images of a request that arrived without an OCR output so
 * the orchestrator finds one for every image.
 */

package ocr

import (
	"context"
	"fmt"

	exterrors "github.com/adverant/nexus/formextract-worker/internal/errors"
	"github.com/adverant/nexus/formextract-worker/internal/model"
)

// Recognizer turns image bytes into an OCR output
type Recognizer interface {
	Recognize(ctx context.Context, imageName string, data []byte) (*model.OcrOutput, error)
}

// Fetcher loads image bytes
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Backfill returns outputs extended with a recognized output for every image
// that lacks one. Existing outputs are kept in place; new ones follow in image order.
func Backfill(ctx context.Context, engine Recognizer, fetcher Fetcher, images []model.Image, outputs []model.OcrOutput) ([]model.OcrOutput, error) {
	have := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		have[out.ImageName] = true
	}

	result := append([]model.OcrOutput(nil), outputs...)
	for _, image := range images {
		if have[image.ImageID] {
			continue
		}

		url := image.SourceURL()
		if url == "" {
			return nil, exterrors.NewOCRFailedError(image.ImageID, fmt.Errorf("image has no url"))
		}

		data, err := fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, exterrors.NewOCRFailedError(image.ImageID, err)
		}

		out, err := engine.Recognize(ctx, image.ImageID, data)
		if err != nil {
			return nil, exterrors.NewOCRFailedError(image.ImageID, err)
		}

		have[image.ImageID] = true
		result = append(result, *out)
	}

	return result, nil
}

// Missing lists the ids of images without an OCR output
func Missing(images []model.Image, outputs []model.OcrOutput) []string {
	have := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		have[out.ImageName] = true
	}

	var missing []string
	for _, image := range images {
		if !have[image.ImageID] {
			missing = append(missing, image.ImageID)
		}
	}
	return missing
}
