/**
 * Tesseract OCR - backfill for images without an upstream OCR output
 *
 * Simple, free, offline OCR using Tesseract. Text lines become OcrOutput
 * blocks with their bounding boxes.
 */

package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/formextract-worker/internal/model"
)

// Config holds Tesseract configuration
type Config struct {
	Language string
}

// Engine recognizes text lines with Tesseract
type Engine struct {
	language string
}

// New creates a new Tesseract engine
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	language := cfg.Language
	if language == "" {
		language = "eng"
	}

	return &Engine{language: language}, nil
}

// Recognize runs OCR on image bytes and returns an output named imageName
func (e *Engine) Recognize(ctx context.Context, imageName string, data []byte) (*model.OcrOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// gosseract clients are not safe for concurrent use
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(e.language, "+")...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	out := &model.OcrOutput{
		ImageName: imageName,
		Blocks:    toBlocks(boxes),
	}

	// Size is best effort; formats the image package cannot decode leave it at zero
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		out.Width = cfg.Width
		out.Height = cfg.Height
	}

	return out, nil
}

func toBlocks(boxes []gosseract.BoundingBox) []model.TextBlock {
	blocks := make([]model.TextBlock, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		blocks = append(blocks, model.TextBlock{
			Text:       text,
			Confidence: b.Confidence / 100,
			Box: model.BoundingBox{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
		})
	}
	return blocks
}
