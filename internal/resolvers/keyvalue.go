package resolvers

import (
	"context"
	"strings"

	"github.com/adverant/nexus/formextract-worker/internal/classify"
	"github.com/adverant/nexus/formextract-worker/internal/geometry"
	"github.com/adverant/nexus/formextract-worker/internal/model"
	"github.com/adverant/nexus/formextract-worker/internal/resolver"
)

// keySeparators are trimmed between a label and its value
const keySeparators = " \t:：="

// KeyValueLine reads "label: value" pairs from single OCR text lines
type KeyValueLine struct {
	support func(model.ExtractionPoint) bool
}

// NewKeyValueLine creates the line resolver for plain text line points
func NewKeyValueLine() *KeyValueLine {
	return &KeyValueLine{
		support: resolver.GroupMatcher(true, classify.MultipageTextLineString),
	}
}

func (k *KeyValueLine) Name() string { return "key_value_line" }

// Support accepts text/line/string points without nearby markers. Points are
// matched with multi-page semantics so single page forms are accepted too.
func (k *KeyValueLine) Support(point model.ExtractionPoint) bool {
	return k.support(point)
}

// Resolve scans OCR lines in order for the first label and returns the text after it
func (k *KeyValueLine) Resolve(ctx context.Context, rc *resolver.Context) (*model.Content, error) {
	labels := labelsFor(rc.Point)

	for _, block := range rc.OCR.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, label := range labels {
			idx := strings.Index(block.Text, label)
			if idx < 0 {
				continue
			}
			value := strings.TrimSpace(strings.TrimLeft(block.Text[idx+len(label):], keySeparators))
			if value == "" {
				continue
			}

			box := blockBox(block.Box)
			content := model.NewContent(rc.Image.ImageID, rc.Point)
			content.ValueInfo = append(content.ValueInfo, model.Field{
				Key:        rc.Point.DocumentField,
				Value:      value,
				Confidence: block.Confidence,
				Box:        &box,
			})
			return &content, nil
		}
	}

	return nil, resolver.ErrNoValue
}

// labelsFor lists the aliases followed by the field name
func labelsFor(point model.ExtractionPoint) []string {
	labels := make([]string, 0, len(point.Alias)+1)
	for _, alias := range point.Alias {
		if alias = strings.TrimSpace(alias); alias != "" {
			labels = append(labels, alias)
		}
	}
	if point.DocumentField != "" {
		labels = append(labels, point.DocumentField)
	}
	return labels
}

func blockBox(b model.BoundingBox) geometry.Box {
	return geometry.Box{
		TopLeft:     geometry.Point{Row: b.Y, Col: b.X},
		BottomRight: geometry.Point{Row: b.Y + b.Height, Col: b.X + b.Width},
	}
}
