/**
 * Reference resolvers
 *
 * Region crops image points from their configured location; KeyValueLine
 * reads labelled values from OCR text lines.
 */

package resolvers

import (
	"context"

	"github.com/adverant/nexus/formextract-worker/internal/geometry"
	"github.com/adverant/nexus/formextract-worker/internal/model"
	"github.com/adverant/nexus/formextract-worker/internal/resolver"
)

// Region resolves image points to the absolute box of their configured location
type Region struct{}

// NewRegion creates the region resolver
func NewRegion() *Region {
	return &Region{}
}

func (r *Region) Name() string { return "region" }

func (r *Region) Support(point model.ExtractionPoint) bool {
	return point.ValueType == model.ValueImg && point.Location != nil
}

// Resolve needs the recognized image size; the value is the "x,y,w,h" crop rectangle
func (r *Region) Resolve(ctx context.Context, rc *resolver.Context) (*model.Content, error) {
	shape := rc.OCR.Shape()
	if shape.Width <= 0 || shape.Height <= 0 {
		return nil, resolver.ErrNoValue
	}

	box := geometry.AbsoluteBox(shape, rc.Point.Location)
	content := model.NewContent(rc.Image.ImageID, rc.Point)
	content.ValueInfo = append(content.ValueInfo, model.Field{
		Key:        rc.Point.DocumentField,
		Value:      box.String(),
		Confidence: 1,
		Box:        &box,
	})

	return &content, nil
}

// Default builds the worker's registry. Region is listed first so located
// image points never fall through to text resolvers.
func Default() (*resolver.Registry, error) {
	return resolver.NewRegistry(NewRegion(), NewKeyValueLine())
}
