/**
 * Resolver contract for FormExtract Worker
 *
 * A resolver extracts the value of one extraction point from one image and
 * its OCR output. Resolvers are looked up in a Registry by Support.
 */

package resolver

import (
	"context"
	"errors"

	"github.com/adverant/nexus/formextract-worker/internal/classify"
	"github.com/adverant/nexus/formextract-worker/internal/model"
)

// ErrNoValue reports that the resolver ran but found nothing for the point
var ErrNoValue = errors.New("resolver: no value found")

// Context carries everything a resolver may need for one invocation
type Context struct {
	Image      model.Image
	OCR        model.OcrOutput
	Point      model.ExtractionPoint
	Images     []model.Image
	FormTypeID string
}

// Resolver extracts extraction point values
type Resolver interface {
	Name() string
	Support(point model.ExtractionPoint) bool
	// Resolve returns the content for rc.Point on rc.Image.
	// A nil content or ErrNoValue both mean "no value".
	Resolve(ctx context.Context, rc *Context) (*model.Content, error)
}

// Func builds a Resolver from plain functions
type Func struct {
	ResolverName string
	SupportFunc  func(point model.ExtractionPoint) bool
	ResolveFunc  func(ctx context.Context, rc *Context) (*model.Content, error)
}

func (f Func) Name() string { return f.ResolverName }

func (f Func) Support(point model.ExtractionPoint) bool {
	return f.SupportFunc != nil && f.SupportFunc(point)
}

func (f Func) Resolve(ctx context.Context, rc *Context) (*model.Content, error) {
	if f.ResolveFunc == nil {
		return nil, ErrNoValue
	}
	return f.ResolveFunc(ctx, rc)
}

// GroupMatcher returns a Support predicate accepting points that classify into any of groups
func GroupMatcher(multiPage bool, groups ...classify.Group) func(model.ExtractionPoint) bool {
	return func(point model.ExtractionPoint) bool {
		for _, g := range groups {
			if classify.In(point, multiPage, g) {
				return true
			}
		}
		return false
	}
}
