package resolver

import (
	"fmt"

	exterrors "github.com/adverant/nexus/formextract-worker/internal/errors"
	"github.com/adverant/nexus/formextract-worker/internal/model"
)

// Registry is an ordered, read-only set of resolvers
type Registry struct {
	resolvers []Resolver
}

// NewRegistry creates a registry; lookup order is the argument order
func NewRegistry(resolvers ...Resolver) (*Registry, error) {
	if len(resolvers) == 0 {
		return nil, exterrors.NewNoResolverAvailableError("registry has no resolvers")
	}
	for i, r := range resolvers {
		if r == nil {
			return nil, fmt.Errorf("resolver at position %d is nil", i)
		}
	}

	return &Registry{resolvers: append([]Resolver(nil), resolvers...)}, nil
}

// Find returns the first resolver supporting point, or nil
func (r *Registry) Find(point model.ExtractionPoint) Resolver {
	for _, candidate := range r.resolvers {
		if candidate.Support(point) {
			return candidate
		}
	}
	return nil
}

// Names lists resolver names in lookup order
func (r *Registry) Names() []string {
	names := make([]string, len(r.resolvers))
	for i, candidate := range r.resolvers {
		names[i] = candidate.Name()
	}
	return names
}

// Len returns the number of registered resolvers
func (r *Registry) Len() int {
	return len(r.resolvers)
}
