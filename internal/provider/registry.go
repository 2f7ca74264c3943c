package provider

import (
	"errors"
	"fmt"

	"github.com/mandalnilabja/streamgate/internal/catalog"
)

// ErrNoAdapter is returned when no adapter is configured for a provider tag.
var ErrNoAdapter = errors.New("provider: no adapter configured")

// Registry is the closed set of adapters keyed by provider tag. Dispatch is
// by the model descriptor's tag; there is no open-ended plugin mechanism.
type Registry struct {
	adapters map[catalog.ProviderTag]Adapter
}

// NewRegistry builds a registry from the given adapters. Registering two
// adapters for the same tag is a programming error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[catalog.ProviderTag]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, dup := r.adapters[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate adapter for provider %q", a.Name())
		}
		r.adapters[a.Name()] = a
	}
	return r, nil
}

// For returns the adapter serving the given provider tag.
func (r *Registry) For(tag catalog.ProviderTag) (Adapter, error) {
	a, ok := r.adapters[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, tag)
	}
	return a, nil
}

// Tags returns the tags with a configured adapter.
func (r *Registry) Tags() []catalog.ProviderTag {
	tags := make([]catalog.ProviderTag, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	return tags
}
