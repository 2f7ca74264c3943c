package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownModel is returned when a model identifier is not in the catalog.
var ErrUnknownModel = errors.New("catalog: unknown model")

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// catalogFile is the YAML structure of a catalog file.
type catalogFile struct {
	Version string             `yaml:"version"`
	Models  []*ModelDescriptor `yaml:"models"`
}

// Registry is the immutable model catalog. No locking is needed after load;
// all access is read-only.
type Registry struct {
	models  map[string]*ModelDescriptor
	ordered []*ModelDescriptor
}

// Load reads the catalog from the given path. An empty path loads the
// embedded default catalog. A malformed catalog is a fatal startup error,
// not something to recover from per-request.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Parse(defaultCatalogYAML)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from raw catalog YAML.
func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("model catalog contains no models")
	}

	r := &Registry{
		models:  make(map[string]*ModelDescriptor, len(file.Models)),
		ordered: make([]*ModelDescriptor, 0, len(file.Models)),
	}

	for _, desc := range file.Models {
		if err := desc.validate(); err != nil {
			return nil, err
		}
		if _, exists := r.models[desc.ID]; exists {
			return nil, fmt.Errorf("duplicate model id %q in catalog", desc.ID)
		}
		r.models[desc.ID] = desc
		r.ordered = append(r.ordered, desc)
	}

	return r, nil
}

// Resolve returns the descriptor for a model identifier.
func (r *Registry) Resolve(modelID string) (*ModelDescriptor, error) {
	desc, ok := r.models[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return desc, nil
}

// List returns descriptors in catalog order, optionally filtered by provider.
// An empty filter returns all models.
func (r *Registry) List(filter ProviderTag) []*ModelDescriptor {
	if filter == "" {
		out := make([]*ModelDescriptor, len(r.ordered))
		copy(out, r.ordered)
		return out
	}

	var out []*ModelDescriptor
	for _, desc := range r.ordered {
		if desc.Provider == filter {
			out = append(out, desc)
		}
	}
	return out
}

// Len returns the number of models in the catalog.
func (r *Registry) Len() int {
	return len(r.ordered)
}
