package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Provider hands out models by name.
type Provider interface {
	Model(name string) (Model, error)
}

// Registry maps provider names to providers. It is built once at startup
// and passed to whatever needs models; there is no package-level instance.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Model returns the model handle for a "provider:model" ID.
func (r *Registry) Model(modelID string) (*Resolved, error) {
	provider, name, err := ParseModelID(modelID)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	p, ok := r.providers[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	m, err := p.Model(name)
	if err != nil {
		return nil, fmt.Errorf("llm: model %s: %w", modelID, err)
	}
	return &Resolved{Model: m, Provider: provider, ModelName: name}, nil
}
