package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
)

// DefaultType is used for credentials that do not name a provider.
const DefaultType = "openai"

// Registry maps provider types to factories. It is built once at startup
// and passed to the components that need it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	opts      Options
}

// NewRegistry creates an empty registry whose clients share opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		opts:      opts,
	}
}

// Register adds or replaces a factory.
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[f.Type] = f
}

// IsRegistered reports whether a provider type has a factory.
func (r *Registry) IsRegistered(providerType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[providerType]
	return ok
}

// Types lists the registered provider types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New creates a client for cred. Each call returns a fresh client.
func (r *Registry) New(cred domain.Credential) (ports.ModelProvider, error) {
	providerType := cred.Provider
	if providerType == "" {
		providerType = DefaultType
	}

	r.mu.RLock()
	f, ok := r.factories[providerType]
	opts := r.opts
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}

	p, err := f.Create(cred, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}
	return p, nil
}
