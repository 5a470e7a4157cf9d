package provider

import (
	"context"
	"fmt"
	"sync"
)

// Factory constructs a provider instance. The CLI supplies one factory per
// built-in provider; the registry instantiates and configures them on
// demand so unused providers cost nothing.
type Factory func() Provider

// Registry manages the lifecycle of providers: instantiation, settings
// from the declaration's provider blocks, and lookup by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	settings  map[string]map[string]string
	providers map[string]Provider
}

func NewRegistry(factories map[string]Factory) *Registry {
	return &Registry{
		factories: factories,
		settings:  make(map[string]map[string]string),
		providers: make(map[string]Provider),
	}
}

// SetSettings records the provider block settings applied at load time.
// It must be called before Load.
func (r *Registry) SetSettings(name string, settings map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[name] = settings
}

// Load instantiates and configures the named provider. Loading an already
// loaded provider is a no-op.
func (r *Registry) Load(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	factory, ok := r.factories[name]
	if !ok {
		return fmt.Errorf("unknown provider: %s", name)
	}

	p := factory()
	if err := p.Configure(ctx, r.settings[name]); err != nil {
		return fmt.Errorf("failed to configure provider %s: %w", name, err)
	}

	r.providers[name] = p
	return nil
}

// Get returns a loaded provider.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
