package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ProviderFactory builds a provider bound to one model id.
type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry maps provider names ("openai", "openrouter", "ollama") to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Has(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}

// ForModel routes a model id through the catalog to its provider. Ids the
// catalog does not know (e.g. a model removed since the user picked it) use the
// catalog default.
func (r *Registry) ForModel(ctx context.Context, catalog *Catalog, modelID string) (Provider, ModelInfo, error) {
	info, ok := catalog.Model(modelID)
	if !ok {
		info, ok = catalog.Model(catalog.DefaultModel())
		if !ok {
			return nil, ModelInfo{}, fmt.Errorf("no model available for %q", modelID)
		}
	}
	p, err := r.Get(ctx, info.Provider, info.ID)
	if err != nil {
		return nil, info, err
	}
	return p, info, nil
}
