package chat

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderConfig holds the connection settings of one provider.
type ProviderConfig struct {
	Endpoint string
	APIKey   string
}

// RegistryConfig configures the built-in providers.
type RegistryConfig struct {
	Ollama   ProviderConfig
	LMStudio ProviderConfig
	OpenAI   ProviderConfig
	Groq     ProviderConfig
	Retry    RetryPolicy
}

// Registry holds providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// BuildRegistry registers the four built-in providers, each wrapped in a
// Retrying decorator.
func BuildRegistry(cfg RegistryConfig, opts ...Option) *Registry {
	r := NewRegistry()
	for _, p := range []Provider{
		NewOllamaProvider(cfg.Ollama.Endpoint, opts...),
		NewLMStudio(cfg.LMStudio.Endpoint, opts...),
		NewOpenAI(cfg.OpenAI.APIKey, opts...),
		NewGroq(cfg.Groq.APIKey, opts...),
	} {
		r.Register(NewRetrying(p, cfg.Retry))
	}
	return r
}

// Register adds or replaces a provider under its Name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered provider names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
