package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/nutrivision/internal/vision"
	"github.com/MrWong99/nutrivision/pkg/provider/live"
	"github.com/MrWong99/nutrivision/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to constructors for each provider kind. It is
// safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	vision map[string]func(ProviderEntry) (vision.Hinter, error)
	live   map[string]func(ProviderEntry) (live.Provider, error)
	llm    map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vision: make(map[string]func(ProviderEntry) (vision.Hinter, error)),
		live:   make(map[string]func(ProviderEntry) (live.Provider, error)),
		llm:    make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterVision registers a frame-hint backend factory under name. A later
// registration under the same name replaces the earlier one.
func (r *Registry) RegisterVision(name string, factory func(ProviderEntry) (vision.Hinter, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vision[name] = factory
}

// RegisterLive registers a live refinement backend factory under name.
func (r *Registry) RegisterLive(name string, factory func(ProviderEntry) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterLLM registers an LLM factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateVision builds the frame-hint backend named by entry.Name.
func (r *Registry) CreateVision(entry ProviderEntry) (vision.Hinter, error) {
	return create(r, r.vision, "vision", entry)
}

// CreateLive builds the live refinement backend named by entry.Name.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	return create(r, r.live, "live", entry)
}

// CreateLLM builds the LLM named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}
