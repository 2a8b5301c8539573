package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by [Registry.CreateSTT] when no factory
// has been registered under the requested backend name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// STTFactory builds a transcription backend from its configuration block.
type STTFactory func(STTConfig) (stt.Provider, error)

// Registry maps backend names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]STTFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stt: make(map[string]STTFactory)}
}

// RegisterSTT registers factory under name, replacing any previous one.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateSTT instantiates the backend registered under entry.Name.
func (r *Registry) CreateSTT(entry STTConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create stt/%q: %w", entry.Name, err)
	}
	return p, nil
}

// STTNames returns the registered backend names in sorted order.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stt))
	for name := range r.stt {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
