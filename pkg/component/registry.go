package component

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a fresh component instance.
type Factory func() Component

type entry struct {
	desc    Descriptor
	factory Factory
}

// Registry maps component type names to their descriptor and factory.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a component type. Registering a name twice is an error.
func (r *Registry) Register(desc Descriptor, factory Factory) error {
	if desc.Name == "" {
		return fmt.Errorf("component descriptor has no name")
	}
	if factory == nil {
		return fmt.Errorf("component %q has no factory", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("component %q already registered", desc.Name)
	}
	r.entries[desc.Name] = entry{desc: desc, factory: factory}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(desc Descriptor, factory Factory) {
	if err := r.Register(desc, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor of a component type.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	return e.desc, nil
}

// New instantiates a component type.
func (r *Registry) New(name string) (Component, Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	return e.factory(), e.desc, nil
}

// Descriptors returns all registered descriptors sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered component types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
