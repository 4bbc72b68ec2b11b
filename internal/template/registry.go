package template

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps template names to implementations. Registration happens
// at startup; lookups happen on every grading run.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// Register adds a template. Duplicate names are a wiring bug and fail
// loudly.
func (r *Registry) Register(t Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[t.Name()]; exists {
		return fmt.Errorf("template %q registered twice", t.Name())
	}
	r.templates[t.Name()] = t
	return nil
}

// Get resolves a template by name.
func (r *Registry) Get(name string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return t, nil
}

// Names lists registered templates in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopAll stops every registered template.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.templates {
		t.Stop()
	}
}

// DefaultRegistry returns a registry pre-loaded with the built-in
// templates.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(NewIOBasic())
	return r
}
