// Package extension provides the registration surface for post-provisioning
// hooks and named document sources.
//
// A Registry is an explicit object created per run and handed to the
// provisioner; extensions only ever see it through the Registrar interface.
package extension

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/mongopenter/ports"
)

// EventSetupComplete fires once provisioning has finished without error.
const EventSetupComplete = "setupComplete"

// Hook handles an event with a live connection. The connection is owned by
// the caller and closed after all hooks have run.
type Hook func(ctx context.Context, conn ports.Conn) error

// Source produces the query and document of a named document reference.
// It is called with no arguments every time the reference is resolved.
type Source func() (query any, doc any, err error)

// Registrar is the handle an extension receives at load time.
type Registrar interface {
	// On registers a hook for an event. Hooks run in registration order.
	On(event string, hook Hook)

	// Source registers a named document source that docs entries may
	// reference by name.
	Source(name string, src Source)
}

// Factory instantiates a compiled-in extension against a registrar.
type Factory func(r Registrar) error

// Registry holds hooks by event and document sources by name.
type Registry struct {
	mu      sync.RWMutex
	hooks   map[string][]Hook
	sources map[string]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		hooks:   make(map[string][]Hook),
		sources: make(map[string]Source),
	}
}

// On registers a hook handler.
func (r *Registry) On(event string, hook Hook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[event] = append(r.hooks[event], hook)
}

// Source registers a document source. A later registration replaces an
// earlier one with the same name.
func (r *Registry) Source(name string, src Source) {
	if src == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = src
}

// Hooks returns a copy of the hooks registered for event.
func (r *Registry) Hooks(event string) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hooks := r.hooks[event]
	if len(hooks) == 0 {
		return nil
	}
	out := make([]Hook, len(hooks))
	copy(out, hooks)
	return out
}

// Lookup returns the named document source.
func (r *Registry) Lookup(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[name]
	return src, ok
}

// Catalog maps extension names to their factories.
type Catalog map[string]Factory

// Load instantiates the named extension against the registrar.
func (c Catalog) Load(name string, r Registrar) (bool, error) {
	factory, ok := c[name]
	if !ok {
		return false, nil
	}
	if err := factory(r); err != nil {
		return true, fmt.Errorf("extension %q: %w", name, err)
	}
	return true, nil
}

// Ensure interface compliance.
var _ Registrar = (*Registry)(nil)
