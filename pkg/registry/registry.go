// Package registry provides a thread-safe collection of named operations,
// used to resolve the operation names a declarative workflow definition
// references at compile time.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/concierge-sh/concierge/pkg/domain"
)

// Registry manages the available operations.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*domain.Operation
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{ops: make(map[string]*domain.Operation)}
}

// Register adds an operation. An operation with the same name is overwritten.
func (r *Registry) Register(op *domain.Operation) error {
	if op == nil || op.Name == "" {
		return fmt.Errorf("operation must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op.Name] = op
	return nil
}

// RegisterFunc is a convenience wrapper building the operation in place.
func (r *Registry) RegisterFunc(name, description string, fn domain.OperationFunc, args ...domain.ArgSpec) error {
	return r.Register(&domain.Operation{
		Name:        name,
		Description: description,
		Args:        args,
		Handler:     fn,
	})
}

// Get looks up an operation by name.
func (r *Registry) Get(name string) (*domain.Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns the registered operation names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns a snapshot of the registry in the form the workflow compiler
// consumes.
func (r *Registry) Map() map[string]*domain.Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*domain.Operation, len(r.ops))
	for name, op := range r.ops {
		out[name] = op
	}
	return out
}
