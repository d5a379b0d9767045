// Package unit defines the contract capability units implement and the
// registry that resolves unit names at apply time.
package unit

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrUnitNotFound is returned by Lookup implementations for unknown names.
var ErrUnitNotFound = errors.New("unit not found")

// Consumer is the context units activate into. The engine treats it as an
// opaque handle and only passes it through.
type Consumer interface {
	ID() string
}

// Unit is a named capability that can be enabled in a consumer.
type Unit interface {
	Activate(c Consumer, args []any) error
}

// Deactivator is implemented by units that support disable directives.
type Deactivator interface {
	Deactivate(c Consumer, args []any) error
}

// Versioned is implemented by units that report a version. An empty string
// means the unit has no version.
type Versioned interface {
	Version() string
}

// Lookup resolves a unit name to an implementation. It stands in for
// whatever loader or namespace service the host uses.
type Lookup interface {
	Lookup(name string) (Unit, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(name string) (Unit, error)

// Lookup calls f.
func (f LookupFunc) Lookup(name string) (Unit, error) { return f(name) }

// Registry is a name → unit table. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	units map[string]Unit
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]Unit)}
}

// Register adds u under name. Registering the same name twice is an error.
func (r *Registry) Register(name string, u Unit) error {
	if name == "" {
		return fmt.Errorf("register unit: empty name")
	}
	if u == nil {
		return fmt.Errorf("register unit %q: nil unit", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.units[name]; exists {
		return fmt.Errorf("register unit %q: already registered", name)
	}
	r.units[name] = u
	return nil
}

// MustRegister is Register for static setup code; it panics on error.
func (r *Registry) MustRegister(name string, u Unit) {
	if err := r.Register(name, u); err != nil {
		panic(err)
	}
}

// Lookup implements Lookup.
func (r *Registry) Lookup(name string) (Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, name)
	}
	return u, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.units))
	for n := range r.units {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
