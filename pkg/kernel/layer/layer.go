// Package layer implements definition-time layers: a base directive list,
// a bundle table and an optional parent, composed into one raw directive
// sequence per apply.
package layer

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
)

// ErrUnknownBundle is the sentinel wrapped by UnknownBundleError.
var ErrUnknownBundle = errors.New("unknown bundle")

// UnknownBundleError names a requested bundle absent from every layer in
// the chain.
type UnknownBundleError struct {
	Bundle string
	Layer  string
}

// Error implements the error interface.
func (e *UnknownBundleError) Error() string {
	return fmt.Sprintf("unknown bundle %q requested from layer %q", e.Bundle, e.Layer)
}

// Unwrap returns ErrUnknownBundle.
func (e *UnknownBundleError) Unwrap() error { return ErrUnknownBundle }

// BundleTable maps bundle names to raw directive lists.
type BundleTable map[string][]any

// ResolveFunc overrides a layer's composition. super runs the default
// composition so an override can reorder, drop or duplicate its output.
//
// When the layer is reached as an ancestor, rc carries no bundles: bundles
// are looked up by the requested layer and composed there, so an ancestor's
// override never sees which bundles were requested.
type ResolveFunc func(rc *directive.Context, super func() ([]any, error)) ([]any, error)

// Options configures New.
type Options struct {
	Parent  *Layer
	Base    []any
	Bundles BundleTable
	Resolve ResolveFunc
}

// Layer is immutable once built and safe to share across concurrent applies.
type Layer struct {
	name    string
	parent  *Layer
	base    []any
	bundles BundleTable
	resolve ResolveFunc
}

// New builds a layer. Base and bundle lists are copied.
func New(name string, opts Options) (*Layer, error) {
	if name == "" {
		return nil, fmt.Errorf("layer: empty name")
	}
	for p := opts.Parent; p != nil; p = p.parent {
		if p.name == name {
			return nil, fmt.Errorf("layer %q: name already used by ancestor", name)
		}
	}
	l := &Layer{
		name:    name,
		parent:  opts.Parent,
		base:    slices.Clone(opts.Base),
		bundles: make(BundleTable, len(opts.Bundles)),
		resolve: opts.Resolve,
	}
	for k, v := range opts.Bundles {
		l.bundles[k] = slices.Clone(v)
	}
	return l, nil
}

// MustNew is New for package-level definitions; it panics on error.
func MustNew(name string, opts Options) *Layer {
	l, err := New(name, opts)
	if err != nil {
		panic(err)
	}
	return l
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// Parent returns the parent layer, or nil.
func (l *Layer) Parent() *Layer { return l.parent }

// Base returns a copy of the layer's own base list.
func (l *Layer) Base() []any { return slices.Clone(l.base) }

// Chain returns the ancestry root first, ending with l.
func (l *Layer) Chain() []*Layer {
	var chain []*Layer
	for p := l; p != nil; p = p.parent {
		chain = append(chain, p)
	}
	slices.Reverse(chain)
	return chain
}

// BundleNames returns every bundle name visible from l, sorted.
func (l *Layer) BundleNames() []string {
	seen := make(map[string]struct{})
	for p := l; p != nil; p = p.parent {
		for name := range p.bundles {
			seen[name] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// LookupBundle finds name in this layer, then in its ancestors.
func (l *Layer) LookupBundle(name string) ([]any, bool) {
	for p := l; p != nil; p = p.parent {
		if raw, ok := p.bundles[name]; ok {
			return slices.Clone(raw), true
		}
	}
	return nil, false
}

// CheckBundles fails on the first requested name no layer defines.
func (l *Layer) CheckBundles(names []string) error {
	for _, name := range names {
		if _, ok := l.LookupBundle(name); !ok {
			return &UnknownBundleError{Bundle: name, Layer: l.name}
		}
	}
	return nil
}

// Resolve produces the flat raw directive sequence for rc. It uses the
// override when one was configured, and Compose otherwise.
func (l *Layer) Resolve(rc *directive.Context) ([]any, error) {
	if l.resolve != nil {
		return l.resolve(rc, func() ([]any, error) { return l.Compose(rc) })
	}
	return l.Compose(rc)
}

// Compose is the default composition: the parent's resolution (without
// bundles), then this layer's base list, then each requested bundle in
// request order. Repeated bundle names are emitted again. Each source is
// normalized on its own so an argument list can never attach to a name
// from the previous source.
func (l *Layer) Compose(rc *directive.Context) ([]any, error) {
	if err := l.CheckBundles(rc.Bundles); err != nil {
		return nil, err
	}
	var out []any
	if l.parent != nil {
		inherited, err := l.parent.Resolve(rc.WithoutBundles())
		if err != nil {
			return nil, fmt.Errorf("layer %s: parent %s: %w", l.name, l.parent.name, err)
		}
		out = append(out, inherited...)
	}
	base, err := directive.Normalize(l.base)
	if err != nil {
		return nil, fmt.Errorf("layer %s: base: %w", l.name, err)
	}
	out = appendDirectives(out, base)
	for _, name := range rc.Bundles {
		raw, _ := l.LookupBundle(name)
		ds, err := directive.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("layer %s: bundle %s: %w", l.name, name, err)
		}
		out = appendDirectives(out, ds)
	}
	return out, nil
}

func appendDirectives(out []any, ds []directive.Directive) []any {
	for _, d := range ds {
		out = append(out, d)
	}
	return out
}
