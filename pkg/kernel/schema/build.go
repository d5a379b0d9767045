package schema

import (
	"fmt"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
	"github.com/ormasoftchile/loadout/pkg/kernel/eval"
	"github.com/ormasoftchile/loadout/pkg/kernel/layer"
	"github.com/ormasoftchile/loadout/pkg/kernel/unit"
)

// Set is the built form of a Document: one immutable layer per LayerDef.
type Set struct {
	Doc    *Document
	layers map[string]*layer.Layer
	order  []string
}

// Build constructs every layer of doc, parents first. Unknown parents and
// parent cycles are errors. $generate mappings become generators.
func Build(doc *Document) (*Set, error) {
	defs := make(map[string]*LayerDef, len(doc.Layers))
	for i := range doc.Layers {
		def := &doc.Layers[i]
		if _, dup := defs[def.Name]; dup {
			return nil, fmt.Errorf("layer %q defined twice", def.Name)
		}
		defs[def.Name] = def
	}

	s := &Set{Doc: doc, layers: make(map[string]*layer.Layer, len(defs))}
	building := make(map[string]bool)

	var build func(name string) (*layer.Layer, error)
	build = func(name string) (*layer.Layer, error) {
		if l, ok := s.layers[name]; ok {
			return l, nil
		}
		def, ok := defs[name]
		if !ok {
			return nil, fmt.Errorf("unknown layer %q", name)
		}
		if building[name] {
			return nil, fmt.Errorf("layer %q: parent cycle", name)
		}
		building[name] = true
		defer delete(building, name)

		var parent *layer.Layer
		if def.Parent != "" {
			p, err := build(def.Parent)
			if err != nil {
				return nil, fmt.Errorf("layer %q: parent: %w", name, err)
			}
			parent = p
		}
		base, err := CompileDirectives(def.Directives)
		if err != nil {
			return nil, fmt.Errorf("layer %q: directives: %w", name, err)
		}
		bundles := make(layer.BundleTable, len(def.Bundles))
		for bname, raw := range def.Bundles {
			compiled, err := CompileDirectives(raw)
			if err != nil {
				return nil, fmt.Errorf("layer %q: bundle %q: %w", name, bname, err)
			}
			bundles[bname] = compiled
		}
		l, err := layer.New(name, layer.Options{Parent: parent, Base: base, Bundles: bundles})
		if err != nil {
			return nil, err
		}
		s.layers[name] = l
		return l, nil
	}

	for _, def := range doc.Layers {
		if _, err := build(def.Name); err != nil {
			return nil, err
		}
		s.order = append(s.order, def.Name)
	}
	return s, nil
}

// CompileDirectives replaces {"$generate": {...}} mappings in raw, at any
// depth of generator nesting, with compiled generators.
func CompileDirectives(raw []any) ([]any, error) {
	out := make([]any, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		body, isGen := m[GenerateKey]
		if !isGen {
			out = append(out, item)
			continue
		}
		if len(m) != 1 {
			return nil, fmt.Errorf("[%d]: %s must be the only key", i, GenerateKey)
		}
		spec, err := decodeGenerator(body)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		nested, err := CompileDirectives(spec.Directives)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		spec.Directives = nested
		gen, err := eval.CompileGenerator(spec)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, gen)
	}
	return out, nil
}

func decodeGenerator(body any) (eval.GeneratorSpec, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return eval.GeneratorSpec{}, fmt.Errorf("%s: expected a mapping, got %T", GenerateKey, body)
	}
	var spec eval.GeneratorSpec
	for k, v := range m {
		switch k {
		case "when":
			s, ok := v.(string)
			if !ok {
				return spec, fmt.Errorf("%s.when: expected a string, got %T", GenerateKey, v)
			}
			spec.When = s
		case "directives":
			list, ok := v.([]any)
			if !ok && v != nil {
				return spec, fmt.Errorf("%s.directives: expected a list, got %T", GenerateKey, v)
			}
			spec.Directives = list
		default:
			return spec, fmt.Errorf("%s: unknown field %q", GenerateKey, k)
		}
	}
	return spec, nil
}

// Layer returns the named layer.
func (s *Set) Layer(name string) (*layer.Layer, bool) {
	l, ok := s.layers[name]
	return l, ok
}

// Names returns layer names in document order.
func (s *Set) Names() []string { return append([]string(nil), s.order...) }

// Default returns meta.default_layer, or the last layer in the document.
func (s *Set) Default() (*layer.Layer, error) {
	name := s.Doc.Meta.DefaultLayer
	if name == "" {
		if len(s.order) == 0 {
			return nil, fmt.Errorf("document defines no layers")
		}
		name = s.order[len(s.order)-1]
	}
	l, ok := s.layers[name]
	if !ok {
		return nil, fmt.Errorf("default layer %q not defined", name)
	}
	return l, nil
}

// Pick returns the named layer, or the default when name is empty.
func (s *Set) Pick(name string) (*layer.Layer, error) {
	if name == "" {
		return s.Default()
	}
	l, ok := s.layers[name]
	if !ok {
		return nil, fmt.Errorf("unknown layer %q", name)
	}
	return l, nil
}

// Registry builds stub units from the document's units section, with
// overrides replacing entries by name. When stubMissing is set, every
// target named by a static directive of l that has no declared unit gets a
// plain stub so a dry apply can run end to end.
func (s *Set) Registry(l *layer.Layer, overrides map[string]UnitDef, stubMissing bool) (*unit.Registry, error) {
	defs := make(map[string]UnitDef, len(s.Doc.Units)+len(overrides))
	for name, def := range s.Doc.Units {
		defs[name] = def
	}
	for name, def := range overrides {
		defs[name] = def
	}
	if stubMissing && l != nil {
		for _, target := range staticTargets(l) {
			if _, ok := defs[target]; !ok {
				defs[target] = UnitDef{Deactivate: true}
			}
		}
	}
	reg := unit.NewRegistry()
	for name, def := range defs {
		u := unit.NewStub(unit.StubConfig{
			Name:       name,
			Version:    def.Version,
			Fail:       def.Fail,
			Deactivate: def.Deactivate,
		})
		if err := reg.Register(name, u); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// staticTargets lists targets mentioned by static directives anywhere in
// l's chain, bundles included.
func staticTargets(l *layer.Layer) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(raw []any) {
		ds, err := directive.Normalize(raw)
		if err != nil {
			return
		}
		for _, d := range ds {
			if !d.IsDynamic() && !seen[d.Target] {
				seen[d.Target] = true
				out = append(out, d.Target)
			}
		}
	}
	for _, p := range l.Chain() {
		add(p.Base())
		for _, name := range p.BundleNames() {
			raw, _ := p.LookupBundle(name)
			add(raw)
		}
	}
	return out
}
