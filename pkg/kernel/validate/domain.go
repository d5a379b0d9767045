package validate

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
	"github.com/ormasoftchile/loadout/pkg/kernel/eval"
	"github.com/ormasoftchile/loadout/pkg/kernel/schema"
)

// failureKinds are the values scenario expect.error may take.
var failureKinds = map[string]bool{
	"unknown_bundle":   true,
	"malformed":        true,
	"version_mismatch": true,
	"activation":       true,
	"deactivation":     true,
	"generator":        true,
	"expansion_depth":  true,
}

// validateDomain applies the rules a JSON Schema cannot express.
func validateDomain(doc *schema.Document) []*ValidationError {
	var errs []*ValidationError

	if doc.APIVersion != schema.APIVersion {
		errs = append(errs, errorf("domain", "apiVersion", "unrecognized apiVersion %q, expected %q", doc.APIVersion, schema.APIVersion))
	}

	defs := make(map[string]*schema.LayerDef, len(doc.Layers))
	for i := range doc.Layers {
		l := &doc.Layers[i]
		if _, dup := defs[l.Name]; dup {
			errs = append(errs, errorf("domain", layerPath(i)+".name", "duplicate layer name %q", l.Name))
			continue
		}
		defs[l.Name] = l
	}

	for i, l := range doc.Layers {
		path := layerPath(i)
		if l.Parent != "" {
			if _, ok := defs[l.Parent]; !ok {
				errs = append(errs, errorf("domain", path+".parent", "unknown parent layer %q", l.Parent))
			} else if cyclic(defs, l.Name) {
				errs = append(errs, errorf("domain", path+".parent", "parent chain of %q forms a cycle", l.Name))
			}
		}
		errs = append(errs, checkList(l.Directives, path+".directives", false)...)
		for name, raw := range l.Bundles {
			bpath := fmt.Sprintf("%s.bundles.%s", path, name)
			if strings.TrimSpace(name) == "" {
				errs = append(errs, errorf("domain", bpath, "bundle name must not be empty"))
			}
			if shadowedBy(defs, l.Parent, name) {
				errs = append(errs, warningf("domain", bpath, "bundle %q shadows a bundle of an ancestor layer", name))
			}
			errs = append(errs, checkList(raw, bpath, false)...)
		}
	}

	if name := doc.Meta.DefaultLayer; name != "" {
		if _, ok := defs[name]; !ok {
			errs = append(errs, errorf("domain", "meta.default_layer", "unknown layer %q", name))
		}
	}

	for name, u := range doc.Units {
		if u.Version == "" {
			continue
		}
		if _, err := directive.ParseVersion(u.Version); err != nil {
			errs = append(errs, errorf("domain", "units."+name+".version", "%s", err))
		}
	}

	for i, sc := range doc.Scenarios {
		errs = append(errs, checkScenario(doc, defs, i, sc)...)
	}
	return errs
}

// pending stands in for a $generate block so its neighbours are normalized
// with the same adjacency they have at apply time.
var pending directive.Generator = func(*directive.Context) ([]any, error) { return nil, nil }

// checkList normalizes a raw directive list, descending into $generate
// blocks. Generator lists may not carry ordering markers; entries that are
// templates are only known at apply time and are skipped.
func checkList(raw []any, path string, generated bool) []*ValidationError {
	var errs []*ValidationError
	var static []any
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			static = append(static, item)
			continue
		}
		body, isGen := m[schema.GenerateKey]
		if !isGen {
			static = append(static, item)
			continue
		}
		static = append(static, pending)
		gpath := fmt.Sprintf("%s[%d].%s", path, i, schema.GenerateKey)
		if len(m) != 1 {
			errs = append(errs, errorf("domain", gpath, "%s must be the only key", schema.GenerateKey))
			continue
		}
		spec, ok := body.(map[string]any)
		if !ok {
			errs = append(errs, errorf("domain", gpath, "expected a mapping, got %T", body))
			continue
		}
		if when, _ := spec["when"].(string); when != "" {
			if _, err := eval.CompileCondition(when); err != nil {
				errs = append(errs, errorf("domain", gpath+".when", "%s", err))
			}
		}
		nested, _ := spec["directives"].([]any)
		errs = append(errs, checkList(nested, gpath+".directives", true)...)
	}

	if templated(static) {
		return errs
	}
	var err error
	if generated {
		_, err = directive.NormalizeGenerated(static)
	} else {
		_, err = directive.Normalize(static)
	}
	if err != nil {
		errs = append(errs, errorf("domain", path, "%s", err))
	}
	return errs
}

func checkScenario(doc *schema.Document, defs map[string]*schema.LayerDef, i int, sc schema.Scenario) []*ValidationError {
	var errs []*ValidationError
	path := fmt.Sprintf("scenarios[%d]", i)
	if sc.Name == "" {
		errs = append(errs, errorf("domain", path+".name", "scenario name is required"))
	}
	layerName := sc.Layer
	if layerName == "" {
		layerName = doc.Meta.DefaultLayer
	}
	if layerName == "" && len(doc.Layers) > 0 {
		layerName = doc.Layers[len(doc.Layers)-1].Name
	}
	if _, ok := defs[layerName]; !ok {
		errs = append(errs, errorf("domain", path+".layer", "unknown layer %q", layerName))
		return errs
	}
	if sc.Expect.Error != "" && !failureKinds[sc.Expect.Error] {
		errs = append(errs, errorf("domain", path+".expect.error", "unknown failure kind %q", sc.Expect.Error))
	}
	if sc.Expect.Error != "unknown_bundle" {
		for _, b := range sc.Bundles {
			if !bundleVisible(defs, layerName, b) {
				errs = append(errs, errorf("domain", path+".bundles", "bundle %q is not defined by layer %q or its ancestors", b, layerName))
			}
		}
	}
	return errs
}

func cyclic(defs map[string]*schema.LayerDef, start string) bool {
	seen := map[string]bool{}
	for name := start; name != ""; {
		if seen[name] {
			return true
		}
		seen[name] = true
		def, ok := defs[name]
		if !ok {
			return false
		}
		name = def.Parent
	}
	return false
}

func bundleVisible(defs map[string]*schema.LayerDef, layer, bundle string) bool {
	seen := map[string]bool{}
	for name := layer; name != "" && !seen[name]; {
		seen[name] = true
		def, ok := defs[name]
		if !ok {
			return false
		}
		if _, ok := def.Bundles[bundle]; ok {
			return true
		}
		name = def.Parent
	}
	return false
}

func shadowedBy(defs map[string]*schema.LayerDef, parent, bundle string) bool {
	if parent == "" {
		return false
	}
	return bundleVisible(defs, parent, bundle)
}

func templated(raw []any) bool {
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			if strings.Contains(v, "{{") {
				return true
			}
		case map[string]any:
			for k := range v {
				if strings.Contains(k, "{{") {
					return true
				}
			}
		}
	}
	return false
}
