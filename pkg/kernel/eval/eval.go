// Package eval renders templates and conditions for declarative generators.
package eval

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
)

// Env builds the variable scope generators see:
//
//	bundles   []string        requested bundle names, in order
//	args      map[string]any  caller-supplied custom arguments
//	consumer  string          consumer identity
//	excluded  []string        excluded targets, sorted
func Env(rc *directive.Context) map[string]any {
	args := rc.Args
	if args == nil {
		args = map[string]any{}
	}
	bundles := rc.Bundles
	if bundles == nil {
		bundles = []string{}
	}
	excluded := rc.Exclusions.Targets()
	if excluded == nil {
		excluded = []string{}
	}
	return map[string]any{
		"bundles":  bundles,
		"args":     args,
		"consumer": rc.ConsumerID(),
		"excluded": excluded,
	}
}

// Resolve evaluates a template string against a variable scope.
// Example: Resolve("{{ .args.level }}", {"args": {"level": "strict"}}) → "strict"
func Resolve(tmpl string, vars map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil // fast path for literals
	}

	t, err := template.New("").Option("missingkey=zero").Funcs(builtinFuncs()).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("template parse: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("template eval: %w", err)
	}
	return buf.String(), nil
}

// ResolveValue renders every string inside v, descending into lists and
// maps. Map keys are rendered too, since a version mapping's key is a
// directive token.
func ResolveValue(v any, vars map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return Resolve(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := ResolveValue(item, vars)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			rk, err := Resolve(k, vars)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			r, err := ResolveValue(item, vars)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[rk] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// builtinFuncs provides template functions for expressions.
func builtinFuncs() template.FuncMap {
	return template.FuncMap{
		"eq": func(a, b any) bool {
			return fmt.Sprint(a) == fmt.Sprint(b)
		},
		"ne": func(a, b any) bool {
			return fmt.Sprint(a) != fmt.Sprint(b)
		},
		"has": func(item string, list []string) bool {
			return slices.Contains(list, item)
		},
		"join": func(sep string, list []string) string {
			return strings.Join(list, sep)
		},
		"default": func(def, val any) any {
			if val == nil || fmt.Sprint(val) == "" {
				return def
			}
			return val
		},
	}
}
