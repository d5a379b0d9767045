// Package plan orders normalized directives and applies consumer
// exclusions to them.
package plan

import (
	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
)

// Order stable-partitions ds into front ++ normal ++ back. Relative order
// within each class is the encounter order. Dynamic directives stay in the
// normal class at the position they were found.
func Order(ds []directive.Directive) []directive.Directive {
	var front, normal, back []directive.Directive
	for _, d := range ds {
		switch {
		case d.IsDynamic():
			normal = append(normal, d)
		case d.OrderClass == directive.OrderFront:
			front = append(front, d)
		case d.OrderClass == directive.OrderBack:
			back = append(back, d)
		default:
			normal = append(normal, d)
		}
	}
	out := make([]directive.Directive, 0, len(ds))
	out = append(out, front...)
	out = append(out, normal...)
	return append(out, back...)
}

// Filter removes or narrows directives whose target is excluded. A whole
// target exclusion drops the directive. A symbol exclusion removes matching
// string arguments and drops the directive if that leaves none of the
// arguments it had. Directives without arguments are left alone by symbol
// exclusions. Dynamic directives pass through; their output is filtered
// when they expand. The input slice is never modified.
func Filter(ds []directive.Directive, ex *directive.Exclusions) []directive.Directive {
	if ex.Len() == 0 {
		return ds
	}
	out := make([]directive.Directive, 0, len(ds))
	for _, d := range ds {
		if d.IsDynamic() {
			out = append(out, d)
			continue
		}
		symbols, whole, ok := ex.Lookup(d.Target)
		if !ok {
			out = append(out, d)
			continue
		}
		if whole {
			continue
		}
		if len(d.Args) == 0 {
			out = append(out, d)
			continue
		}
		kept := make([]any, 0, len(d.Args))
		for _, a := range d.Args {
			if s, isSym := a.(string); isSym {
				if _, drop := symbols[s]; drop {
					continue
				}
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			continue
		}
		narrowed := d
		narrowed.Args = kept
		out = append(out, narrowed)
	}
	return out
}

// Plan normalizes raw, orders the result and applies the static exclusion
// pass. It is the order the engine walks.
func Plan(raw []any, ex *directive.Exclusions) ([]directive.Directive, error) {
	ds, err := directive.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return Filter(Order(ds), ex), nil
}
