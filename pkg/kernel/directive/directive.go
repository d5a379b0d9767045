// Package directive defines activation directives and the grammar that
// turns raw directive lists into them.
//
// A raw list is a []any mixing four kinds of element:
//
//	"name"                  enable name
//	"-name"                 disable name
//	"<name", ">-name"       front / back ordering markers
//	[]any{...}              arguments for the preceding name
//	map[string]any{n: 1.5}  name with a minimum version, optionally followed by arguments
//	Generator               a callback producing more raw elements at apply time
package directive

import (
	"fmt"
	"strings"
)

// Operation is what a directive does to its target.
type Operation string

const (
	OpEnable  Operation = "enable"
	OpDisable Operation = "disable"
)

// OrderClass controls the macro position of a directive in the final order.
type OrderClass string

const (
	OrderFront  OrderClass = "front"
	OrderNormal OrderClass = "normal"
	OrderBack   OrderClass = "back"
)

// Kind distinguishes data directives from callback directives.
type Kind string

const (
	KindStatic  Kind = "static"
	KindDynamic Kind = "dynamic"
)

// Generator produces raw directive elements lazily, at apply time.
// Returning an empty slice is a normal success.
type Generator func(rc *Context) ([]any, error)

// Directive is one normalized instruction. Values are treated as immutable:
// filters that narrow Args build a new Directive with a fresh slice.
type Directive struct {
	Target     string     `json:"target,omitempty"`
	Operation  Operation  `json:"operation,omitempty"`
	Args       []any      `json:"args,omitempty"`
	HasArgs    bool       `json:"has_args,omitempty"` // an explicit, possibly empty, argument list was given
	MinVersion string     `json:"min_version,omitempty"`
	OrderClass OrderClass `json:"order_class,omitempty"`
	Kind       Kind       `json:"kind"`
	Generator  Generator  `json:"-"`
}

// IsDynamic reports whether d is a callback directive.
func (d Directive) IsDynamic() bool { return d.Kind == KindDynamic }

// Token renders the name token including its markers, e.g. "<-strict".
func (d Directive) Token() string {
	var b strings.Builder
	switch d.OrderClass {
	case OrderFront:
		b.WriteString(markerFront)
	case OrderBack:
		b.WriteString(markerBack)
	}
	if d.Operation == OpDisable {
		b.WriteString(markerNegate)
	}
	b.WriteString(d.Target)
	return b.String()
}

// Spec renders d back into raw grammar. Normalize(d.Spec()) yields d again.
func (d Directive) Spec() []any {
	if d.IsDynamic() {
		return []any{d.Generator}
	}
	var out []any
	if d.MinVersion != "" {
		out = append(out, map[string]any{d.Token(): d.MinVersion})
	} else {
		out = append(out, d.Token())
	}
	if d.HasArgs {
		out = append(out, cloneArgs(d.Args))
	}
	return out
}

// String is the short human form used by plans, traces and scenario
// expectations: "enable B(x)", "disable C(z)", "enable D>=1.5".
func (d Directive) String() string {
	if d.IsDynamic() {
		return "dynamic"
	}
	s := string(d.Operation) + " " + d.Target
	if d.HasArgs {
		parts := make([]string, len(d.Args))
		for i, a := range d.Args {
			parts[i] = fmt.Sprint(a)
		}
		s += "(" + strings.Join(parts, ",") + ")"
	}
	if d.MinVersion != "" {
		s += ">=" + d.MinVersion
	}
	return s
}

// Equal compares two static directives field by field. Dynamic directives
// are never equal to anything since generators are not comparable.
func (d Directive) Equal(o Directive) bool {
	if d.IsDynamic() || o.IsDynamic() {
		return false
	}
	if d.Target != o.Target || d.Operation != o.Operation || d.MinVersion != o.MinVersion ||
		d.OrderClass != o.OrderClass || d.Kind != o.Kind || d.HasArgs != o.HasArgs {
		return false
	}
	if len(d.Args) != len(o.Args) {
		return false
	}
	for i := range d.Args {
		if fmt.Sprint(d.Args[i]) != fmt.Sprint(o.Args[i]) {
			return false
		}
	}
	return true
}

// SymbolArgs returns the string-valued arguments of d, in order.
func (d Directive) SymbolArgs() []string {
	var out []string
	for _, a := range d.Args {
		if s, ok := a.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func cloneArgs(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	copy(out, args)
	return out
}
