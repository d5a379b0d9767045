package plan

import (
	"fmt"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
)

// Step is the display form of one planned directive.
type Step struct {
	Index      int      `json:"index"`
	Directive  string   `json:"directive"`
	Kind       string   `json:"kind"`
	OrderClass string   `json:"order_class,omitempty"`
	Target     string   `json:"target,omitempty"`
	Operation  string   `json:"operation,omitempty"`
	Args       []string `json:"args,omitempty"`
	MinVersion string   `json:"min_version,omitempty"`
}

// Describe renders a plan for CLI and MCP output.
func Describe(ds []directive.Directive) []Step {
	steps := make([]Step, len(ds))
	for i, d := range ds {
		s := Step{
			Index:     i,
			Directive: d.String(),
			Kind:      string(d.Kind),
		}
		if !d.IsDynamic() {
			s.OrderClass = string(d.OrderClass)
			s.Target = d.Target
			s.Operation = string(d.Operation)
			s.MinVersion = d.MinVersion
			for _, a := range d.Args {
				s.Args = append(s.Args, fmt.Sprint(a))
			}
		}
		steps[i] = s
	}
	return steps
}
