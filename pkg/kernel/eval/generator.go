package eval

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
)

// GeneratorSpec is the declarative form of a dynamic directive:
//
//	- $generate:
//	    when: '"tests" in bundles && args.strict == true'
//	    directives: [Test.More, ["{{ .args.plan }}"]]
//
// When the condition holds (an empty condition always holds) the directive
// list is returned with every string rendered as a template. Otherwise the
// generator produces nothing.
type GeneratorSpec struct {
	When       string `yaml:"when,omitempty" json:"when,omitempty"`
	Directives []any  `yaml:"directives" json:"directives"`
}

// CompileCondition type-checks a condition against the generator scope.
func CompileCondition(cond string) (*vm.Program, error) {
	program, err := expr.Compile(cond, expr.Env(sampleEnv()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", cond, err)
	}
	return program, nil
}

// CompileGenerator turns a GeneratorSpec into a directive.Generator.
func CompileGenerator(spec GeneratorSpec) (directive.Generator, error) {
	var program *vm.Program
	if spec.When != "" {
		p, err := CompileCondition(spec.When)
		if err != nil {
			return nil, err
		}
		program = p
	}
	raw := spec.Directives
	return func(rc *directive.Context) ([]any, error) {
		env := Env(rc)
		if program != nil {
			out, err := expr.Run(program, env)
			if err != nil {
				return nil, fmt.Errorf("eval condition %q: %w", spec.When, err)
			}
			ok, isBool := out.(bool)
			if !isBool {
				return nil, fmt.Errorf("condition %q did not return bool (got %T)", spec.When, out)
			}
			if !ok {
				return nil, nil
			}
		}
		rendered, err := ResolveValue(raw, env)
		if err != nil {
			return nil, err
		}
		return rendered.([]any), nil
	}, nil
}

func sampleEnv() map[string]any {
	return map[string]any{
		"bundles":  []string{},
		"args":     map[string]any{},
		"consumer": "",
		"excluded": []string{},
	}
}
