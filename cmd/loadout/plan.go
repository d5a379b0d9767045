package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
	"github.com/ormasoftchile/loadout/pkg/kernel/engine"
	"github.com/ormasoftchile/loadout/pkg/kernel/layer"
	"github.com/ormasoftchile/loadout/pkg/kernel/plan"
	"github.com/ormasoftchile/loadout/pkg/kernel/schema"
	"github.com/ormasoftchile/loadout/pkg/kernel/unit"
)

// requestFlags are shared by plan and apply.
type requestFlags struct {
	bundles  []string
	excludes []string
	args     []string
	consumer string
	json     bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.bundles, "bundle", "b", nil, "Request a bundle, repeatable; order is significant")
	cmd.Flags().StringArrayVarP(&f.excludes, "exclude", "x", nil, "Exclude a target (T) or some of its symbols (T=a,b), repeatable")
	cmd.Flags().StringArrayVar(&f.args, "arg", nil, "Custom generator argument (key=value), repeatable")
	cmd.Flags().StringVar(&f.consumer, "consumer", "cli", "Consumer identity")
	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
}

func (f *requestFlags) request() (engine.Request, error) {
	args, err := parseArgs(f.args)
	if err != nil {
		return engine.Request{}, err
	}
	return engine.Request{
		Bundles:    f.bundles,
		Exclusions: directive.ParseExclusions(f.excludes),
		Args:       args,
	}, nil
}

// parseArgs turns key=value pairs into generator arguments. Values are
// decoded as YAML scalars, so "strict=true" yields a bool.
func parseArgs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q: expected key=value", p)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

// loadLayer validates and builds path, returning the layer selected by
// --layer or the document default.
func loadLayer(w io.Writer, path string) (*schema.Set, *layer.Layer, error) {
	doc, err := loadValid(w, path)
	if err != nil {
		return nil, nil, err
	}
	set, err := schema.Build(doc)
	if err != nil {
		return nil, nil, err
	}
	l, err := set.Pick(cfg.Layer)
	if err != nil {
		return nil, nil, err
	}
	return set, l, nil
}

// --- plan ---

var planFlags requestFlags

var planCmd = &cobra.Command{
	Use:   "plan [definition.yaml]",
	Short: "Show the ordered, filtered directive list without executing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	_, l, err := loadLayer(cmd.ErrOrStderr(), args[0])
	if err != nil {
		return err
	}
	req, err := planFlags.request()
	if err != nil {
		return err
	}
	eng := engine.New(l, engine.Config{Logger: logger, MaxDepth: cfg.MaxDepth})
	ds, err := eng.Plan(unit.NewLedger(planFlags.consumer), req)
	if err != nil {
		return fmt.Errorf("%s: %w", engine.FailureKind(err), err)
	}
	steps := plan.Describe(ds)

	out := cmd.OutOrStdout()
	if planFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"layer":   l.Name(),
			"bundles": req.Bundles,
			"steps":   steps,
		})
	}
	printPlan(out, l.Name(), steps)
	return nil
}

func printPlan(w io.Writer, layerName string, steps []plan.Step) {
	fmt.Fprintf(w, "\n  %s\n", headerStyle.Render("plan "+layerName))
	if len(steps) == 0 {
		fmt.Fprintf(w, "    %s\n", dimStyle.Render("(no directives)"))
	}
	for _, s := range steps {
		class := s.OrderClass
		if class == "" {
			class = s.Kind
		}
		fmt.Fprintf(w, "    %2d  %s %s\n", s.Index+1, classBadge(class), s.Directive)
	}
	fmt.Fprintln(w)
}

func init() {
	planFlags.register(planCmd)
}
