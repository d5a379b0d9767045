package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/loadout/pkg/kernel/schema"
	"github.com/ormasoftchile/loadout/pkg/kernel/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate [definition.yaml]",
	Short: "Validate a loadout/v0 definition (3-phase pipeline)",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, err := loadValid(cmd.ErrOrStderr(), args[0])
	if err != nil {
		return err
	}
	bundles := 0
	for _, l := range doc.Layers {
		bundles += len(l.Bundles)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid (%d layers, %d bundles, %d scenarios)\n",
		okStyle.Render(glyphOK), doc.Meta.Name, len(doc.Layers), bundles, len(doc.Scenarios))
	return nil
}

// loadValid validates path, printing warnings and errors to w. It returns
// the document only when there are no errors.
func loadValid(w io.Writer, path string) (*schema.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%s: only .yaml files are supported", path)
	}

	doc, errs := validate.ValidateFile(path)
	var failures []*validate.ValidationError
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(w, "  %s [%s] %s\n", warnStyle.Render(glyphWarn), e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(w, "    at: %s\n", e.Path)
			}
			continue
		}
		failures = append(failures, e)
	}
	if len(failures) > 0 {
		fmt.Fprintf(w, "Validation failed: %d error(s)\n\n", len(failures))
		for i, e := range failures {
			fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(w, "     at: %s\n", e.Path)
			}
		}
		return nil, fmt.Errorf("validation failed with %d error(s)", len(failures))
	}
	logger.Debug("document validated", "path", path, "warnings", len(errs))
	return doc, nil
}
