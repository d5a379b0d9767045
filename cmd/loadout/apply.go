package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/loadout/pkg/ecosystem/recorder"
	"github.com/ormasoftchile/loadout/pkg/kernel/engine"
	"github.com/ormasoftchile/loadout/pkg/kernel/trace"
	"github.com/ormasoftchile/loadout/pkg/kernel/unit"
)

var (
	applyFlags requestFlags
	recordPath string
	redactEnv  []string
)

var applyCmd = &cobra.Command{
	Use:   "apply [definition.yaml]",
	Short: "Apply a layer against stub units and an in-memory ledger",
	Long: `Apply resolves the selected layer and executes every directive against
the units declared in the document. Targets without a declared unit get a
plain stub, so a definition can be dry-run end to end.

With --record, the run is also written as a scenario (request, unit
behaviour and observed outcome) that can be pasted into the document and
replayed by "loadout test".`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

// applyReport is the JSON form of an apply.
type applyReport struct {
	RunID       string   `json:"run_id"`
	Layer       string   `json:"layer"`
	Status      string   `json:"status"`
	Executed    []string `json:"executed"`
	Active      []string `json:"active"`
	DurationMs  int64    `json:"duration_ms"`
	FailureKind string   `json:"failure_kind,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	set, l, err := loadLayer(cmd.ErrOrStderr(), args[0])
	if err != nil {
		return err
	}
	req, err := applyFlags.request()
	if err != nil {
		return err
	}
	units, err := set.Registry(l, nil, true)
	if err != nil {
		return err
	}
	var rec *recorder.Recorder
	var lookup unit.Lookup = units
	if recordPath != "" {
		rec = recorder.New(units)
		rec.SetSecrets(redactEnv)
		lookup = rec
	}

	runID := uuid.NewString()
	var tw *trace.Writer
	if cfg.Trace != "" {
		tw, err = trace.NewFileWriter(cfg.Trace, runID)
		if err != nil {
			return fmt.Errorf("trace: %w", err)
		}
		defer tw.Close()
	}

	eng := engine.New(l, engine.Config{
		RunID:    runID,
		Units:    lookup,
		Trace:    tw,
		Logger:   logger,
		MaxDepth: cfg.MaxDepth,
	})
	ledger := unit.NewLedger(applyFlags.consumer)
	result := eng.Apply(ledger, req)

	report := applyReport{
		RunID:      runID,
		Layer:      l.Name(),
		Status:     result.Status,
		Executed:   []string{},
		Active:     ledger.Active(),
		DurationMs: result.Duration.Milliseconds(),
	}
	for _, d := range result.Executed {
		report.Executed = append(report.Executed, d.String())
	}
	if result.Error != nil {
		report.FailureKind = engine.FailureKind(result.Error)
		report.Error = result.Error.Error()
	}

	if rec != nil {
		sc := rec.Scenario("recorded-"+runID[:8], l.Name(), req, result, report.Active)
		if err := recorder.SaveScenario(recordPath, sc); err != nil {
			return err
		}
		logger.Info("scenario recorded", "path", recordPath, "calls", len(rec.Calls()))
	}

	out := cmd.OutOrStdout()
	if applyFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printApply(out, report)
	}
	if result.Error != nil {
		return fmt.Errorf("apply failed: %w", result.Error)
	}
	return nil
}

func printApply(w io.Writer, r applyReport) {
	fmt.Fprintf(w, "\n  %s %s\n", headerStyle.Render("apply "+r.Layer), dimStyle.Render(r.RunID))
	for i, d := range r.Executed {
		fmt.Fprintf(w, "    %s %2d  %s\n", okStyle.Render(glyphOK), i+1, d)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "    %s %s: %s\n", failStyle.Render(glyphFail), r.FailureKind, r.Error)
	}
	fmt.Fprintf(w, "\n  active: %v\n", r.Active)
	fmt.Fprintf(w, "  %s in %dms\n\n", r.Status, r.DurationMs)
}

func init() {
	applyFlags.register(applyCmd)
	applyCmd.Flags().StringVar(&recordPath, "record", "", "Write the run as a replayable scenario to this file")
	applyCmd.Flags().StringSliceVar(&redactEnv, "redact-env", nil, "Env var names whose values are redacted from recorded args")
}
