package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	ktesting "github.com/ormasoftchile/loadout/pkg/kernel/testing"
)

var (
	testScenario string
	testJSON     bool
	testFailFast bool
	testTimeout  string
)

var testCmd = &cobra.Command{
	Use:   "test [definition.yaml...]",
	Short: "Run the scenarios declared in definition files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	timeout, err := time.ParseDuration(testTimeout)
	if err != nil {
		return fmt.Errorf("invalid --timeout: %w", err)
	}

	runner := &ktesting.Runner{
		Timeout:  timeout,
		FailFast: testFailFast,
		MaxDepth: cfg.MaxDepth,
		Logger:   logger,
	}

	out := cmd.OutOrStdout()
	allPassed := true
	for _, filePath := range args {
		var output *ktesting.TestOutput
		if testScenario != "" {
			result, err := runner.RunScenario(filePath, testScenario)
			if err != nil {
				return err
			}
			output = &ktesting.TestOutput{
				Document:  result.Document,
				Scenarios: []ktesting.TestResult{*result},
				Summary:   ktesting.TestSummary{Total: 1},
			}
			switch result.Status {
			case "passed":
				output.Summary.Passed = 1
			case "failed":
				output.Summary.Failed = 1
			case "error":
				output.Summary.Errors = 1
			}
		} else {
			output, err = runner.RunAll(filePath)
			if err != nil {
				return err
			}
		}
		if output.Document == "" {
			output.Document = filepath.Base(filePath)
		}

		if testJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(output); err != nil {
				return err
			}
		} else {
			printTestOutput(out, output)
		}

		if output.Summary.Failed > 0 || output.Summary.Errors > 0 {
			allPassed = false
		}
	}

	if !allPassed {
		return fmt.Errorf("tests failed")
	}
	return nil
}

func printTestOutput(w io.Writer, output *ktesting.TestOutput) {
	fmt.Fprintf(w, "\n  %s\n", headerStyle.Render(output.Document))
	for _, s := range output.Scenarios {
		icon := okStyle.Render(glyphOK)
		switch s.Status {
		case "failed":
			icon = failStyle.Render(glyphFail)
		case "error":
			icon = warnStyle.Render(glyphErr)
		}
		fmt.Fprintf(w, "    %s %s %s\n", icon, s.ScenarioName, dimStyle.Render(fmt.Sprintf("(%s, %dms)", s.Layer, s.DurationMs)))
		if s.Error != "" {
			fmt.Fprintf(w, "      error: %s\n", s.Error)
		}
		for _, a := range s.Assertions {
			if !a.Passed {
				fmt.Fprintf(w, "      %s %s: %s\n", failStyle.Render(glyphFail), a.Type, a.Message)
			}
		}
	}
	fmt.Fprintf(w, "\n  %d passed, %d failed, %d errors (total: %d)\n",
		output.Summary.Passed, output.Summary.Failed, output.Summary.Errors, output.Summary.Total)
}

func init() {
	testCmd.Flags().StringVar(&testScenario, "scenario", "", "Run only the named scenario (default: all)")
	testCmd.Flags().BoolVar(&testJSON, "json", false, "Output results as JSON")
	testCmd.Flags().BoolVar(&testFailFast, "fail-fast", false, "Stop after first failure")
	testCmd.Flags().StringVar(&testTimeout, "timeout", "30s", "Per-scenario timeout")
}
