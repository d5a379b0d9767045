package testing

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
	"github.com/ormasoftchile/loadout/pkg/kernel/engine"
	"github.com/ormasoftchile/loadout/pkg/kernel/schema"
	"github.com/ormasoftchile/loadout/pkg/kernel/trace"
	"github.com/ormasoftchile/loadout/pkg/kernel/unit"
	"github.com/ormasoftchile/loadout/pkg/kernel/validate"
)

// TestResult is the result of running one scenario.
type TestResult struct {
	Document     string            `json:"document"`
	ScenarioName string            `json:"scenario_name"`
	Layer        string            `json:"layer"`
	Status       string            `json:"status"` // passed, failed, error
	DurationMs   int64             `json:"duration_ms"`
	Assertions   []AssertionResult `json:"assertions,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// TestSummary aggregates counts across scenarios.
type TestSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
}

// TestOutput is the top-level output of a test run.
type TestOutput struct {
	Document  string       `json:"document"`
	Scenarios []TestResult `json:"scenarios"`
	Summary   TestSummary  `json:"summary"`
}

// Runner executes the scenarios of a document.
type Runner struct {
	Timeout  time.Duration
	FailFast bool
	MaxDepth int
	Logger   *log.Logger // optional
}

// RunAll runs every scenario of the document at path, in document order.
func (r *Runner) RunAll(path string) (*TestOutput, error) {
	doc, set, err := load(path)
	if err != nil {
		return nil, err
	}
	return r.Run(doc, set), nil
}

// Run executes every scenario of an already built document.
func (r *Runner) Run(doc *schema.Document, set *schema.Set) *TestOutput {
	output := &TestOutput{Document: doc.Meta.Name}
	for _, sc := range doc.Scenarios {
		result := r.runScenario(doc, set, sc)
		output.Scenarios = append(output.Scenarios, result)

		switch result.Status {
		case "passed":
			output.Summary.Passed++
		case "failed":
			output.Summary.Failed++
		case "error":
			output.Summary.Errors++
		}
		output.Summary.Total++

		if r.FailFast && result.Status != "passed" {
			break
		}
	}
	return output
}

// RunScenario runs a single named scenario.
func (r *Runner) RunScenario(path, name string) (*TestResult, error) {
	doc, set, err := load(path)
	if err != nil {
		return nil, err
	}
	for _, sc := range doc.Scenarios {
		if sc.Name == name {
			result := r.runScenario(doc, set, sc)
			return &result, nil
		}
	}
	return nil, fmt.Errorf("scenario %q not found in %s", name, path)
}

func load(path string) (*schema.Document, *schema.Set, error) {
	doc, valErrs := validate.ValidateFile(path)
	for _, ve := range valErrs {
		if ve.Severity == "error" {
			return nil, nil, fmt.Errorf("document validation failed: %w", ve)
		}
	}
	set, err := schema.Build(doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, set, nil
}

// runScenario applies one scenario against a fresh ledger and evaluates its
// expectations.
func (r *Runner) runScenario(doc *schema.Document, set *schema.Set, sc schema.Scenario) TestResult {
	start := time.Now()
	result := TestResult{Document: doc.Meta.Name, ScenarioName: sc.Name}
	fail := func(format string, args ...any) TestResult {
		result.Status = "error"
		result.Error = fmt.Sprintf(format, args...)
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	l, err := set.Pick(sc.Layer)
	if err != nil {
		return fail("%s", err)
	}
	result.Layer = l.Name()
	units, err := set.Registry(l, sc.Units, true)
	if err != nil {
		return fail("build units: %s", err)
	}

	logger := r.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	var traceBuf bytes.Buffer
	runID := "test-" + sc.Name
	eng := engine.New(l, engine.Config{
		RunID:    runID,
		Units:    units,
		Trace:    trace.NewWriter(&traceBuf, runID),
		Logger:   logger.With("scenario", sc.Name),
		MaxDepth: r.MaxDepth,
	})

	ledger := unit.NewLedger(runID)
	req := engine.Request{
		Bundles:    sc.Bundles,
		Exclusions: directive.ParseExclusions(sc.Exclude),
		Args:       sc.Args,
	}

	var applied *engine.Result
	if r.Timeout > 0 {
		done := make(chan struct{})
		go func() {
			applied = eng.Apply(ledger, req)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(r.Timeout):
			return fail("timeout")
		}
	} else {
		applied = eng.Apply(ledger, req)
	}

	run := &RunResult{
		Status:      applied.Status,
		FailureKind: engine.FailureKind(applied.Error),
		Active:      ledger.Active(),
		Error:       applied.Error,
	}
	for _, d := range applied.Executed {
		run.Executed = append(run.Executed, d.String())
	}
	if v, err := trace.Verify(&traceBuf); err == nil {
		run.ChainValid = v.Valid
	}

	exp := sc.Expect
	if exp.Active != nil {
		exp.Active = sortedCopy(exp.Active)
	}
	assertions := Evaluate(exp, run)
	result.Status = "passed"
	if HasFailures(assertions) {
		result.Status = "failed"
	}
	result.Assertions = assertions
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}
