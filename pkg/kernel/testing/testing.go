// Package testing runs the scenarios declared in a loadout document. Each
// scenario applies one layer against a fresh in-memory ledger with stub
// units and asserts on the executed directives, the failure kind and the
// ledger state left behind.
package testing

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ormasoftchile/loadout/pkg/kernel/schema"
)

// RunResult captures what an apply did, for assertion evaluation.
type RunResult struct {
	Status      string   // completed, failed
	Executed    []string // directive strings, in execution order
	FailureKind string
	Active      []string // ledger state after the apply
	ChainValid  bool
	Error       error
}

// AssertionResult is the result of a single assertion.
type AssertionResult struct {
	Type     string `json:"type"` // expected_status, executed, error, active, trace_chain
	Key      string `json:"key,omitempty"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// Evaluate checks a RunResult against a scenario expectation. The status is
// always asserted: a scenario that names no error expects the apply to
// complete.
func Evaluate(exp schema.Expectation, run *RunResult) []AssertionResult {
	var results []AssertionResult

	wantStatus := "completed"
	if exp.Error != "" {
		wantStatus = "failed"
	}
	results = append(results, AssertionResult{
		Type:     "expected_status",
		Expected: wantStatus,
		Actual:   run.Status,
		Passed:   run.Status == wantStatus,
		Message:  fmt.Sprintf("status: expected %q, got %q", wantStatus, run.Status),
	})

	if exp.Error != "" {
		results = append(results, AssertionResult{
			Type:     "error",
			Expected: exp.Error,
			Actual:   run.FailureKind,
			Passed:   run.FailureKind == exp.Error,
			Message:  fmt.Sprintf("error: expected %q, got %q", exp.Error, run.FailureKind),
		})
	}

	if exp.Executed != nil {
		results = append(results, compareList("executed", exp.Executed, run.Executed))
	}
	if exp.Active != nil {
		results = append(results, compareList("active", exp.Active, run.Active))
	}

	results = append(results, AssertionResult{
		Type:     "trace_chain",
		Expected: "valid",
		Actual:   validity(run.ChainValid),
		Passed:   run.ChainValid,
		Message:  "trace hash chain: " + validity(run.ChainValid),
	})
	return results
}

// HasFailures returns true if any assertion failed.
func HasFailures(results []AssertionResult) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

// compareList matches lists element by element; order and length matter.
func compareList(kind string, expected, actual []string) AssertionResult {
	res := AssertionResult{
		Type:     kind,
		Expected: strings.Join(expected, "; "),
		Actual:   strings.Join(actual, "; "),
		Passed:   true,
	}
	if len(expected) != len(actual) {
		res.Passed = false
		res.Message = fmt.Sprintf("%s: expected %d entries, got %d", kind, len(expected), len(actual))
		return res
	}
	for i := range expected {
		if !compareValue(expected[i], actual[i]) {
			res.Passed = false
			res.Key = fmt.Sprint(i)
			res.Message = fmt.Sprintf("%s[%d]: expected %q, got %q", kind, i, expected[i], actual[i])
			return res
		}
	}
	res.Message = kind + ": match"
	return res
}

// compareValue supports two match modes:
//   - /pattern/ → regex match
//   - exact string equality (default)
func compareValue(expected, actual string) bool {
	if strings.HasPrefix(expected, "/") && strings.HasSuffix(expected, "/") && len(expected) > 2 {
		re, err := regexp.Compile(expected[1 : len(expected)-1])
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	}
	return expected == actual
}

func validity(ok bool) string {
	if ok {
		return "valid"
	}
	return "broken"
}

// sortedCopy returns a sorted copy of s; ledger state has no inherent order.
func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
