package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
	"github.com/ormasoftchile/loadout/pkg/kernel/engine"
	"github.com/ormasoftchile/loadout/pkg/kernel/layer"
	"github.com/ormasoftchile/loadout/pkg/kernel/plan"
	kschema "github.com/ormasoftchile/loadout/pkg/kernel/schema"
	ktesting "github.com/ormasoftchile/loadout/pkg/kernel/testing"
	"github.com/ormasoftchile/loadout/pkg/kernel/unit"
	kvalidate "github.com/ormasoftchile/loadout/pkg/kernel/validate"
)

// HandleValidate implements the loadout/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	doc, errs := kvalidate.ValidateFile(path)
	if hasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d layers, %d scenarios)", doc.Meta.Name, len(doc.Layers), len(doc.Scenarios))), nil
}

// HandleSchema implements the loadout/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := kschema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandlePlan implements the loadout/plan MCP tool.
func HandlePlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, errRes := decodeRequest(req)
	if errRes != nil {
		return errRes, nil
	}
	eng := engine.New(in.layer, engine.Config{})
	ds, err := eng.Plan(unit.NewLedger(in.consumer), in.req)
	if err != nil {
		return jsonResult(map[string]any{
			"layer":        in.layer.Name(),
			"failure_kind": engine.FailureKind(err),
			"error":        err.Error(),
		}, true), nil
	}
	return jsonResult(map[string]any{
		"layer":   in.layer.Name(),
		"bundles": in.req.Bundles,
		"steps":   plan.Describe(ds),
	}, false), nil
}

// HandleApply implements the loadout/apply MCP tool. Units are always the
// document's stubs, so an agent can never touch a real consumer.
func HandleApply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, errRes := decodeRequest(req)
	if errRes != nil {
		return errRes, nil
	}
	units, err := in.set.Registry(in.layer, nil, true)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	runID := "mcp-" + uuid.NewString()
	eng := engine.New(in.layer, engine.Config{RunID: runID, Units: units})
	ledger := unit.NewLedger(in.consumer)
	result := eng.Apply(ledger, in.req)

	executed := make([]string, 0, len(result.Executed))
	for _, d := range result.Executed {
		executed = append(executed, d.String())
	}
	response := map[string]any{
		"run_id":   runID,
		"layer":    in.layer.Name(),
		"status":   result.Status,
		"executed": executed,
		"active":   ledger.Active(),
		"duration": result.Duration.String(),
	}
	if result.Error != nil {
		response["failure_kind"] = engine.FailureKind(result.Error)
		response["error"] = result.Error.Error()
	}
	return jsonResult(response, result.Status == engine.StatusFailed), nil
}

// HandleTest implements the loadout/test MCP tool.
func HandleTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	scenarioName, _ := args["scenario"].(string)

	runner := &ktesting.Runner{
		Timeout:  30 * time.Second,
		FailFast: false,
	}

	var output *ktesting.TestOutput
	var err error

	if scenarioName != "" {
		result, e := runner.RunScenario(path, scenarioName)
		if e != nil {
			return errorResult(fmt.Sprintf("run scenario: %s", e)), nil
		}
		output = &ktesting.TestOutput{
			Document:  filepath.Base(path),
			Scenarios: []ktesting.TestResult{*result},
			Summary:   ktesting.TestSummary{Total: 1},
		}
		switch result.Status {
		case "passed":
			output.Summary.Passed = 1
		case "failed":
			output.Summary.Failed = 1
		default:
			output.Summary.Errors = 1
		}
	} else {
		output, err = runner.RunAll(path)
		if err != nil {
			return errorResult(fmt.Sprintf("run tests: %s", err)), nil
		}
	}

	return jsonResult(output, output.Summary.Failed > 0 || output.Summary.Errors > 0), nil
}

// toolRequest is the decoded input shared by plan and apply.
type toolRequest struct {
	set      *kschema.Set
	layer    *layer.Layer
	consumer string
	req      engine.Request
}

func decodeRequest(req mcp.CallToolRequest) (*toolRequest, *mcp.CallToolResult) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return nil, errorResult("path argument is required")
	}
	doc, errs := kvalidate.ValidateFile(path)
	if hasErrors(errs) {
		return nil, errorResult(formatErrors(errs))
	}
	set, err := kschema.Build(doc)
	if err != nil {
		return nil, errorResult(err.Error())
	}
	layerName, _ := args["layer"].(string)
	l, err := set.Pick(layerName)
	if err != nil {
		return nil, errorResult(err.Error())
	}
	consumer, _ := args["consumer"].(string)
	if consumer == "" {
		consumer = "mcp"
	}
	custom, _ := args["args"].(map[string]any)
	return &toolRequest{
		set:      set,
		layer:    l,
		consumer: consumer,
		req: engine.Request{
			Bundles:    stringSlice(args["bundles"]),
			Exclusions: directive.ParseExclusions(stringSlice(args["exclude"])),
			Args:       custom,
		},
	}, nil
}

// stringSlice accepts the []any a JSON array decodes to.
func stringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

func hasErrors(errs []*kvalidate.ValidationError) bool {
	return kvalidate.HasErrors(errs)
}

func formatErrors(errs []*kvalidate.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
