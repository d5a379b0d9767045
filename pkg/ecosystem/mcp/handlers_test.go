package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

const editorDoc = "../../../testdata/editor.yaml"

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func text(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", r.Content[0])
	}
	return tc.Text
}

func TestHandleValidate_MissingPath(t *testing.T) {
	if r := call(t, HandleValidate, map[string]any{}); !r.IsError {
		t.Error("expected error for missing path")
	}
}

func TestHandleValidate_Editor(t *testing.T) {
	r := call(t, HandleValidate, map[string]any{"path": editorDoc})
	if r.IsError {
		t.Fatalf("unexpected error: %s", text(t, r))
	}
}

func TestHandleSchema(t *testing.T) {
	r := call(t, HandleSchema, map[string]any{})
	if r.IsError {
		t.Error("expected success")
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(text(t, r)), &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
}

func TestHandlePlan(t *testing.T) {
	r := call(t, HandlePlan, map[string]any{
		"path":    editorDoc,
		"layer":   "base",
		"bundles": []any{"Foo"},
		"exclude": []any{"B=y"},
	})
	if r.IsError {
		t.Fatalf("unexpected error: %s", text(t, r))
	}
	var got struct {
		Steps []struct {
			Directive  string `json:"directive"`
			OrderClass string `json:"order_class"`
		} `json:"steps"`
	}
	if err := json.Unmarshal([]byte(text(t, r)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Steps) != 6 || got.Steps[0].Directive != "enable E" || got.Steps[0].OrderClass != "front" {
		t.Errorf("steps = %+v", got.Steps)
	}
}

func TestHandlePlan_UnknownBundle(t *testing.T) {
	r := call(t, HandlePlan, map[string]any{"path": editorDoc, "bundles": []any{"Nope"}})
	if !r.IsError {
		t.Fatal("expected error")
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(text(t, r)), &got); err != nil {
		t.Fatal(err)
	}
	if got["failure_kind"] != "unknown_bundle" {
		t.Errorf("failure_kind = %v", got["failure_kind"])
	}
}

func TestHandleApply_Generator(t *testing.T) {
	r := call(t, HandleApply, map[string]any{
		"path":     editorDoc,
		"bundles":  []any{"Lint"},
		"args":     map[string]any{"strict": true},
		"consumer": "agent",
	})
	if r.IsError {
		t.Fatalf("unexpected error: %s", text(t, r))
	}
	var got struct {
		Status string   `json:"status"`
		Active []string `json:"active"`
	}
	if err := json.Unmarshal([]byte(text(t, r)), &got); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range got.Active {
		if a == "Lint.Strict(agent)" {
			found = true
		}
	}
	if got.Status != "completed" || !found {
		t.Errorf("apply = %+v", got)
	}
}

func TestHandleTest(t *testing.T) {
	r := call(t, HandleTest, map[string]any{"path": editorDoc})
	if r.IsError {
		t.Fatalf("scenarios failed: %s", text(t, r))
	}
	r = call(t, HandleTest, map[string]any{"path": editorDoc, "scenario": "missing"})
	if !r.IsError {
		t.Error("expected error for unknown scenario")
	}
}
