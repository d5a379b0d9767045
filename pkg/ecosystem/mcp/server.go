// Package mcp exposes loadout validation, planning, dry-run apply and
// scenario tests as MCP tools for AI agents.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with loadout tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"loadout",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("loadout/validate",
			mcp.WithDescription("Validate a loadout/v0 definition YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the definition YAML file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("loadout/plan",
			mcp.WithDescription("Resolve a layer into its ordered, filtered directive list without executing it"),
			requestOptions()...,
		),
		HandlePlan,
	)

	s.AddTool(
		mcp.NewTool("loadout/apply",
			mcp.WithDescription("Apply a layer against the document's stub units and an in-memory ledger"),
			requestOptions()...,
		),
		HandleApply,
	)

	s.AddTool(
		mcp.NewTool("loadout/test",
			mcp.WithDescription("Run the scenarios declared in a loadout definition"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the definition YAML file")),
			mcp.WithString("scenario", mcp.Description("Run only the named scenario (optional)")),
		),
		HandleTest,
	)

	s.AddTool(
		mcp.NewTool("loadout/schema",
			mcp.WithDescription("Export the loadout/v0 JSON Schema"),
		),
		HandleSchema,
	)

	return s
}

func requestOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the definition YAML file")),
		mcp.WithString("layer", mcp.Description("Layer name (default: meta.default_layer or the last layer)")),
		mcp.WithArray("bundles", mcp.Description("Requested bundles, in order"), mcp.WithStringItems()),
		mcp.WithArray("exclude", mcp.Description("Exclusions: \"Target\" or \"Target=sym1,sym2\""), mcp.WithStringItems()),
		mcp.WithObject("args", mcp.Description("Custom arguments visible to generators")),
		mcp.WithString("consumer", mcp.Description("Consumer identity (default: mcp)")),
	}
}
