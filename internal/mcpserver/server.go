// Package mcpserver exports the primitive registry as an MCP tool catalog
// over stdio, so model-facing hosts can call the primitives through the same
// dispatch chain (rate limit, policy, redaction, audit) as programmatic
// callers.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/tools"
)

// Serve registers every tool descriptor with an MCP server and blocks
// serving the stdio transport.
func Serve(reg *tools.Registry, version string) error {
	srv := server.NewMCPServer("agentops", version)

	for _, def := range reg.Definitions() {
		name := def.Name
		tool := mcp.NewToolWithRawSchema(name, def.Description, def.InputSchema)
		srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			raw, err := json.Marshal(req.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := reg.Execute(ctx, name, raw, tools.DispatchOptions{Blocking: true})
			if err != nil {
				return toolError(err), nil
			}
			return mcp.NewToolResultText(string(out)), nil
		})
	}

	return server.ServeStdio(srv)
}

// toolError renders the wire error shape {code, message, suggestion,
// retryable} as the MCP error payload.
func toolError(err error) *mcp.CallToolResult {
	if te, ok := err.(*tools.Error); ok {
		payload, mErr := json.Marshal(te)
		if mErr == nil {
			return mcp.NewToolResultError(string(payload))
		}
	}
	return mcp.NewToolResultError(err.Error())
}
