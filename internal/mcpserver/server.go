// Package mcpserver exposes the action catalog as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lydakis/wcfx/internal/action"
)

// Invoker runs one named action.
type Invoker interface {
	Invoke(ctx context.Context, name string, params map[string]any) action.Result
}

// New builds an MCP server with one tool per catalog action.
func New(version string, inv Invoker, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := server.NewMCPServer("wcfx", version, server.WithToolCapabilities(false))
	for _, act := range action.Catalog() {
		s.AddTool(Tool(act), Handler(act.Name, inv, logger))
	}
	return s
}

// Serve runs New's server on stdin and stdout until EOF.
func Serve(version string, inv Invoker, logger *slog.Logger) error {
	return server.ServeStdio(New(version, inv, logger))
}

// Tool describes act as an MCP tool.
func Tool(act action.Action) mcp.Tool {
	props := make(map[string]any, len(act.Params))
	var required []string
	for _, p := range act.Params {
		props[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return mcp.Tool{
		Name:        act.Name,
		Description: act.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
		Annotations: mcp.ToolAnnotation{
			ReadOnlyHint: mcp.ToBoolPtr(act.ReadOnly),
		},
	}
}

// Handler invokes name with the tool call's arguments. Non-200 results come
// back as tool errors carrying the result message.
func Handler(name string, inv Invoker, logger *slog.Logger) server.ToolHandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := inv.Invoke(ctx, name, req.GetArguments())
		if res.Status != action.StatusOK {
			logger.Warn("mcp tool call failed", "action", name, "status", res.Status, "msg", res.Msg)
			return mcp.NewToolResultError(fmt.Sprintf("%d %s", res.Status, res.Msg)), nil
		}

		data, err := json.Marshal(res.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding %s result: %w", name, err)
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
