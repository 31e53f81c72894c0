// Package mcpserver exposes the Storyteller's tool registry over the Model
// Context Protocol, so external MCP clients (inspectors, other agents) can
// drive the same game tools the orchestrator uses.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/mcp"
)

// Bridge adapts one tool registry to an MCP stdio server.
type Bridge struct {
	registry *mcp.Registry
	srv      *server.MCPServer
	log      *slog.Logger
}

// New builds a bridge over the given registry. Every registered tool is
// exposed under its registry name.
func New(registry *mcp.Registry, name, version string, log *slog.Logger) (*Bridge, error) {
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if log == nil {
		log = logger.Get()
	}

	b := &Bridge{
		registry: registry,
		srv:      server.NewMCPServer(name, version),
		log:      log,
	}
	for _, def := range registry.List() {
		b.srv.AddTool(convertTool(def), b.handler(def.Name))
	}
	return b, nil
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (b *Bridge) ServeStdio() error {
	b.log.Info("mcp server listening on stdio")
	return server.ServeStdio(b.srv)
}

// handler returns the MCP handler for one registry tool. Registry failures
// become MCP tool errors rather than protocol errors, so clients see them
// as tool output.
func (b *Bridge) handler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		params, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcpgo.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		result := b.registry.Invoke(ctx, mcp.ToolCall{
			ID:         req.Params.Name,
			ToolName:   toolName,
			Parameters: params,
			Timestamp:  time.Now().UnixMilli(),
		})
		if !result.Success {
			return mcpgo.NewToolResultError(result.Error), nil
		}
		return mcpgo.NewToolResultText(string(result.Result)), nil
	}
}

// convertTool maps a registry definition onto an MCP tool declaration.
func convertTool(def mcp.ToolDefinition) mcpgo.Tool {
	required := make(map[string]bool, len(def.Required))
	for _, name := range def.Required {
		required[name] = true
	}

	opts := []mcpgo.ToolOption{mcpgo.WithDescription(def.Description)}
	for name, schema := range def.Parameters {
		opts = append(opts, paramOption(name, schema, required[name]))
	}
	return mcpgo.NewTool(def.Name, opts...)
}

func paramOption(name string, schema mcp.ParamSchema, required bool) mcpgo.ToolOption {
	propOpts := []mcpgo.PropertyOption{mcpgo.Description(schema.Description)}
	if required {
		propOpts = append(propOpts, mcpgo.Required())
	}
	switch schema.Type {
	case "number", "integer":
		return mcpgo.WithNumber(name, propOpts...)
	case "boolean":
		return mcpgo.WithBoolean(name, propOpts...)
	case "object":
		return mcpgo.WithObject(name, propOpts...)
	default:
		if len(schema.Enum) > 0 {
			propOpts = append(propOpts, mcpgo.Enum(schema.Enum...))
		}
		return mcpgo.WithString(name, propOpts...)
	}
}
