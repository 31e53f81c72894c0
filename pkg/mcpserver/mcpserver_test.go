package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenwood/storyteller/pkg/mcp"
)

func newTestRegistry(t *testing.T) *mcp.Registry {
	t.Helper()
	registry := mcp.NewRegistry()
	minLen := 1
	err := registry.Register(mcp.ToolDefinition{
		Name:        "echo",
		Description: "Echo the message back",
		Category:    mcp.CategoryInformation,
		Parameters: map[string]mcp.ParamSchema{
			"message": {Type: "string", MinLength: &minLen},
		},
		Required: []string{"message"},
	}, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return map[string]string{"echo": p.Message}, nil
	})
	require.NoError(t, err)
	return registry
}

func TestNewRequiresRegistry(t *testing.T) {
	_, err := New(nil, "storyteller", "1.0.0", nil)
	assert.ErrorContains(t, err, "tool registry is required")
}

func TestConvertToolSchemaShapes(t *testing.T) {
	minLen := 1
	def := mcp.ToolDefinition{
		Name:        "advance_phase",
		Description: "Advance game phase",
		Parameters: map[string]mcp.ParamSchema{
			"room_id": {Type: "string", MinLength: &minLen},
			"phase":   {Type: "string", Enum: []string{"day", "night", "nomination"}},
			"count":   {Type: "integer"},
			"force":   {Type: "boolean"},
			"data":    {Type: "object"},
		},
		Required: []string{"room_id", "phase"},
	}

	tool := convertTool(def)
	assert.Equal(t, "advance_phase", tool.Name)
	assert.Equal(t, "Advance game phase", tool.Description)

	props := tool.InputSchema.Properties
	require.Contains(t, props, "room_id")
	require.Contains(t, props, "phase")
	require.Contains(t, props, "count")
	require.Contains(t, props, "force")
	require.Contains(t, props, "data")

	phase, ok := props["phase"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", phase["type"])
	assert.ElementsMatch(t, []string{"day", "night", "nomination"}, phase["enum"])

	count, ok := props["count"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "number", count["type"])

	assert.ElementsMatch(t, []string{"room_id", "phase"}, tool.InputSchema.Required)
}

func TestHandlerInvokesRegistry(t *testing.T) {
	registry := newTestRegistry(t)
	bridge, err := New(registry, "storyteller", "1.0.0", nil)
	require.NoError(t, err)

	req := mcpgo.CallToolRequest{}
	req.Params.Name = "echo"
	req.Params.Arguments = map[string]any{"message": "hello"}

	result, err := bridge.handler("echo")(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	text, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"echo":"hello"}`, text.Text)
}

func TestHandlerReportsValidationFailure(t *testing.T) {
	registry := newTestRegistry(t)
	bridge, err := New(registry, "storyteller", "1.0.0", nil)
	require.NoError(t, err)

	req := mcpgo.CallToolRequest{}
	req.Params.Name = "echo"
	req.Params.Arguments = map[string]any{}

	result, err := bridge.handler("echo")(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
