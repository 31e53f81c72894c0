package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, params json.RawMessage) (any, error) {
	var decoded map[string]any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func newRegistryWithEcho(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	err := r.Register(ToolDefinition{
		Name:        "echo",
		Description: "echo parameters back",
		Category:    CategoryInformation,
		Parameters: map[string]ParamSchema{
			"message": {Type: "string", MinLength: intPtr(1), MaxLength: intPtr(20)},
			"phase":   {Type: "string", Enum: []string{"day", "night"}},
			"count":   {Type: "integer", Minimum: floatPtr(0), Maximum: floatPtr(10)},
			"force":   {Type: "boolean"},
			"data":    {Type: "object", Properties: map[string]ParamSchema{"seq": {Type: "number"}}},
			"tags":    {Type: "array"},
		},
		Required: []string{"message"},
	}, echoHandler)
	require.NoError(t, err)
	return r
}

func invoke(t *testing.T, r *Registry, tool string, params string) ToolResult {
	t.Helper()
	return r.Invoke(context.Background(), ToolCall{
		ID:         "call-1",
		ToolName:   tool,
		Parameters: json.RawMessage(params),
	})
}

func TestRegisterRejectsBadDefinitions(t *testing.T) {
	r := NewRegistry()

	err := r.Register(ToolDefinition{Name: ""}, echoHandler)
	assert.Equal(t, ErrKindInvalidSchema, KindOf(err))

	err = r.Register(ToolDefinition{Name: "no_handler"}, nil)
	assert.Equal(t, ErrKindInvalidSchema, KindOf(err))

	err = r.Register(ToolDefinition{
		Name:       "bad_type",
		Parameters: map[string]ParamSchema{"x": {Type: "uuid"}},
	}, echoHandler)
	assert.Equal(t, ErrKindInvalidSchema, KindOf(err))
	assert.ErrorContains(t, err, `unknown type "uuid"`)

	err = r.Register(ToolDefinition{
		Name:     "dangling_required",
		Required: []string{"missing"},
	}, echoHandler)
	assert.Equal(t, ErrKindInvalidSchema, KindOf(err))
	assert.ErrorContains(t, err, `required parameter "missing" has no schema`)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := newRegistryWithEcho(t)
	err := r.Register(ToolDefinition{Name: "echo"}, echoHandler)
	assert.Equal(t, ErrKindDuplicateTool, KindOf(err))
}

func TestListIsSortedByName(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(ToolDefinition{Name: name}, echoHandler))
	}

	defs := r.List()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "mid", defs[1].Name)
	assert.Equal(t, "zeta", defs[2].Name)
}

func TestInvokeUnknownTool(t *testing.T) {
	r := NewRegistry()
	result := invoke(t, r, "nope", `{}`)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "[unknown_tool]")
	assert.Contains(t, result.Error, "tool not found")
}

func TestInvokeValidation(t *testing.T) {
	r := newRegistryWithEcho(t)

	tests := []struct {
		name    string
		params  string
		wantErr string
	}{
		{"missing required", `{}`, `missing required parameter "message"`},
		{"string too short", `{"message":""}`, `shorter than 1`},
		{"string too long", `{"message":"aaaaaaaaaaaaaaaaaaaaaaaaa"}`, `longer than 20`},
		{"enum violation", `{"message":"hi","phase":"twilight"}`, `must be one of`},
		{"non-integer", `{"message":"hi","count":1.5}`, `must be an integer`},
		{"below minimum", `{"message":"hi","count":-1}`, `below minimum`},
		{"above maximum", `{"message":"hi","count":11}`, `above maximum`},
		{"wrong boolean", `{"message":"hi","force":"yes"}`, `must be a boolean`},
		{"wrong object", `{"message":"hi","data":[1]}`, `must be an object`},
		{"nested property", `{"message":"hi","data":{"seq":"x"}}`, `"data.seq" must be a number`},
		{"wrong array", `{"message":"hi","tags":"a"}`, `must be an array`},
		{"not an object", `[1,2]`, `parameters must be a JSON object`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := invoke(t, r, "echo", tt.params)
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, "[validation]")
			assert.Contains(t, result.Error, tt.wantErr)
		})
	}
}

func TestInvokeToleratesUnknownParameters(t *testing.T) {
	r := newRegistryWithEcho(t)
	result := invoke(t, r, "echo", `{"message":"hi","extra":42}`)
	assert.True(t, result.Success)
}

func TestInvokeSuccess(t *testing.T) {
	r := newRegistryWithEcho(t)
	result := invoke(t, r, "echo", `{"message":"hello","count":3}`)

	require.True(t, result.Success)
	assert.Equal(t, "call-1", result.CallID)
	assert.GreaterOrEqual(t, result.DurationMs, int64(0))
	assert.JSONEq(t, `{"message":"hello","count":3}`, string(result.Result))
}

func TestInvokeEmptyParamsDefaultsToObject(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ToolDefinition{Name: "noop"}, echoHandler))

	result := r.Invoke(context.Background(), ToolCall{ID: "c", ToolName: "noop"})
	assert.True(t, result.Success)
	assert.JSONEq(t, `{}`, string(result.Result))
}

func TestInvokeHandlerError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ToolDefinition{Name: "fail"}, func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, fmt.Errorf("engine unavailable")
	}))

	result := invoke(t, r, "fail", `{}`)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "[handler]")
	assert.Contains(t, result.Error, "engine unavailable")
}

func TestInvokeRecoversHandlerPanic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ToolDefinition{Name: "boom"}, func(ctx context.Context, params json.RawMessage) (any, error) {
		panic("nil state")
	}))

	result := invoke(t, r, "boom", `{}`)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "handler panic")
	assert.Contains(t, result.Error, "nil state")
}

func TestCallConvenienceWrapper(t *testing.T) {
	r := newRegistryWithEcho(t)

	raw, err := r.Call(context.Background(), "echo", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi"}`, string(raw))

	_, err = r.Call(context.Background(), "echo", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, ErrKindHandler, KindOf(err))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(fmt.Errorf("plain")))
}
