// Package mcp implements the tool registry that mediates every side effect
// the Storyteller agent has on the game engine. Tools are declared with a
// parameter schema; the registry validates parameters once at the boundary
// and hands the handler pre-validated JSON.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ravenwood/storyteller/pkg/observability"
)

// Category groups tools for presentation.
type Category string

const (
	CategoryCommunication Category = "communication"
	CategoryGameControl   Category = "game_control"
	CategoryModeration    Category = "moderation"
	CategoryInformation   Category = "information"
)

// Parameter types accepted by ParamSchema.
var knownParamTypes = map[string]struct{}{
	"string":  {},
	"number":  {},
	"integer": {},
	"boolean": {},
	"object":  {},
	"array":   {},
}

// ParamSchema constrains a single tool parameter.
type ParamSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	MinLength   *int                   `json:"min_length,omitempty"`
	MaxLength   *int                   `json:"max_length,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Properties  map[string]ParamSchema `json:"properties,omitempty"`
}

// ToolDefinition declares a tool: its name, category, parameter schema and
// the parameters a caller must supply.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Category    Category               `json:"category"`
	Parameters  map[string]ParamSchema `json:"parameters"`
	Required    []string               `json:"required,omitempty"`
}

// Handler executes a tool call. Parameters have already been validated
// against the tool's schema.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// ToolCall is one invocation request.
type ToolCall struct {
	ID         string          `json:"id"`
	ToolName   string          `json:"tool_name"`
	Parameters json.RawMessage `json:"parameters"`
	Timestamp  int64           `json:"timestamp"`
}

// ToolResult is the uniform invocation outcome.
type ToolResult struct {
	CallID     string          `json:"call_id"`
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

type registeredTool struct {
	def     ToolDefinition
	handler Handler
}

// Registry holds tool definitions and dispatches validated invocations.
// Registration happens at startup; invocation is read-mostly, so a RWMutex
// suffices. The registry never retries a handler.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registeredTool)}
}

// Register adds a tool. It fails with ErrKindDuplicateTool when the name is
// taken and ErrKindInvalidSchema when the schema references unknown types.
func (r *Registry) Register(def ToolDefinition, handler Handler) error {
	if def.Name == "" {
		return newError(ErrKindInvalidSchema, def.Name, "tool name cannot be empty", nil)
	}
	if handler == nil {
		return newError(ErrKindInvalidSchema, def.Name, "handler cannot be nil", nil)
	}
	if err := validateSchema(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return newError(ErrKindDuplicateTool, def.Name, "tool already registered", nil)
	}
	r.tools[def.Name] = registeredTool{def: def, handler: handler}
	return nil
}

// List returns all tool definitions sorted by name, for presentation to a
// model as tool declarations.
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke validates the call against the tool's schema and runs the handler
// under the caller-supplied context. Handler panics are translated to a
// HandlerError result with a sanitized message.
func (r *Registry) Invoke(ctx context.Context, call ToolCall) ToolResult {
	start := time.Now()

	tracer := observability.Tracer("storyteller.mcp")
	ctx, span := tracer.Start(ctx, observability.SpanToolInvoke,
		trace.WithAttributes(attribute.String(observability.AttrToolName, call.ToolName)))
	defer span.End()

	result := r.invoke(ctx, call)
	result.CallID = call.ID
	result.DurationMs = time.Since(start).Milliseconds()

	if result.Success {
		span.SetStatus(codes.Ok, "success")
	} else {
		span.SetStatus(codes.Error, result.Error)
	}
	span.SetAttributes(attribute.Bool("tool.success", result.Success))
	observability.RecordToolInvocation(call.ToolName, time.Since(start), result.Success)

	return result
}

// Call is a convenience wrapper for in-process callers: it marshals args,
// invokes the tool and returns the raw result or an error.
func (r *Registry) Call(ctx context.Context, name string, args any) (json.RawMessage, error) {
	params, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args for %s: %w", name, err)
	}
	result := r.Invoke(ctx, ToolCall{
		ID:         newCallID(),
		ToolName:   name,
		Parameters: params,
		Timestamp:  time.Now().UnixMilli(),
	})
	if !result.Success {
		return nil, newError(ErrKindHandler, name, result.Error, nil)
	}
	return result.Result, nil
}

func (r *Registry) invoke(ctx context.Context, call ToolCall) (result ToolResult) {
	r.mu.RLock()
	tool, exists := r.tools[call.ToolName]
	r.mu.RUnlock()
	if !exists {
		return ToolResult{Error: newError(ErrKindUnknownTool, call.ToolName, "tool not found", nil).Error()}
	}

	params := call.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	if err := validateParams(tool.def, params); err != nil {
		return ToolResult{Error: err.Error()}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = ToolResult{
				Error: newError(ErrKindHandler, call.ToolName, fmt.Sprintf("handler panic: %v", rec), nil).Error(),
			}
		}
	}()

	out, err := tool.handler(ctx, params)
	if err != nil {
		return ToolResult{Error: newError(ErrKindHandler, call.ToolName, "handler failed", err).Error()}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return ToolResult{Error: newError(ErrKindHandler, call.ToolName, "marshal handler result", err).Error()}
	}
	return ToolResult{Success: true, Result: raw}
}

func validateSchema(def ToolDefinition) error {
	for name, schema := range def.Parameters {
		if err := validateSchemaField(def.Name, name, schema); err != nil {
			return err
		}
	}
	for _, req := range def.Required {
		if _, ok := def.Parameters[req]; !ok {
			return newError(ErrKindInvalidSchema, def.Name,
				fmt.Sprintf("required parameter %q has no schema", req), nil)
		}
	}
	return nil
}

func validateSchemaField(tool, field string, schema ParamSchema) error {
	if _, ok := knownParamTypes[schema.Type]; !ok {
		return newError(ErrKindInvalidSchema, tool,
			fmt.Sprintf("parameter %q has unknown type %q", field, schema.Type), nil)
	}
	for name, sub := range schema.Properties {
		if err := validateSchemaField(tool, field+"."+name, sub); err != nil {
			return err
		}
	}
	return nil
}
