// Package llm routes chat-completion work to generative-model backends by
// task kind. Callers never know which backend serves a given call; routing
// is resolved once at construction.
package llm

import (
	"time"
)

// TaskKind selects which model endpoint serves a call. Unmapped kinds fall
// back to TaskDefault.
type TaskKind string

const (
	TaskDefault       TaskKind = "default"
	TaskPlanner       TaskKind = "planner"
	TaskRules         TaskKind = "rules"
	TaskNarrator      TaskKind = "narrator"
	TaskSummarizer    TaskKind = "summarizer"
	TaskPlayerModeler TaskKind = "player_modeler"
)

// Config is one client bundle: endpoint, credentials, model and timeout.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// RoutingConfig maps task kinds to client bundles. Task entries inherit
// unset fields from Default.
type RoutingConfig struct {
	Default Config              `yaml:"default"`
	Tasks   map[TaskKind]Config `yaml:"tasks,omitempty"`
}

// Message is one chat turn in the OpenAI-compatible wire shape.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition is a function-style tool declaration presented to the
// model. Parameters is a JSON-schema-shaped object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Choice is one completion candidate.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the parsed completion response.
type ChatResponse struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Text returns the first choice's content, or "" when the response carries
// no choices.
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
