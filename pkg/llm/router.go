package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ravenwood/storyteller/pkg/observability"
)

// Router masks the existence of multiple model backends. Clients are
// resolved once at construction so the hot path is a map lookup.
type Router struct {
	defaultClient *Client
	clients       map[TaskKind]*Client
}

// NewRouter builds one client per configured task kind. Task bundles
// inherit unset fields from the default bundle.
func NewRouter(cfg RoutingConfig) *Router {
	r := &Router{
		defaultClient: NewClient(cfg.Default),
		clients:       make(map[TaskKind]*Client, len(cfg.Tasks)),
	}
	for kind, taskCfg := range cfg.Tasks {
		r.clients[kind] = NewClient(mergeConfig(cfg.Default, taskCfg))
	}
	return r
}

func mergeConfig(base, override Config) Config {
	merged := base
	if override.BaseURL != "" {
		merged.BaseURL = override.BaseURL
	}
	if override.APIKey != "" {
		merged.APIKey = override.APIKey
	}
	if override.Model != "" {
		merged.Model = override.Model
	}
	if override.Timeout > 0 {
		merged.Timeout = override.Timeout
	}
	return merged
}

// Resolve returns the client serving a task kind, falling back to default.
func (r *Router) Resolve(kind TaskKind) *Client {
	if c, ok := r.clients[kind]; ok {
		return c
	}
	return r.defaultClient
}

// Chat routes one chat-completion call by task kind. The router does not
// retry; the orchestrator owns retry policy.
func (r *Router) Chat(ctx context.Context, kind TaskKind, messages []Message, tools []ToolDefinition) (*ChatResponse, error) {
	client := r.Resolve(kind)
	start := time.Now()

	tracer := observability.Tracer("storyteller.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, client.Model()),
			attribute.String(observability.AttrLLMTask, string(kind)),
		))
	defer span.End()

	resp, err := client.Chat(ctx, messages, tools)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordLLMCall(string(kind), duration, 0, 0, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "success")
	observability.RecordLLMCall(string(kind), duration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil)
	return resp, nil
}
