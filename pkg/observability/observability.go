// Package observability wires tracing and metrics for the agent. Tracing
// uses OpenTelemetry with a stdout exporter by default; metrics are
// Prometheus counters and histograms exposed on /metrics.
package observability

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	AttrToolName  = "tool.name"
	AttrLLMModel  = "llm.model"
	AttrLLMTask   = "llm.task"
	AttrRoomID    = "room.id"
	AttrRunID     = "run.id"
	AttrEventType = "event.type"

	SpanToolInvoke   = "storyteller.tool_invoke"
	SpanLLMRequest   = "storyteller.llm_request"
	SpanRun          = "storyteller.run"
	SpanEventProcess = "storyteller.event_process"

	DefaultServiceName = "storyteller"
)

// TracerConfig controls trace export.
type TracerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// InitTracer installs the global tracer provider. When disabled, a no-op
// provider is installed so instrumented code needs no nil checks.
func InitTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
