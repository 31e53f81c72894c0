package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storyteller_runs_total",
		Help: "Orchestrator runs by final status.",
	}, []string{"status"})

	runLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storyteller_run_latency_seconds",
		Help:    "End-to-end latency of one orchestrator run.",
		Buckets: prometheus.DefBuckets,
	})

	toolInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storyteller_tool_invocations_total",
		Help: "Tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})

	toolLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storyteller_tool_latency_seconds",
		Help:    "Latency of individual tool invocations.",
		Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10, 30},
	}, []string{"tool"})

	llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storyteller_llm_calls_total",
		Help: "LLM chat calls by task kind and outcome.",
	}, []string{"task", "outcome"})

	llmLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storyteller_llm_latency_seconds",
		Help:    "Latency of LLM chat calls.",
		Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 16, 30},
	}, []string{"task"})

	llmTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storyteller_llm_tokens_total",
		Help: "Tokens consumed by LLM calls.",
	}, []string{"task", "direction"})

	eventsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storyteller_events_ingested_total",
		Help: "Engine events accepted for processing, by dispatch path.",
	}, []string{"path"})
)

func init() {
	registry.MustRegister(
		runsTotal, runLatency,
		toolInvocations, toolLatency,
		llmCalls, llmLatency, llmTokens,
		eventsIngested,
	)
}

// MetricsHandler serves the Prometheus exposition endpoint.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordRun records one orchestrator run outcome.
func RecordRun(status string, d time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runLatency.Observe(d.Seconds())
}

// RecordToolInvocation records a single tool call outcome.
func RecordToolInvocation(tool string, d time.Duration, success bool) {
	outcome := "error"
	if success {
		outcome = "success"
	}
	toolInvocations.WithLabelValues(tool, outcome).Inc()
	toolLatency.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordLLMCall records a single chat call outcome.
func RecordLLMCall(task string, d time.Duration, promptTokens, completionTokens int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	llmCalls.WithLabelValues(task, outcome).Inc()
	llmLatency.WithLabelValues(task).Observe(d.Seconds())
	if promptTokens > 0 {
		llmTokens.WithLabelValues(task, "input").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		llmTokens.WithLabelValues(task, "output").Add(float64(completionTokens))
	}
}

// RecordEventIngested records one accepted engine event. Path is "inline"
// or "queued".
func RecordEventIngested(path string) {
	eventsIngested.WithLabelValues(path).Inc()
}
