// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// IntentsTotal counts extracted intents by kind and by the stage that produced them.
	IntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_intents_total",
			Help: "Intents extracted from user messages",
		},
		[]string{"intent", "source"},
	)

	// ToolCallsTotal counts tool invocations by outcome.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tool_calls_total",
			Help: "Tool invocations by outcome",
		},
		[]string{"tool", "outcome"},
	)

	// ToolCallDuration tracks tool execution time, retries included.
	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_tool_call_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"tool"},
	)

	// ConfirmationsTotal counts confirmation prompts and their answers.
	ConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_confirmations_total",
			Help: "Confirmation prompts and replies",
		},
		[]string{"tool", "outcome"},
	)

	// ResolutionsTotal counts task reference resolutions by the rule that applied.
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_reference_resolutions_total",
			Help: "Task reference resolutions by rule",
		},
		[]string{"rule"},
	)

	// LLMRequestDuration tracks classifier completion latency.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM request duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 3, 5, 10},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// MessagesTotal tracks total messages stored.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"role"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordIntent records one extracted intent.
func RecordIntent(intent, source string) {
	IntentsTotal.WithLabelValues(intent, source).Inc()
}

// RecordToolCall records one tool invocation.
func RecordToolCall(tool, outcome string, duration float64) {
	ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	ToolCallDuration.WithLabelValues(tool).Observe(duration)
}

// RecordConfirmation records a confirmation prompt or reply.
func RecordConfirmation(tool, outcome string) {
	ConfirmationsTotal.WithLabelValues(tool, outcome).Inc()
}

// RecordResolution records which rule resolved (or failed to resolve) a task reference.
func RecordResolution(rule string) {
	ResolutionsTotal.WithLabelValues(rule).Inc()
}

// RecordLLMRequest records metrics for a single LLM completion.
func RecordLLMRequest(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordConversation records a newly created conversation.
func RecordConversation() {
	ConversationsTotal.Inc()
}

// RecordMessage records a stored message.
func RecordMessage(role string) {
	MessagesTotal.WithLabelValues(role).Inc()
}
