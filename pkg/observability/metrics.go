// Package observability provides Prometheus metrics, outbound HTTP
// instrumentation and OpenTelemetry tracing for plauder.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Completion modes used as the "mode" label.
const (
	ModeBlocking  = "blocking"
	ModeStreaming = "streaming"
)

// Outcome labels used as the "status" label.
const (
	StatusOK            = "ok"
	StatusRequestFailed = "request_failed"
	StatusEmptyResponse = "empty_response"
	StatusInvalid       = "invalid_request"
	StatusError         = "error"
)

var (
	// CompletionsTotal counts completion calls by provider, mode and outcome.
	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plauder_completions_total",
			Help: "Completion calls",
		},
		[]string{"provider", "mode", "status"},
	)

	// CompletionLatency records the wall time of a completion call, from
	// request to assembled message.
	CompletionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plauder_completion_latency_seconds",
			Help:    "Completion latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "mode"},
	)

	// StreamFragmentsTotal counts content fragments delivered while streaming.
	StreamFragmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plauder_stream_fragments_total",
			Help: "Streamed content fragments",
		},
		[]string{"provider"},
	)

	// StreamSkippedLinesTotal counts stream lines that carried no content,
	// by reason (blank, non_data, malformed, no_content).
	StreamSkippedLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plauder_stream_skipped_lines_total",
			Help: "Stream lines skipped by the chunk decoder",
		},
		[]string{"provider", "reason"},
	)

	// ActiveStreams tracks streams currently open.
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plauder_streams_active",
			Help: "Open completion streams",
		},
	)

	// TokensTotal counts tokens reported by the backend, by direction
	// (input/output).
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plauder_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "direction"},
	)

	// HTTPRequestsTotal counts outbound HTTP requests by provider, method
	// and status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plauder_http_requests_total",
			Help: "Outbound HTTP requests",
		},
		[]string{"provider", "code", "method"},
	)

	// HTTPRequestDuration records time to response headers for outbound
	// HTTP requests.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plauder_http_request_duration_seconds",
			Help:    "Outbound HTTP time to headers",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "code", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		CompletionsTotal,
		CompletionLatency,
		StreamFragmentsTotal,
		StreamSkippedLinesTotal,
		ActiveStreams,
		TokensTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
