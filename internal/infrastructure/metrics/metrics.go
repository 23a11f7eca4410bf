package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfassist_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tfassist_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	HTTPErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfassist_http_errors_total",
			Help: "Total number of HTTP responses with status >= 400.",
		},
		[]string{"method", "path", "status"},
	)

	// Generation
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfassist_llm_requests_total",
			Help: "Number of generation calls by model and operation",
		},
		[]string{"model", "operation"}, // operation: generate|explain
	)
	LLMDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tfassist_llm_duration_seconds",
			Help:    "Duration of generation calls",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s..128s
		},
		[]string{"model"},
	)

	// Validation
	ValidationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfassist_validation_runs_total",
			Help: "Number of validation runs by validator and result",
		},
		[]string{"validator", "result"}, // validator: terraform|static, result: pass|fail|error
	)
	ValidationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tfassist_validation_duration_seconds",
			Help:    "Duration of validation runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"validator"},
	)

	// Terraform CLI
	ToolInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfassist_tool_invocations_total",
			Help: "Terraform CLI invocations by subcommand and outcome",
		},
		[]string{"command", "outcome"}, // outcome: ok|nonzero|error
	)
	ActiveWorkspaces = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tfassist_workspaces_active",
			Help: "Validation workspaces currently on disk",
		},
	)

	// History store
	HistoryOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfassist_history_ops_total",
			Help: "History store operations performed",
		},
		[]string{"store", "op"}, // op: put|get|list
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfassist_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		// HTTP
		HTTPRequests,
		HTTPRequestDuration,
		HTTPErrors,
		// LLM
		LLMRequests,
		LLMDurationSeconds,
		// Validation
		ValidationRuns,
		ValidationDurationSeconds,
		// Terraform
		ToolInvocations,
		ActiveWorkspaces,
		// History
		HistoryOps,
		// Errors
		Errors,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewMetricsServer builds a standalone listener for /metrics.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// HTTP
func ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	statusStr := strconv.Itoa(status)
	HTTPRequests.WithLabelValues(method, path).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(d.Seconds())
	if status >= 400 {
		HTTPErrors.WithLabelValues(method, path, statusStr).Inc()
	}
}

// LLM
func IncLLMRequest(model, operation string) {
	LLMRequests.WithLabelValues(model, operation).Inc()
}

func ObserveLLMDuration(model string, d time.Duration) {
	LLMDurationSeconds.WithLabelValues(model).Observe(d.Seconds())
}

// Validation
func IncValidationRun(validator, result string) {
	ValidationRuns.WithLabelValues(validator, result).Inc()
}

func ObserveValidationDuration(validator string, d time.Duration) {
	ValidationDurationSeconds.WithLabelValues(validator).Observe(d.Seconds())
}

// Terraform
func IncToolInvocation(command, outcome string) {
	ToolInvocations.WithLabelValues(command, outcome).Inc()
}

func IncActiveWorkspaces() {
	ActiveWorkspaces.Inc()
}

func DecActiveWorkspaces() {
	ActiveWorkspaces.Dec()
}

// History
func IncHistoryOp(store, op string) {
	HistoryOps.WithLabelValues(store, op).Inc()
}

// Errors
func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
