// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the codeloop service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LoopBuckets defines histogram buckets suited for LLM generation and
// sandbox execution latencies, ranging from 100ms to 120s.
var LoopBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeloop_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codeloop_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LoopBuckets,
		},
		[]string{"method"},
	)

	// TasksTotal counts completed tasks by terminal status.
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeloop_tasks_total",
			Help: "Completed tasks",
		},
		[]string{"status"},
	)

	// TasksInFlight tracks the number of tasks currently running.
	TasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codeloop_tasks_in_flight",
			Help: "Tasks currently running",
		},
	)

	// AttemptsTotal counts generation+execution attempts by outcome.
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeloop_attempts_total",
			Help: "Generation and execution attempts",
		},
		[]string{"outcome"},
	)

	// AttemptsPerTask records how many attempts each finished task used.
	AttemptsPerTask = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codeloop_attempts_per_task",
			Help:    "Attempts used per finished task",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		},
	)

	// GenerationLatency records code generation latency in seconds.
	GenerationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codeloop_generation_latency_seconds",
			Help:    "Code generation latency",
			Buckets: LoopBuckets,
		},
		[]string{"backend", "status"},
	)

	// ExecutionLatency records sandbox execution latency in seconds.
	ExecutionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codeloop_execution_latency_seconds",
			Help:    "Sandbox execution latency",
			Buckets: LoopBuckets,
		},
		[]string{"executor", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		TasksTotal,
		TasksInFlight,
		AttemptsTotal,
		AttemptsPerTask,
		GenerationLatency,
		ExecutionLatency,
	)
}
