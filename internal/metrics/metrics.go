// Package metrics provides Prometheus metrics for the grading service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Grading
	GradingsTotal    *prometheus.CounterVec
	GradingDuration  *prometheus.HistogramVec
	StepFailures     *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	GradingsInFlight prometheus.Gauge

	// Sandbox pools
	SandboxesIdle       *prometheus.GaugeVec
	SandboxesActive     *prometheus.GaugeVec
	SandboxCreatesTotal *prometheus.CounterVec
	PoolExhaustedTotal  *prometheus.CounterVec

	// Sandbox commands
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
}

// Get returns the singleton Metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gradehouse_http_requests_total",
				Help: "Total HTTP requests by method, path, and status",
			}, []string{"method", "path", "status"}),
			HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "gradehouse_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "path"}),

			GradingsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gradehouse_gradings_total",
				Help: "Total grading runs by language and final status",
			}, []string{"language", "status"}),
			GradingDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "gradehouse_grading_duration_seconds",
				Help:    "End-to-end pipeline duration",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			}, []string{"language"}),
			StepFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gradehouse_pipeline_step_failures_total",
				Help: "Failed pipeline steps by step name",
			}, []string{"step"}),
			StepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "gradehouse_pipeline_step_duration_seconds",
				Help:    "Per-step execution time",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
			}, []string{"step"}),
			GradingsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "gradehouse_gradings_in_flight",
				Help: "Pipeline executions currently running",
			}),

			SandboxesIdle: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "gradehouse_sandboxes_idle",
				Help: "Idle sandboxes per language pool",
			}, []string{"language"}),
			SandboxesActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "gradehouse_sandboxes_active",
				Help: "Active sandboxes per language pool",
			}, []string{"language"}),
			SandboxCreatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gradehouse_sandbox_creates_total",
				Help: "Sandbox containers created per language",
			}, []string{"language"}),
			PoolExhaustedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gradehouse_pool_exhausted_total",
				Help: "Acquisitions rejected because the pool was exhausted",
			}, []string{"language"}),

			CommandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gradehouse_sandbox_commands_total",
				Help: "Sandbox commands by language and category",
			}, []string{"language", "category"}),
			CommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "gradehouse_sandbox_command_duration_seconds",
				Help:    "Sandbox command latency",
				Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60},
			}, []string{"language"}),
		}
	})
	return instance
}

// ObserveHTTPRequest records one handled HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
