// Package metrics registers Bullpen's Prometheus collectors.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evolution outcomes.
const (
	EvolutionSkippedMissing  = "skipped_missing"
	EvolutionSkippedCooldown = "skipped_cooldown"
	EvolutionSkippedGate     = "skipped_gate"
	EvolutionSkippedModel    = "skipped_model"
	EvolutionEvolved         = "evolved"
	EvolutionError           = "error"
)

// Dispatch outcomes.
const (
	DispatchExecuted     = "executed"
	DispatchFailed       = "failed"
	DispatchUnknownAgent = "unknown_agent"
)

// Metrics holds all Prometheus metrics for Bullpen.
type Metrics struct {
	// Specialist metrics
	SpecialistExecutions *prometheus.CounterVec
	SpecialistDuration   *prometheus.HistogramVec

	// Dispatch metrics
	DispatchParts *prometheus.CounterVec

	// Evolution metrics
	EvolutionOutcomes *prometheus.CounterVec

	// Usage metrics
	ModelTokens *prometheus.CounterVec
	ModelCost   *prometheus.CounterVec

	// System metrics
	ExecutionsReaped    prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics. Every call
// returns the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			SpecialistExecutions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bullpen_specialist_executions_total",
					Help: "Total number of specialist executions by terminal status",
				},
				[]string{"status"},
			),
			SpecialistDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "bullpen_specialist_execution_duration_seconds",
					Help:    "Duration of specialist executions in seconds",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to 256s
				},
				[]string{"status"},
			),
			DispatchParts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bullpen_dispatch_parts_total",
					Help: "Approved dispatch tool parts processed, by outcome",
				},
				[]string{"outcome"},
			),
			EvolutionOutcomes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bullpen_evolution_outcomes_total",
					Help: "Prompt evolution checks by outcome",
				},
				[]string{"outcome"},
			),
			ModelTokens: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bullpen_model_tokens_total",
					Help: "Tokens consumed by model calls",
				},
				[]string{"source", "model", "direction"},
			),
			ModelCost: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bullpen_model_cost_cents_total",
					Help: "Estimated model cost in cents",
				},
				[]string{"source", "model"},
			),
			ExecutionsReaped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "bullpen_executions_reaped_total",
					Help: "Running executions failed as abandoned by the reaper",
				},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bullpen_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "bullpen_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})

	return sharedMetrics
}

// RecordSpecialist records one specialist execution.
func (m *Metrics) RecordSpecialist(status string, d time.Duration) {
	m.SpecialistExecutions.WithLabelValues(status).Inc()
	m.SpecialistDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordDispatch records the outcome of one approved dispatch part.
func (m *Metrics) RecordDispatch(outcome string) {
	m.DispatchParts.WithLabelValues(outcome).Inc()
}

// RecordEvolution records the outcome of one evolution check.
func (m *Metrics) RecordEvolution(outcome string) {
	m.EvolutionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordUsage records tokens and cost of a model call.
func (m *Metrics) RecordUsage(source, model string, inputTokens, outputTokens, costCents int) {
	if inputTokens > 0 {
		m.ModelTokens.WithLabelValues(source, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.ModelTokens.WithLabelValues(source, model, "output").Add(float64(outputTokens))
	}
	if costCents > 0 {
		m.ModelCost.WithLabelValues(source, model).Add(float64(costCents))
	}
}

// RecordReaped records executions failed by the reaper.
func (m *Metrics) RecordReaped(n int64) {
	if n > 0 {
		m.ExecutionsReaped.Add(float64(n))
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
