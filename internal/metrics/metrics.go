// Package metrics holds the Prometheus collectors of the optimizer service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Optimization outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeInput      = "input_error"
	OutcomeInfeasible = "infeasible"
	OutcomeUnstable   = "numeric_instability"
	OutcomeError      = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	OptimizationsTotal   *prometheus.CounterVec
	OptimizationDuration prometheus.Histogram
	SolverIterations     prometheus.Histogram

	ToolCallsTotal *prometheus.CounterVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	FoodsLoaded prometheus.Gauge
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		OptimizationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meal_optimizations_total",
				Help: "Total number of optimizer invocations by outcome",
			},
			[]string{"outcome"},
		),
		OptimizationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meal_optimization_duration_seconds",
				Help:    "Wall time of optimizer invocations",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		SolverIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meal_solver_iterations",
				Help:    "Outer solver iterations of successful optimizations",
				Buckets: prometheus.LinearBuckets(1, 5, 20),
			},
		),

		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meal_tool_calls_total",
				Help: "Total number of MCP tool calls",
			},
			[]string{"tool", "status"},
		),

		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "meal_optimization_cache_hits_total",
			Help: "Optimizations answered from the result cache",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "meal_optimization_cache_misses_total",
			Help: "Optimizations that had to run the solver",
		}),

		FoodsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meal_foods_loaded",
			Help: "Rows in the loaded food table",
		}),
	}
}

func (m *Metrics) ObserveOptimization(outcome string, elapsed time.Duration, iterations int) {
	m.OptimizationsTotal.WithLabelValues(outcome).Inc()
	m.OptimizationDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeSuccess {
		m.SolverIterations.Observe(float64(iterations))
	}
}

func (m *Metrics) ObserveToolCall(tool, status string) {
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
