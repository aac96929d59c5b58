package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus exposition surface for the golden signals named
// in §4.5. It's built the same way an internal/observability/metrics.go
// typically builds its CounterVec/HistogramVec/GaugeVec fields, scoped
// here to the orchestration core's signals instead of channel/LLM traffic.
type Metrics struct {
	// RunCounter counts orchestration runs by terminal status
	// (complete|failed); a cancelled run is counted as failed.
	RunCounter *prometheus.CounterVec

	// StepsPerTask observes the step count of each completed plan, feeding
	// mean_steps_per_task.
	StepsPerTask prometheus.Histogram

	// LatencySeconds measures per-metric latency distributions (end-to-end,
	// plan, route, per-tool, approval wait), labeled by metric name.
	LatencySeconds *prometheus.HistogramVec

	// ToolCallCounter counts tool invocations by tool name and outcome
	// (success|error).
	ToolCallCounter *prometheus.CounterVec

	// ToolErrorCounter counts tool errors by tool name and failure mode.
	ToolErrorCounter *prometheus.CounterVec

	// BudgetWarningCounter counts budget_warning events by profile.
	BudgetWarningCounter *prometheus.CounterVec

	// BudgetExceededCounter counts budget_exceeded events by profile.
	BudgetExceededCounter *prometheus.CounterVec

	// ExporterFailureCounter counts exporter failures by exporter name
	// (§4.5 "record an internal failure counter").
	ExporterFailureCounter *prometheus.CounterVec
}

// NewMetrics registers the collector's Prometheus vectors against reg. Pass
// a fresh prometheus.NewRegistry() in tests to avoid collisions with the
// global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "substrate_runs_total",
			Help: "Orchestration runs by terminal status.",
		}, []string{"status"}),

		StepsPerTask: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "substrate_plan_steps",
			Help:    "Number of steps in each completed plan.",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
		}),

		LatencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "substrate_latency_seconds",
			Help:    "Latency distribution per stage/tool metric.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"metric"}),

		ToolCallCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "substrate_tool_calls_total",
			Help: "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),

		ToolErrorCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "substrate_tool_errors_total",
			Help: "Tool errors by tool and failure mode.",
		}, []string{"tool", "mode"}),

		BudgetWarningCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "substrate_budget_warnings_total",
			Help: "budget_warning events by profile.",
		}, []string{"profile"}),

		BudgetExceededCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "substrate_budget_exceeded_total",
			Help: "budget_exceeded events by profile.",
		}, []string{"profile"}),

		ExporterFailureCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "substrate_exporter_failures_total",
			Help: "Exporter failures by exporter name.",
		}, []string{"exporter"}),
	}
}
