package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersAndIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RunCounter.WithLabelValues("complete").Inc()
	m.ToolCallCounter.WithLabelValues("search", "success").Inc()
	m.ToolErrorCounter.WithLabelValues("search", "SYSTEM_TIMEOUT").Inc()
	m.BudgetWarningCounter.WithLabelValues("prod").Inc()
	m.BudgetExceededCounter.WithLabelValues("prod").Inc()
	m.ExporterFailureCounter.WithLabelValues("console").Inc()
	m.StepsPerTask.Observe(3)
	m.LatencySeconds.WithLabelValues("end_to_end").Observe(0.25)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}

	for _, want := range []string{
		"substrate_runs_total",
		"substrate_plan_steps",
		"substrate_latency_seconds",
		"substrate_tool_calls_total",
		"substrate_tool_errors_total",
		"substrate_budget_warnings_total",
		"substrate_budget_exceeded_total",
		"substrate_exporter_failures_total",
	} {
		assert.True(t, names[want], "expected metric family %s to be registered", want)
	}
}

func TestNewMetricsFreshRegistryNoCollision(t *testing.T) {
	// Building Metrics twice against independent registries must not panic
	// from duplicate-registration errors.
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
