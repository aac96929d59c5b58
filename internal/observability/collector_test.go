package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector() *Collector {
	reg := prometheus.NewRegistry()
	return New(CollectorConfig{BufferSize: 10, Metrics: NewMetrics(reg)})
}

func TestCollectorSuccessRate(t *testing.T) {
	c := newTestCollector()
	c.Emit(StructuredEvent{EventType: "tool_call_complete", TraceID: "t1", Attributes: map[string]any{"tool": "echo"}})
	c.Emit(StructuredEvent{EventType: "tool_call_error", TraceID: "t1", Attributes: map[string]any{"tool": "echo", "mode": "SYSTEM_NETWORK"}})

	assert.InDelta(t, 50.0, c.SuccessRate(), 0.001)
}

func TestCollectorMeanStepsPerTask(t *testing.T) {
	c := newTestCollector()
	c.Emit(StructuredEvent{EventType: "plan_created", Attributes: map[string]any{"steps_count": 2}})
	c.Emit(StructuredEvent{EventType: "plan_created", Attributes: map[string]any{"steps_count": 4}})

	assert.InDelta(t, 3.0, c.MeanStepsPerTask(), 0.001)
}

func TestCollectorRedactsOnEmit(t *testing.T) {
	c := newTestCollector()
	captured := make(chan StructuredEvent, 1)
	c.exporters = []Exporter{captureExporter{ch: captured}}

	c.Emit(StructuredEvent{EventType: "tool_call_start", Attributes: map[string]any{"api_key": "sk-live-xyz", "tool": "echo"}})

	event := <-captured
	assert.Equal(t, RedactedSentinel, event.Attributes["api_key"])
	assert.Equal(t, "echo", event.Attributes["tool"])
}

func TestCollectorBudgetCounters(t *testing.T) {
	c := newTestCollector()
	c.Emit(StructuredEvent{EventType: "budget_warning", Attributes: map[string]any{"profile": "prod"}})
	c.Emit(StructuredEvent{EventType: "budget_exceeded", Attributes: map[string]any{"profile": "prod"}})

	snap, err := c.JSONSnapshot()
	require.NoError(t, err)
	assert.Contains(t, string(snap), `"budget_warnings":1`)
	assert.Contains(t, string(snap), `"budget_exceeded":1`)
}

func TestCollectorToolErrorRate(t *testing.T) {
	c := newTestCollector()
	c.Emit(StructuredEvent{EventType: "tool_call_start", Attributes: map[string]any{"tool": "search"}})
	c.Emit(StructuredEvent{EventType: "tool_call_start", Attributes: map[string]any{"tool": "search"}})
	c.Emit(StructuredEvent{EventType: "tool_call_error", Attributes: map[string]any{"tool": "search", "mode": "SYSTEM_TIMEOUT"}})

	assert.InDelta(t, 0.5, c.ToolErrorRate("search"), 0.001)
}

func TestCollectorQuantiles(t *testing.T) {
	c := newTestCollector()
	for _, ms := range []float64{10, 20, 30, 40, 50} {
		c.Emit(StructuredEvent{EventType: "tool_call_complete", DurationMS: ms, Attributes: map[string]any{"metric": "end_to_end", "tool": "x"}})
	}
	p50, p95, p99 := c.Quantiles("end_to_end")
	assert.Greater(t, p50, 0.0)
	assert.GreaterOrEqual(t, p99, p95)
	assert.GreaterOrEqual(t, p95, p50)
}

func TestCollectorStartEndTrace(t *testing.T) {
	c := newTestCollector()
	c.StartTrace("trace-1")
	c.EndTrace("trace-1", true)
	// EndTrace should not panic on an unknown trace either.
	c.EndTrace("unknown", false)
}

func TestCollectorResetMetrics(t *testing.T) {
	c := newTestCollector()
	c.Emit(StructuredEvent{EventType: "tool_call_complete", Attributes: map[string]any{"tool": "x"}})
	c.ResetMetrics()
	assert.Equal(t, 0.0, c.SuccessRate())
}

func TestCollectorShutdownNeverPanics(t *testing.T) {
	c := newTestCollector()
	assert.NotPanics(t, func() { c.Shutdown(context.Background()) })
}

type captureExporter struct {
	ch chan StructuredEvent
}

func (c captureExporter) Export(event StructuredEvent) { c.ch <- event }
func (c captureExporter) Name() string                 { return "capture" }
