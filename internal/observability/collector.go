package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Exporter fans a StructuredEvent out to an external sink. Export MUST be
// non-blocking from the collector's perspective — implementations queue
// internally — and MUST NOT let a transport failure propagate back into the
// collector (§4.5 "Exporter contract").
type Exporter interface {
	Export(event StructuredEvent)
	Name() string
}

// StructuredEvent mirrors pkg/contract.StructuredEvent; the collector keeps
// its own copy so this package has no import-cycle dependency on pkg/contract
// while remaining field-compatible for adapters that convert between them.
type StructuredEvent struct {
	EventType    string
	TraceID      string
	Timestamp    time.Time
	Status       string
	Attributes   map[string]any
	DurationMS   float64
	ErrorMessage string
}

// CollectorConfig configures the collector's buffer size (§6
// "observability.buffer_size"), its exporters and its metrics. It has no
// auto-export switch: Emit hands every event to every exporter.
type CollectorConfig struct {
	BufferSize int
	Exporters  []Exporter
	Metrics    *Metrics
}

const latencyWindowSize = 1000

// Collector is the singleton observability sink described in §4.5: it
// accepts StructuredEvents, maintains golden-signal aggregates, and fans
// events out to configured exporters. It is injectable (construct your own
// via New) rather than a bare package-level global, per §9 ("have an
// explicit init/shutdown pair and MUST be injectable for tests").
type Collector struct {
	mu         sync.Mutex
	buffer     []StructuredEvent
	bufferSize int
	exporters  []Exporter
	metrics    *Metrics

	successes int64
	total     int64

	latencies map[string][]float64 // metric -> ring buffer of recent samples

	toolCalls  map[string]int
	toolErrors map[string]map[string]int // tool -> mode -> count

	stepCounts []int

	budgetWarnings int64
	budgetExceeded int64

	traces map[string]*traceState
}

type traceState struct {
	startedAt time.Time
}

// New builds a Collector. If cfg.Metrics is nil, a Metrics bound to a fresh
// private Prometheus registry is created so repeated construction (e.g. in
// tests) never collides with prometheus.DefaultRegisterer.
func New(cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Collector{
		bufferSize: cfg.BufferSize,
		exporters:  cfg.Exporters,
		metrics:    metrics,
		latencies:  make(map[string][]float64),
		toolCalls:  make(map[string]int),
		toolErrors: make(map[string]map[string]int),
		traces:     make(map[string]*traceState),
	}
}

// Emit records event, updates golden signals, and fans out to exporters.
// Attributes are redacted per §4.5 before storage or export.
func (c *Collector) Emit(event StructuredEvent) {
	event.Attributes = RedactAttributes(event.Attributes)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, event)
	if len(c.buffer) >= c.bufferSize {
		c.flushLocked()
	}
	c.updateSignalsLocked(event)
	exporters := append([]Exporter(nil), c.exporters...)
	c.mu.Unlock()

	for _, exp := range exporters {
		exp.Export(event)
	}
}

// flushLocked drops the buffered events (callers hold c.mu). Exporters have
// already received every event via Emit, so flush is purely about bounding
// memory, not delivery.
func (c *Collector) flushLocked() {
	c.buffer = c.buffer[:0]
}

func (c *Collector) updateSignalsLocked(event StructuredEvent) {
	switch event.EventType {
	case "tool_call_start":
		if tool, ok := event.Attributes["tool"].(string); ok {
			c.toolCalls[tool]++
		}
	case "tool_call_complete":
		c.total++
		c.successes++
		if tool, ok := event.Attributes["tool"].(string); ok {
			c.metrics.ToolCallCounter.WithLabelValues(tool, "success").Inc()
		}
	case "tool_call_error":
		c.total++
		if tool, ok := event.Attributes["tool"].(string); ok {
			c.metrics.ToolCallCounter.WithLabelValues(tool, "error").Inc()
			mode, _ := event.Attributes["mode"].(string)
			if c.toolErrors[tool] == nil {
				c.toolErrors[tool] = make(map[string]int)
			}
			c.toolErrors[tool][mode]++
			c.metrics.ToolErrorCounter.WithLabelValues(tool, mode).Inc()
		}
	case "budget_warning":
		c.budgetWarnings++
		profile, _ := event.Attributes["profile"].(string)
		c.metrics.BudgetWarningCounter.WithLabelValues(profile).Inc()
	case "budget_exceeded":
		c.budgetExceeded++
		profile, _ := event.Attributes["profile"].(string)
		c.metrics.BudgetExceededCounter.WithLabelValues(profile).Inc()
	case "plan_created":
		if steps, ok := event.Attributes["steps_count"].(int); ok {
			c.stepCounts = append(c.stepCounts, steps)
			c.metrics.StepsPerTask.Observe(float64(steps))
		}
	}

	if event.DurationMS > 0 {
		metric, _ := event.Attributes["metric"].(string)
		if metric == "" {
			metric = string(event.EventType)
		}
		c.recordLatencyLocked(metric, event.DurationMS)
		c.metrics.LatencySeconds.WithLabelValues(metric).Observe(event.DurationMS / 1000.0)
	}

	if event.EventType == "trace_started" {
		c.traces[event.TraceID] = &traceState{startedAt: event.Timestamp}
	}
}

func (c *Collector) recordLatencyLocked(metric string, ms float64) {
	samples := c.latencies[metric]
	samples = append(samples, ms)
	if len(samples) > latencyWindowSize {
		samples = samples[len(samples)-latencyWindowSize:]
	}
	c.latencies[metric] = samples
}

// StartTrace begins golden-signal tracking for traceID.
func (c *Collector) StartTrace(traceID string) {
	c.Emit(StructuredEvent{
		EventType: "trace_started",
		TraceID:   traceID,
		Status:    "success",
	})
}

// EndTrace finalizes traceID's run counter by terminal outcome.
func (c *Collector) EndTrace(traceID string, success bool) {
	c.mu.Lock()
	delete(c.traces, traceID)
	c.mu.Unlock()

	status := "failed"
	if success {
		status = "complete"
	}
	c.metrics.RunCounter.WithLabelValues(status).Inc()
}

// SuccessRate returns successes/total*100, or 0 when no calls have
// completed yet.
func (c *Collector) SuccessRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total == 0 {
		return 0
	}
	return float64(c.successes) / float64(c.total) * 100
}

// MeanStepsPerTask returns the mean plan length observed so far.
func (c *Collector) MeanStepsPerTask() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stepCounts) == 0 {
		return 0
	}
	sum := 0
	for _, n := range c.stepCounts {
		sum += n
	}
	return float64(sum) / float64(len(c.stepCounts))
}

// Quantiles computes p50/p95/p99 over the rolling window for metric.
func (c *Collector) Quantiles(metric string) (p50, p95, p99 float64) {
	c.mu.Lock()
	samples := append([]float64(nil), c.latencies[metric]...)
	c.mu.Unlock()

	if len(samples) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(samples)
	return percentile(samples, 0.50), percentile(samples, 0.95), percentile(samples, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ToolErrorRate returns error-count/total-call-count for tool.
func (c *Collector) ToolErrorRate(tool string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := c.toolCalls[tool]
	if calls == 0 {
		return 0
	}
	errs := 0
	for _, n := range c.toolErrors[tool] {
		errs += n
	}
	return float64(errs) / float64(calls)
}

// Snapshot is a JSON-friendly rendering of the golden signals (§4.5
// "Expose metrics as ... a JSON snapshot").
type Snapshot struct {
	SuccessRate       float64            `json:"success_rate"`
	MeanStepsPerTask  float64            `json:"mean_steps_per_task"`
	BudgetWarnings    int64              `json:"budget_warnings"`
	BudgetExceeded    int64              `json:"budget_exceeded"`
	ToolErrorRates    map[string]float64 `json:"tool_error_rates"`
	ActiveTraces      int                `json:"active_traces"`
}

// JSONSnapshot renders the current golden signals as JSON.
func (c *Collector) JSONSnapshot() ([]byte, error) {
	c.mu.Lock()
	tools := make(map[string]float64, len(c.toolCalls))
	for tool := range c.toolCalls {
		tools[tool] = 0
	}
	budgetWarn := c.budgetWarnings
	budgetExceeded := c.budgetExceeded
	activeTraces := len(c.traces)
	c.mu.Unlock()

	for tool := range tools {
		tools[tool] = c.ToolErrorRate(tool)
	}

	snap := Snapshot{
		SuccessRate:      c.SuccessRate(),
		MeanStepsPerTask: c.MeanStepsPerTask(),
		BudgetWarnings:   budgetWarn,
		BudgetExceeded:   budgetExceeded,
		ToolErrorRates:   tools,
		ActiveTraces:     activeTraces,
	}
	return json.Marshal(snap)
}

// PrometheusText renders every registered metric family as Prometheus text
// exposition format (§6 "/metrics").
func (c *Collector) PrometheusText(reg *prometheus.Registry) (string, error) {
	families, err := reg.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// ResetMetrics clears all in-memory accumulators. Used by tests so "no test
// may depend on wall-clock ordering" (§9).
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = 0
	c.total = 0
	c.latencies = make(map[string][]float64)
	c.toolCalls = make(map[string]int)
	c.toolErrors = make(map[string]map[string]int)
	c.stepCounts = nil
	c.budgetWarnings = 0
	c.budgetExceeded = 0
	c.buffer = nil
	c.traces = make(map[string]*traceState)
}

// Shutdown flushes any remaining buffered events. It never raises; failures
// are silent by design (mirrors agent shutdown semantics, §4.2).
func (c *Collector) Shutdown(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}
