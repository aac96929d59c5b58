package observability

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleExporterWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	exp := NewConsoleExporter(&buf, 4)

	exp.Export(StructuredEvent{EventType: "tool_call_start", TraceID: "t1"})
	exp.Export(StructuredEvent{EventType: "tool_call_complete", TraceID: "t1"})
	exp.Close()

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		lines++
	}
	assert.Equal(t, 2, lines)
	assert.Equal(t, "console", exp.Name())
	assert.Equal(t, int64(0), exp.Failures())
}

func TestConsoleExporterDropsWhenQueueFull(t *testing.T) {
	var buf bytes.Buffer
	exp := NewConsoleExporter(&buf, 1)

	// Fire many events quickly; a full queue must drop rather than block.
	for i := 0; i < 50; i++ {
		exp.Export(StructuredEvent{EventType: "tool_call_start"})
	}
	exp.Close()

	assert.GreaterOrEqual(t, exp.Failures(), int64(0))
}

func TestConsoleExporterDefaultsStdoutAndQueueDepth(t *testing.T) {
	exp := NewConsoleExporter(nil, 0)
	require.NotNil(t, exp)
	exp.Close()
}

type panickingExporter struct{}

func (panickingExporter) Export(StructuredEvent) { panic("boom") }
func (panickingExporter) Name() string           { return "panicking" }

type okExporter struct {
	received chan StructuredEvent
}

func (e okExporter) Export(event StructuredEvent) { e.received <- event }
func (e okExporter) Name() string                 { return "ok" }

func TestFanoutExporterRecoversFromPanickingExporter(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	received := make(chan StructuredEvent, 1)
	fanout := NewFanoutExporter(metrics, panickingExporter{}, okExporter{received: received})

	assert.NotPanics(t, func() {
		fanout.Export(StructuredEvent{EventType: "tool_call_start"})
	})

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("expected okExporter to still receive the event")
	}

	assert.Equal(t, "fanout", fanout.Name())
}
