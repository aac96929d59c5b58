package observability

import (
	"encoding/json"
	"io"
	"os"
	"sync/atomic"
)

// ConsoleExporter is the offline-first default exporter (§4.5): it writes
// each event as a line of JSON to its configured writer (stdout by
// default). Export queues internally via a buffered channel so the caller
// never blocks on write.
type ConsoleExporter struct {
	out      io.Writer
	queue    chan StructuredEvent
	failures atomic.Int64
	done     chan struct{}
}

// NewConsoleExporter starts a ConsoleExporter writing to out (os.Stdout if
// nil) with the given queue depth.
func NewConsoleExporter(out io.Writer, queueDepth int) *ConsoleExporter {
	if out == nil {
		out = os.Stdout
	}
	if queueDepth <= 0 {
		queueDepth = 256
	}
	e := &ConsoleExporter{
		out:   out,
		queue: make(chan StructuredEvent, queueDepth),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *ConsoleExporter) run() {
	defer close(e.done)
	enc := json.NewEncoder(e.out)
	for event := range e.queue {
		if err := enc.Encode(event); err != nil {
			e.failures.Add(1)
		}
	}
}

// Export enqueues event without blocking; if the queue is full the event is
// dropped and the failure counter is incremented, per the exporter contract
// ("MUST degrade silently on transport failure").
func (e *ConsoleExporter) Export(event StructuredEvent) {
	select {
	case e.queue <- event:
	default:
		e.failures.Add(1)
	}
}

// Name identifies this exporter for the collector's per-exporter failure
// metric.
func (e *ConsoleExporter) Name() string { return "console" }

// Failures reports the number of dropped or encode-failed exports so far.
func (e *ConsoleExporter) Failures() int64 { return e.failures.Load() }

// Close stops accepting new events and waits for the queue to drain.
func (e *ConsoleExporter) Close() {
	close(e.queue)
	<-e.done
}

// FanoutExporter wraps N exporters behind a single Exporter, recording
// per-exporter failures into metrics without letting one exporter's
// misbehavior affect another's delivery.
type FanoutExporter struct {
	exporters []Exporter
	metrics   *Metrics
}

// NewFanoutExporter builds a FanoutExporter over exporters, recording
// failures (panics from a misbehaving Export) into metrics.ExporterFailureCounter.
func NewFanoutExporter(metrics *Metrics, exporters ...Exporter) *FanoutExporter {
	return &FanoutExporter{exporters: exporters, metrics: metrics}
}

func (f *FanoutExporter) Name() string { return "fanout" }

// Export calls every wrapped exporter, recovering from any panic so one
// misbehaving exporter cannot bring down the collector (§4.5 "MUST NOT
// raise into the collector").
func (f *FanoutExporter) Export(event StructuredEvent) {
	for _, exp := range f.exporters {
		f.safeExport(exp, event)
	}
}

func (f *FanoutExporter) safeExport(exp Exporter, event StructuredEvent) {
	defer func() {
		if r := recover(); r != nil && f.metrics != nil {
			f.metrics.ExporterFailureCounter.WithLabelValues(exp.Name()).Inc()
		}
	}()
	exp.Export(event)
}
