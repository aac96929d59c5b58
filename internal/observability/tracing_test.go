package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracerOfflineDefault(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "substrate-test"})
	require.NotNil(t, tracer)
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := tracer.Start(context.Background(), "plan.create")
	defer span.End()

	assert.NotEmpty(t, GetSpanID(ctx))
}

func TestTracerStartWithTraceIDReturnsValidSpan(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "substrate-test"})
	defer func() { _ = shutdown(context.Background()) }()

	ctx := WithTraceID(context.Background(), "trace-abc")
	_, span := tracer.Start(ctx, "tool.invoke")
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
}

func TestNewTracerDefaultsServiceName(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	require.NotNil(t, tracer)
	_ = shutdown(context.Background())
}

func TestNewTracerDefaultSamplingRateAlwaysSamples(t *testing.T) {
	// An unset SamplingRate defaults to 1.0 (always sample) rather than
	// silently dropping spans.
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "substrate-test"})
	defer func() { _ = shutdown(context.Background()) }()

	_, span := tracer.Start(context.Background(), "always.sampled")
	defer span.End()

	assert.True(t, span.SpanContext().IsSampled())
}
