package worker

import (
	"context"

	"github.com/haasonsaas/substrate/internal/observability"
	"github.com/haasonsaas/substrate/pkg/contract"
)

// withInvocationContext attaches trace_id/profile onto ctx the way
// internal/agent/runtime_context.go scopes a session onto its context,
// so a tool handler can recover them via observability.GetTraceID/
// GetProfile without the registry depending on pkg/contract directly.
func withInvocationContext(ctx context.Context, execCtx contract.ExecutionContext) context.Context {
	ctx = observability.WithTraceID(ctx, execCtx.TraceID)
	ctx = observability.WithProfile(ctx, execCtx.Profile)
	return ctx
}
