package worker

import (
	"context"

	"github.com/haasonsaas/substrate/internal/guardrail"
	"github.com/haasonsaas/substrate/internal/registry"
	"github.com/haasonsaas/substrate/pkg/contract"
)

// ParallelResult pairs one independent sub-step's outcome with its index
// in the fan-out, so callers can report per-step status without losing
// ordering.
type ParallelResult struct {
	Outcome stepOutcome
	Index   int
}

// ExecuteParallel fans steps out concurrently via the settle-all pattern
// (§5, §9 "parallel fan-out inside a step is allowed and MUST use a
// settle-all pattern that reports partial failures rather than
// short-circuiting on the first error"), waiting for every sub-step to
// finish regardless of individual failures.
func (w *Worker) ExecuteParallel(ctx context.Context, steps []contract.PlanStep, execCtx contract.ExecutionContext, policy *guardrail.Policy) []ParallelResult {
	results := make([]ParallelResult, len(steps))
	fns := make([]func(context.Context) error, len(steps))
	for i, step := range steps {
		i, step := i, step
		fns[i] = func(fnCtx context.Context) error {
			outcome := w.runStep(fnCtx, step, execCtx, policy)
			results[i] = ParallelResult{Outcome: outcome, Index: i}
			if outcome.agentErr != nil {
				return outcome.agentErr
			}
			return nil
		}
	}
	_ = registry.RunSettleAll(ctx, fns) // errors are already captured per-result
	return results
}
