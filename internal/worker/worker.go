package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/substrate/internal/contracterrors"
	"github.com/haasonsaas/substrate/internal/guardrail"
	"github.com/haasonsaas/substrate/internal/memory"
	"github.com/haasonsaas/substrate/internal/observability"
	"github.com/haasonsaas/substrate/internal/registry"
	"github.com/haasonsaas/substrate/internal/retry"
	"github.com/haasonsaas/substrate/pkg/contract"
)

// Config configures a Worker.
type Config struct {
	ID                 string
	Registry           *registry.Registry
	Memory             memory.Backend
	Collector          *observability.Collector
	RetryPolicy        retry.Policy
	Approver           ApprovalService
	Jobs               *registry.JobStore
	CompensationRunner CompensationRunner

	// AsyncPollInterval controls how often a submitted async job is
	// polled before its handler's own timeout elapses (§[FULL-SUPPLEMENT]
	// "async tool jobs").
	AsyncPollInterval time.Duration
}

// Worker executes a Plan's steps in order, following the §4.4 pipeline:
// resolve -> validate -> approve -> budget -> invoke -> record. Grounded
// on internal/agent/tool_registry.go and internal/agent/executor.go's
// shape, generalized from a single-tool-call helper to the
// full plan-execution pipeline with budget/approval/compensation layered
// on top.
type Worker struct {
	id          string
	registry    *registry.Registry
	memory      memory.Backend
	collector   *observability.Collector
	retryPolicy retry.Policy
	approver    ApprovalService
	jobs        *registry.JobStore
	compRunner  CompensationRunner
	pollEvery   time.Duration

	locks *lockRegistry
}

// New builds a Worker from cfg, applying defaults for a nil approver and
// retry policy.
func New(cfg Config) *Worker {
	approver := cfg.Approver
	if approver == nil {
		approver = NewPolicyApprover(nil, nil)
	}
	poll := cfg.AsyncPollInterval
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &Worker{
		id:          cfg.ID,
		registry:    cfg.Registry,
		memory:      cfg.Memory,
		collector:   cfg.Collector,
		retryPolicy: cfg.RetryPolicy,
		approver:    approver,
		jobs:        cfg.Jobs,
		compRunner:  cfg.CompensationRunner,
		pollEvery:   poll,
		locks:       newLockRegistry(),
	}
}

// ID returns the worker's routing identifier.
func (w *Worker) ID() string { return w.id }

// PlanResult is the outcome of executing an entire Plan.
type PlanResult struct {
	Status        contract.Status
	Result        any
	Trace         []map[string]any
	OrchError     *contract.OrchestrationError
	Compensations []string
}

// stepOutcome is the per-step classification used to decide whether the
// plan continues, stops, or replays compensations.
type stepOutcome struct {
	result   any
	agentErr *contract.AgentError
	mode     contracterrors.FailureMode
	events   []map[string]any
}

// Execute runs plan's steps in order under policy and strategy, returning
// the aggregated PlanResult (§4.4, §4.1.3). A nil policy is treated as
// "everything allowed, no budget ceiling" for tests that don't exercise
// guardrails.
func (w *Worker) Execute(ctx context.Context, plan contract.Plan, execCtx contract.ExecutionContext, policy *guardrail.Policy, strategy contract.ErrorPropagation) PlanResult {
	release := func() {}
	if w.locks != nil {
		release = w.locks.Acquire(execCtx.TraceID)
	}
	defer release()

	comp := &compensationStack{}
	var trace []map[string]any
	var lastResult any
	var sawFailure bool

	for _, step := range plan.Steps {
		select {
		case <-ctx.Done():
			return PlanResult{
				Status: contract.StatusCancelled,
				Trace:  trace,
			}
		default:
		}

		outcome := w.runStep(ctx, step, execCtx, policy)
		trace = append(trace, outcome.events...)

		if outcome.agentErr == nil {
			lastResult = outcome.result
			if step.Compensation != "" {
				comp.push(step.Compensation)
			}
			continue
		}

		sawFailure = true

		// Non-retryable-by-policy or retries exhausted: decide per
		// strategy (§4.1.3, §4.4 step 7).
		if strategy == contract.Continue && !step.Critical {
			trace = append(trace, map[string]any{
				"event":    "warning",
				"trace_id": execCtx.TraceID,
				"tool":     step.Tool,
				"message":  outcome.agentErr.Message,
			})
			continue
		}

		orchErr := &contract.OrchestrationError{
			Stage:       contract.StageExecute,
			Message:     fmt.Sprintf("step %d (%s) failed: %s", step.Index, step.Tool, outcome.agentErr.Message),
			Cause:       outcome.agentErr,
			Recoverable: outcome.agentErr.Recoverable,
			Context:     map[string]any{"tool": step.Tool, "index": step.Index},
		}

		if strategy == contract.Fallback && step.Critical {
			replayed := comp.drain()
			errs := runCompensations(replayed, w.compRunner)
			for _, e := range errs {
				w.emit(execCtx.TraceID, contract.EventErrorOccurred, contract.EventStatusWarning, map[string]any{
					"phase": "compensation", "error": e.Error(),
				}, 0, e.Error())
			}
			orchErr = orchErr.WithPartialResult(lastResult)
			return PlanResult{Status: contract.StatusError, Trace: trace, OrchError: orchErr, Compensations: replayed}
		}

		orchErr = orchErr.WithPartialResult(lastResult)
		return PlanResult{Status: contract.StatusError, Trace: trace, OrchError: orchErr}
	}

	status := contract.StatusSuccess
	if sawFailure {
		status = contract.StatusPartial
	}
	return PlanResult{Status: status, Result: lastResult, Trace: trace}
}

// runStep executes the §4.4 per-step pipeline for a single PlanStep.
func (w *Worker) runStep(ctx context.Context, step contract.PlanStep, execCtx contract.ExecutionContext, policy *guardrail.Policy) stepOutcome {
	var events []map[string]any
	emit := func(ev map[string]any) { events = append(events, ev) }

	// 1. Resolve.
	spec, err := w.registry.Get(step.Tool)
	if err != nil {
		return stepOutcome{
			agentErr: ptrErr(contract.NewAgentError(contract.ErrorValidation, err.Error(), execCtx.TraceID)),
			mode:     contracterrors.UserInvalidInput,
			events:   events,
		}
	}
	if policy != nil && !policy.CheckTool(step.Tool) {
		msg := fmt.Sprintf("tool %q not permitted under profile %q", step.Tool, execCtx.Profile)
		return stepOutcome{
			agentErr: ptrErr(contract.NewAgentError(contract.ErrorValidation, msg, execCtx.TraceID)),
			mode:     contracterrors.UserInvalidInput,
			events:   events,
		}
	}

	// 2. Validate inputs against the tool's schema and sandbox writable
	// roots (§4.4 step 2, §4.4.2).
	if err := spec.Validate(step.Input); err != nil {
		return stepOutcome{
			agentErr: ptrErr(contract.NewAgentError(contract.ErrorValidation, err.Error(), execCtx.TraceID)),
			mode:     contracterrors.UserInvalidInput,
			events:   events,
		}
	}
	if err := validateSandboxPaths(spec.SandboxProfile, step.Input); err != nil {
		return stepOutcome{
			agentErr: ptrErr(contract.NewAgentError(contract.ErrorPermission, err.Error(), execCtx.TraceID)),
			mode:     contracterrors.PolicySecurity,
			events:   events,
		}
	}

	// 3. Approval gate.
	if spec.ApprovalRequired || (policy != nil && policy.RequiresApproval(step.Tool)) {
		emit(map[string]any{"event": string(contract.EventApprovalRequested), "trace_id": execCtx.TraceID, "tool": step.Tool})
		timeout := time.Duration(spec.ApprovalTimeoutSeconds * float64(time.Second))
		resp, timedOut := awaitApproval(ctx, w.approver, ApprovalRequest{
			Tool: step.Tool, TraceID: execCtx.TraceID, Profile: execCtx.Profile, Inputs: step.Input,
		}, timeout)

		if timedOut {
			emit(map[string]any{"event": string(contract.EventApprovalTimeout), "trace_id": execCtx.TraceID, "tool": step.Tool})
		} else {
			emit(map[string]any{"event": string(contract.EventApprovalReceived), "trace_id": execCtx.TraceID, "tool": step.Tool, "decision": string(resp.Decision)})
		}

		if resp.Decision != DecisionApproved {
			return stepOutcome{
				agentErr: ptrErr(contract.NewAgentError(contract.ErrorPermission, "approval denied: "+resp.Note, execCtx.TraceID)),
				mode:     contracterrors.PolicyApprovalDenied,
				events:   events,
			}
		}
	}

	// 4. Budget check.
	if policy != nil {
		allowed, warn := policy.BudgetGuard(spec.Cost, spec.MaxTokens)
		if !allowed {
			emit(map[string]any{"event": string(contract.EventBudgetExceeded), "trace_id": execCtx.TraceID, "tool": step.Tool, "profile": execCtx.Profile})
			return stepOutcome{
				agentErr: ptrErr(contract.NewAgentError(contract.ErrorPermission, "budget exceeded", execCtx.TraceID)),
				mode:     contracterrors.PolicyBudget,
				events:   events,
			}
		}
		if warn {
			emit(map[string]any{"event": string(contract.EventBudgetWarning), "trace_id": execCtx.TraceID, "tool": step.Tool, "profile": execCtx.Profile})
		}
	}

	// 5+6+7. Invoke with retry/classification, honoring async dispatch for
	// ToolSpec.Async tools (§[FULL-SUPPLEMENT]). Each branch below emits
	// its own tool_call_start/tool_call_error pair(s) with redacted
	// inputs, rather than a single pair wrapping the whole invocation:
	// the retried path (invokeWithRetry) emits one pair per attempt so a
	// retried-but-recovered call is fully visible to the collector's
	// per-tool error counters (§4.5), not just the net outcome.
	start := time.Now()

	var result any
	var invokeErr error
	breaker := w.registry.Breaker(step.Tool)

	switch {
	case breaker != nil && !breaker.Allow():
		w.emitToolCallStart(emit, execCtx, step, 0)
		invokeErr = contracterrors.Wrap(contracterrors.SystemUnavailable, fmt.Errorf("circuit breaker open for %q", step.Tool))
		w.emitToolCallError(emit, execCtx, step, contracterrors.Classify(invokeErr), invokeErr, 0, 0)
	case spec.Async && w.jobs != nil:
		w.emitToolCallStart(emit, execCtx, step, 0)
		result, invokeErr = w.invokeAsync(ctx, spec, step)
		if invokeErr != nil {
			w.emitToolCallError(emit, execCtx, step, contracterrors.Classify(invokeErr), invokeErr, 0, float64(time.Since(start).Milliseconds()))
		}
	default:
		result, invokeErr = w.invokeWithRetry(ctx, spec, step, execCtx, emit)
	}

	duration := time.Since(start)

	if invokeErr != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		mode := contracterrors.Classify(invokeErr)
		return stepOutcome{
			agentErr: ptrErr(contract.NewAgentError(mode.AgentErrorType(), invokeErr.Error(), execCtx.TraceID).WithDetails(map[string]any{"mode": string(mode)})),
			mode:     mode,
			events:   events,
		}
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}

	// 8. Commit budget charge, emit tool_call_complete, remember result.
	if policy != nil {
		policy.Charge(spec.Cost, spec.MaxTokens)
		w.emit(execCtx.TraceID, contract.EventBudgetUpdated, contract.EventStatusSuccess, map[string]any{"profile": execCtx.Profile}, 0, "")
	}
	emit(map[string]any{
		"event": string(contract.EventToolCallComplete), "trace_id": execCtx.TraceID, "tool": step.Tool,
		"duration_ms": float64(duration.Milliseconds()),
	})
	w.emit(execCtx.TraceID, contract.EventToolCallComplete, contract.EventStatusSuccess, map[string]any{
		"tool": step.Tool,
	}, float64(duration.Milliseconds()), "")

	if w.memory != nil {
		_ = w.memory.Remember(ctx, fmt.Sprintf("%v", result), map[string]any{
			"profile": execCtx.Profile, "trace_id": execCtx.TraceID, "tool": step.Tool,
		})
		w.emit(execCtx.TraceID, contract.EventMemoryUpdated, contract.EventStatusSuccess, map[string]any{"tool": step.Tool}, 0, "")
	}

	return stepOutcome{result: result, events: events}
}

// invokeWithRetry drives spec.Handler through the retry policy, emitting a
// tool_call_start before every attempt and a tool_call_error after every
// failed attempt (including one that is ultimately retried away), so the
// per-attempt trace and the collector's golden signals both see every
// attempt, not just the step's net outcome (§4.4.4, §4.5).
func (w *Worker) invokeWithRetry(ctx context.Context, spec *registry.ToolSpec, step contract.PlanStep, execCtx contract.ExecutionContext, emit func(map[string]any)) (any, error) {
	policy := w.retryPolicy
	if spec.Overrides.MaxAttempts > 0 {
		policy.MaxAttempts = spec.Overrides.MaxAttempts
	}

	callCtx := ctx
	timeout := spec.TimeoutSeconds
	if spec.Overrides.Timeout > 0 {
		timeout = spec.Overrides.Timeout.Seconds()
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(timeout*float64(time.Second)))
		defer cancel()
	}

	invocationCtx := withInvocationContext(callCtx, execCtx)
	value, result := retry.DoWithValue(invocationCtx, policy, func(attempt int) (any, error) {
		attemptStart := time.Now()
		w.emitToolCallStart(emit, execCtx, step, attempt)
		v, err := spec.Handler(invocationCtx, step.Input)
		if err != nil {
			mode := contracterrors.Classify(err)
			w.emitToolCallError(emit, execCtx, step, mode, err, attempt, float64(time.Since(attemptStart).Milliseconds()))
		}
		return v, err
	})
	return value, result.Err
}

// emitToolCallStart records a tool_call_start into both the step's local
// trace and the collector, tagging it with the 1-based attempt number
// when the call came from a retried invocation (attempt == 0 means the
// call never reached the handler, e.g. an open circuit breaker).
func (w *Worker) emitToolCallStart(emit func(map[string]any), execCtx contract.ExecutionContext, step contract.PlanStep, attempt int) {
	traceEvent := map[string]any{
		"event": string(contract.EventToolCallStart), "trace_id": execCtx.TraceID, "tool": step.Tool,
		"input": observability.RedactAttributes(step.Input),
	}
	attrs := map[string]any{"tool": step.Tool}
	if attempt > 0 {
		traceEvent["attempt"] = attempt
		attrs["attempt"] = attempt
	}
	emit(traceEvent)
	w.emit(execCtx.TraceID, contract.EventToolCallStart, contract.EventStatusSuccess, attrs, 0, "")
}

// emitToolCallError records a tool_call_error for one failed attempt into
// both the step's local trace and the collector.
func (w *Worker) emitToolCallError(emit func(map[string]any), execCtx contract.ExecutionContext, step contract.PlanStep, mode contracterrors.FailureMode, err error, attempt int, durationMS float64) {
	traceEvent := map[string]any{
		"event": string(contract.EventToolCallError), "trace_id": execCtx.TraceID, "tool": step.Tool,
		"mode": string(mode), "error": err.Error(),
	}
	attrs := map[string]any{"tool": step.Tool, "mode": string(mode)}
	if attempt > 0 {
		traceEvent["attempt"] = attempt
		attrs["attempt"] = attempt
	}
	emit(traceEvent)
	w.emit(execCtx.TraceID, contract.EventToolCallError, contract.EventStatusError, attrs, durationMS, err.Error())
}

func (w *Worker) invokeAsync(ctx context.Context, spec *registry.ToolSpec, step contract.PlanStep) (any, error) {
	jobID := uuid.NewString()
	job := w.jobs.Submit(ctx, jobID, step.Tool, func(jobCtx context.Context) (any, error) {
		return spec.Handler(jobCtx, step.Input)
	})

	deadline := time.Now().Add(time.Duration(spec.TimeoutSeconds * float64(time.Second)))
	if spec.TimeoutSeconds <= 0 {
		deadline = time.Now().Add(10 * time.Second)
	}
	for time.Now().Before(deadline) {
		current, err := w.jobs.Get(job.ID)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case registry.JobSuccess:
			return current.Result, nil
		case registry.JobFailed:
			return nil, current.Err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.pollEvery):
		}
	}
	// Still pending past the tool's own timeout: return the job id and a
	// "pending" status as the step's result so the caller can poll it
	// out-of-band. The step counts as a success; nothing here turns it
	// into an AgentResponse with status PENDING.
	return map[string]any{"job_id": job.ID, "status": string(registry.JobPending)}, nil
}

// validateSandboxPaths enforces the sandbox profile's writable-root
// restriction (§4.4.2) over every string input whose key ends in "path".
func validateSandboxPaths(profile registry.SandboxProfile, inputs map[string]any) error {
	for key, value := range inputs {
		if !strings.HasSuffix(strings.ToLower(key), "path") {
			continue
		}
		path, ok := value.(string)
		if !ok {
			continue
		}
		if err := registry.CanonicalizePath(profile, path); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) emit(traceID string, typ contract.EventType, status contract.EventStatus, attrs map[string]any, durationMS float64, errMsg string) {
	if w.collector == nil {
		return
	}
	w.collector.Emit(observability.StructuredEvent{
		EventType:    string(typ),
		TraceID:      traceID,
		Timestamp:    time.Now(),
		Status:       string(status),
		Attributes:   attrs,
		DurationMS:   durationMS,
		ErrorMessage: errMsg,
	})
}

func ptrErr(e contract.AgentError) *contract.AgentError { return &e }
