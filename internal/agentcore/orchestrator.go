package agentcore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/substrate/internal/guardrail"
	"github.com/haasonsaas/substrate/internal/observability"
	"github.com/haasonsaas/substrate/internal/retry"
	"github.com/haasonsaas/substrate/internal/worker"
	"github.com/haasonsaas/substrate/pkg/contract"
)

// Event is one lifecycle event yielded by Orchestrate: {stage, data,
// context} per §4.1's public contract.
type Event struct {
	Stage   contract.LifecycleStage   `json:"stage"`
	Data    map[string]any            `json:"data"`
	Context contract.ExecutionContext `json:"context"`
}

// Config wires an Orchestrator's collaborators.
type Config struct {
	Planner     *Planner
	Collector   *observability.Collector
	Policies    map[string]*guardrail.Policy // profile -> policy
	RoutingFunc RoutingPolicy                // default RoundRobin
	RetryPolicy retry.Policy                 // governs RETRY strategy's whole-plan retries
	MaxSteps    int
}

// Orchestrator drives one request from goal to terminal event (§4.1),
// delegating planning to Planner, execution to the selected Worker, and
// containing no domain logic of its own. Grounded on internal/agent/
// loop.go's phase state machine (Init -> Stream -> Execute Tools ->
// Continue/Complete), generalized from the single-agent
// tool loop to cross-agent lifecycle staging with routing and
// error-propagation layered on top.
type Orchestrator struct {
	planner   *Planner
	collector *observability.Collector
	policies  map[string]*guardrail.Policy
	retry     retry.Policy
	maxSteps  int

	router *router

	workersMu   sync.Mutex
	workers     map[string]*worker.Worker
	workerOrder []string
}

// NewOrchestrator builds an Orchestrator from cfg.
func NewOrchestrator(cfg Config) *Orchestrator {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}
	o := &Orchestrator{
		planner:     cfg.Planner,
		collector:   cfg.Collector,
		policies:    cfg.Policies,
		retry:       cfg.RetryPolicy,
		maxSteps:    maxSteps,
		router:      newRouter(cfg.RoutingFunc),
		workers:     make(map[string]*worker.Worker),
		workerOrder: nil,
	}
	if o.policies == nil {
		o.policies = make(map[string]*guardrail.Policy)
	}
	return o
}

// RegisterWorker adds w to the routable pool in call order, the order
// round-robin indexes into (§4.1.2).
func (o *Orchestrator) RegisterWorker(w *worker.Worker) {
	o.workersMu.Lock()
	defer o.workersMu.Unlock()
	if _, exists := o.workers[w.ID()]; exists {
		return
	}
	o.workers[w.ID()] = w
	o.workerOrder = append(o.workerOrder, w.ID())
}

func (o *Orchestrator) availableWorkers() []string {
	o.workersMu.Lock()
	defer o.workersMu.Unlock()
	return append([]string(nil), o.workerOrder...)
}

func (o *Orchestrator) workerByID(id string) *worker.Worker {
	o.workersMu.Lock()
	defer o.workersMu.Unlock()
	return o.workers[id]
}

// MakeRoutingDecision is the pure, deterministic public routing API
// (§4.1, §8 property 5): it reads the router's current state snapshot
// without advancing it, so two successive calls with the same arguments
// and no intervening Orchestrate dispatch return an equal decision.
func (o *Orchestrator) MakeRoutingDecision(task string, execCtx contract.ExecutionContext, available []string) contract.RoutingDecision {
	o.router.mu.Lock()
	defer o.router.mu.Unlock()
	return o.router.policy(task, execCtx, available, RoutingState{Counter: o.router.counter})
}

// policyFor returns the GuardrailPolicy registered for profile, or nil
// when none is configured (treated as unrestricted by the worker).
func (o *Orchestrator) policyFor(profile string) *guardrail.Policy {
	if o.policies == nil {
		return nil
	}
	return o.policies[profile]
}

// Orchestrate drives goal through the full lifecycle (§4.1.1) and
// returns a channel of Events. Events are produced lazily as the
// goroutine progresses; closing/abandoning ctx is treated as
// cancellation (§5 "Caller closes the event stream -> orchestrator
// treats as cancellation").
func (o *Orchestrator) Orchestrate(ctx context.Context, goal string, execCtx contract.ExecutionContext, strategy contract.ErrorPropagation) <-chan Event {
	if execCtx.TraceID == "" {
		execCtx = execCtx.WithMetadata("_generated_trace", true)
		execCtx.TraceID = uuid.NewString()
	}
	events := make(chan Event)

	go func() {
		defer close(events)
		o.run(ctx, goal, execCtx, strategy, events)
	}()

	return events
}

func (o *Orchestrator) send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) run(ctx context.Context, goal string, execCtx contract.ExecutionContext, strategy contract.ErrorPropagation, events chan<- Event) {
	if o.collector != nil {
		o.collector.StartTrace(execCtx.TraceID)
	}
	success := false
	defer func() {
		if o.collector != nil {
			o.collector.EndTrace(execCtx.TraceID, success)
		}
	}()

	if !o.send(ctx, events, Event{Stage: contract.StageInitialize, Context: execCtx, Data: map[string]any{"goal": goal}}) {
		return
	}
	if ctx.Err() != nil {
		o.send(ctx, events, Event{Stage: contract.StageCancelled, Context: execCtx})
		return
	}

	// PLAN
	if !o.send(ctx, events, Event{Stage: contract.StagePlan, Context: execCtx}) {
		return
	}
	if o.planner == nil {
		o.fail(ctx, events, execCtx, &contract.OrchestrationError{
			Stage: contract.StagePlan, Message: "no planner configured",
		})
		return
	}
	policy := o.policyFor(execCtx.Profile)
	plan, err := o.planner.Plan(ctx, goal, execCtx, policy)
	if err != nil {
		o.fail(ctx, events, execCtx, &contract.OrchestrationError{
			Stage: contract.StagePlan, Message: err.Error(), Cause: err,
		})
		return
	}
	o.send(ctx, events, Event{Stage: contract.StagePlan, Context: execCtx, Data: map[string]any{"steps_count": len(plan.Steps)}})

	// ROUTE
	available := o.availableWorkers()
	decision := o.dispatch(goal, execCtx, available)
	if decision.Target == "" {
		o.fail(ctx, events, execCtx, &contract.OrchestrationError{
			Stage: contract.StageRoute, Message: "no worker available to route to",
		})
		return
	}
	if !o.send(ctx, events, Event{Stage: contract.StageRoute, Context: execCtx, Data: map[string]any{
		"target": decision.Target, "reason": decision.Reason, "fallback": decision.Fallback,
	}}) {
		return
	}
	o.emit(execCtx.TraceID, contract.EventRouteDecision, contract.EventStatusSuccess, map[string]any{"target": decision.Target, "reason": decision.Reason})

	chosen := o.workerByID(decision.Target)
	if chosen == nil {
		o.fail(ctx, events, execCtx, &contract.OrchestrationError{
			Stage: contract.StageRoute, Message: fmt.Sprintf("routed worker %q not registered", decision.Target),
		})
		return
	}

	// EXECUTE (repeats implicitly per step inside worker.Execute)
	if !o.send(ctx, events, Event{Stage: contract.StageExecute, Context: execCtx, Data: map[string]any{"worker": chosen.ID()}}) {
		return
	}

	result := o.executeWithStrategy(ctx, chosen, plan, execCtx, policy, strategy, decision)
	if result.OrchError != nil {
		o.fail(ctx, events, execCtx, result.OrchError)
		return
	}

	// AGGREGATE
	if !o.send(ctx, events, Event{Stage: contract.StageAggregate, Context: execCtx, Data: map[string]any{"result": result.Result, "status": string(result.Status)}}) {
		return
	}

	success = true
	o.send(ctx, events, Event{Stage: contract.StageComplete, Context: execCtx, Data: map[string]any{
		"result": result.Result, "status": string(result.Status), "trace": result.Trace,
	}})
}

// dispatch is the stateful routing call Orchestrate uses: it reads and
// then advances the router's counter atomically, giving the S2-style
// round-robin sequence across successive requests.
func (o *Orchestrator) dispatch(task string, execCtx contract.ExecutionContext, available []string) contract.RoutingDecision {
	return o.router.Decide(task, execCtx, available)
}

// executeWithStrategy applies the §4.1.3 error-propagation strategy
// around a single worker's plan execution, including RETRY's whole-plan
// re-attempts and FALLBACK's secondary-route attempt.
func (o *Orchestrator) executeWithStrategy(ctx context.Context, w *worker.Worker, plan contract.Plan, execCtx contract.ExecutionContext, policy *guardrail.Policy, strategy contract.ErrorPropagation, decision contract.RoutingDecision) worker.PlanResult {
	switch strategy {
	case contract.Retry:
		maxAttempts := o.retry.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 3
		}
		var last worker.PlanResult
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			last = w.Execute(ctx, plan, execCtx, policy, contract.FailFast)
			if last.OrchError == nil {
				return last
			}
			if attempt >= maxAttempts || !last.OrchError.Recoverable {
				break
			}
			select {
			case <-ctx.Done():
				return last
			case <-time.After(o.retry.DelayWithJitter(attempt - 1)):
			}
		}
		return last

	case contract.Fallback:
		primary := w.Execute(ctx, plan, execCtx, policy, contract.Fallback)
		if primary.OrchError == nil || decision.Fallback == "" {
			return primary
		}
		fallbackWorker := o.workerByID(decision.Fallback)
		if fallbackWorker == nil {
			return primary
		}
		return fallbackWorker.Execute(ctx, plan, execCtx, policy, contract.Fallback)

	default:
		return w.Execute(ctx, plan, execCtx, policy, strategy)
	}
}

func (o *Orchestrator) fail(ctx context.Context, events chan<- Event, execCtx contract.ExecutionContext, orchErr *contract.OrchestrationError) {
	if orchErr.Stage == "" {
		orchErr.Stage = contract.StageFailed
	}
	o.emit(execCtx.TraceID, contract.EventErrorOccurred, contract.EventStatusError, map[string]any{"stage": string(orchErr.Stage), "message": orchErr.Message})
	o.send(ctx, events, Event{Stage: contract.StageFailed, Context: execCtx, Data: map[string]any{
		"error": orchErr,
	}})
}

func (o *Orchestrator) emit(traceID string, typ contract.EventType, status contract.EventStatus, attrs map[string]any) {
	if o.collector == nil {
		return
	}
	o.collector.Emit(observability.StructuredEvent{
		EventType:  string(typ),
		TraceID:    traceID,
		Status:     string(status),
		Attributes: attrs,
	})
}
