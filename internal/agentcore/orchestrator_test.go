package agentcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/substrate/internal/registry"
	"github.com/haasonsaas/substrate/internal/retry"
	"github.com/haasonsaas/substrate/internal/worker"
	"github.com/haasonsaas/substrate/pkg/contract"
)

func newEchoWorker(t *testing.T, id string) *worker.Worker {
	t.Helper()
	reg := registry.New([]string{"nexus"}, registry.DefaultBreakerConfig())
	require.NoError(t, reg.Register(&registry.ToolSpec{
		Name: "echo",
		Handler: func(ctx context.Context, inputs map[string]any) (any, error) {
			return inputs["goal"], nil
		},
	}))
	return worker.New(worker.Config{ID: id, Registry: reg, RetryPolicy: retry.DefaultPolicy()})
}

func drainEvents(ch <-chan Event, timeout time.Duration) []Event {
	var out []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
}

// S2: round-robin routing across four successive orchestrate() calls
// against a three-worker pool yields [W1, W2, W3, W1].
func TestOrchestrateRoundRobinSequence(t *testing.T) {
	planner := NewPlanner(PlannerConfig{
		Registry:    mustSingleToolRegistry(t),
		MaxSteps:    1,
		DefaultTool: "echo",
	})
	orch := NewOrchestrator(Config{Planner: planner, RetryPolicy: retry.DefaultPolicy()})

	for _, id := range []string{"W1", "W2", "W3"} {
		orch.RegisterWorker(newEchoWorker(t, id))
	}

	var targets []string
	for i := 0; i < 4; i++ {
		execCtx := contract.NewExecutionContext("")
		events := orch.Orchestrate(context.Background(), "do a thing", execCtx, contract.FailFast)
		got := drainEvents(events, time.Second)
		for _, ev := range got {
			if ev.Stage == contract.StageRoute {
				targets = append(targets, ev.Data["target"].(string))
				break
			}
		}
	}

	require.Len(t, targets, 4)
	assert.Equal(t, []string{"W1", "W2", "W3", "W1"}, targets)
}

func mustSingleToolRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New([]string{"nexus"}, registry.DefaultBreakerConfig())
	require.NoError(t, reg.Register(&registry.ToolSpec{
		Name: "echo",
		Handler: func(ctx context.Context, inputs map[string]any) (any, error) {
			return inputs["goal"], nil
		},
	}))
	return reg
}

// A trace_id supplied on the incoming ExecutionContext propagates
// unchanged through every emitted lifecycle event.
func TestOrchestrateTraceIDPropagation(t *testing.T) {
	planner := NewPlanner(PlannerConfig{Registry: mustSingleToolRegistry(t), MaxSteps: 1, DefaultTool: "echo"})
	orch := NewOrchestrator(Config{Planner: planner, RetryPolicy: retry.DefaultPolicy()})
	orch.RegisterWorker(newEchoWorker(t, "only"))

	execCtx := contract.NewExecutionContext("fixed-trace-123")
	events := drainEvents(orch.Orchestrate(context.Background(), "goal text", execCtx, contract.FailFast), time.Second)

	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Equal(t, "fixed-trace-123", ev.Context.TraceID)
	}
	assert.Equal(t, contract.StageComplete, events[len(events)-1].Stage)
}

// Routing to an unregistered worker pool surfaces a FAILED terminal
// event rather than panicking.
func TestOrchestrateFailsWhenNoWorkersRegistered(t *testing.T) {
	planner := NewPlanner(PlannerConfig{Registry: mustSingleToolRegistry(t), MaxSteps: 1, DefaultTool: "echo"})
	orch := NewOrchestrator(Config{Planner: planner, RetryPolicy: retry.DefaultPolicy()})

	execCtx := contract.NewExecutionContext("no-workers")
	events := drainEvents(orch.Orchestrate(context.Background(), "goal text", execCtx, contract.FailFast), time.Second)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, contract.StageFailed, last.Stage)
}

// MakeRoutingDecision is a read-only peek: two successive calls with no
// intervening Orchestrate dispatch return an equal decision (§8 property 5).
func TestMakeRoutingDecisionIsPureBetweenDispatches(t *testing.T) {
	orch := NewOrchestrator(Config{Planner: NewPlanner(PlannerConfig{Registry: mustSingleToolRegistry(t), DefaultTool: "echo"})})
	orch.RegisterWorker(newEchoWorker(t, "A"))
	orch.RegisterWorker(newEchoWorker(t, "B"))

	execCtx := contract.NewExecutionContext("peek")
	available := orch.availableWorkers()

	first := orch.MakeRoutingDecision("goal", execCtx, available)
	second := orch.MakeRoutingDecision("goal", execCtx, available)
	assert.Equal(t, first, second)
}
