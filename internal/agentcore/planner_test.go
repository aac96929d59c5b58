package agentcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/substrate/internal/guardrail"
	"github.com/haasonsaas/substrate/internal/registry"
	"github.com/haasonsaas/substrate/pkg/contract"
)

func newS1Registry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New([]string{"nexus"}, registry.DefaultBreakerConfig())
	require.NoError(t, reg.Register(&registry.ToolSpec{
		Name:        "search_flights",
		Description: "find cheap flights across carriers",
	}))
	require.NoError(t, reg.Register(&registry.ToolSpec{
		Name:        "compare_prices",
		Description: "compare hotel and rental prices",
	}))
	require.NoError(t, reg.Register(&registry.ToolSpec{
		Name:        "echo",
		Description: "repeats the input back",
	}))
	return reg
}

// S1: vector-ranked planning with a tie at score zero.
func TestPlanSelectsTopNIncludingZeroScoreTie(t *testing.T) {
	reg := newS1Registry(t)
	planner := NewPlanner(PlannerConfig{Registry: reg, MaxSteps: 2})

	execCtx := contract.NewExecutionContext("s1")
	plan, err := planner.Plan(context.Background(), "find cheap flights", execCtx, nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "search_flights", plan.Steps[0].Tool)
	assert.Equal(t, "compare_prices", plan.Steps[1].Tool)
}

// Determinism: re-planning the same goal against an unchanged registry
// and memory snapshot must yield an identical plan (§4.3 "Determinism").
func TestPlanIsDeterministicAcrossReruns(t *testing.T) {
	reg := newS1Registry(t)
	planner := NewPlanner(PlannerConfig{Registry: reg, MaxSteps: 2})
	execCtx := contract.NewExecutionContext("s1b")

	first, err := planner.Plan(context.Background(), "find cheap flights", execCtx, nil)
	require.NoError(t, err)
	second, err := planner.Plan(context.Background(), "find cheap flights", execCtx, nil)
	require.NoError(t, err)

	require.Len(t, second.Steps, len(first.Steps))
	for i := range first.Steps {
		assert.Equal(t, first.Steps[i].Tool, second.Steps[i].Tool)
		assert.Equal(t, first.Steps[i].Reason, second.Steps[i].Reason)
	}
}

// All-zero-score goals fall back to the configured default tool.
func TestPlanFallsBackToDefaultToolWhenAllScoresZero(t *testing.T) {
	reg := registry.New([]string{"nexus"}, registry.DefaultBreakerConfig())
	require.NoError(t, reg.Register(&registry.ToolSpec{Name: "echo", Description: "repeats input"}))
	planner := NewPlanner(PlannerConfig{Registry: reg, MaxSteps: 3, DefaultTool: "echo"})

	plan, err := planner.Plan(context.Background(), "xyzzy plugh", contract.NewExecutionContext("s1c"), nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "echo", plan.Steps[0].Tool)
}

// Without a default tool, an all-zero-score goal is a VALIDATION error.
func TestPlanErrorsWithoutDefaultToolWhenAllScoresZero(t *testing.T) {
	reg := registry.New([]string{"nexus"}, registry.DefaultBreakerConfig())
	require.NoError(t, reg.Register(&registry.ToolSpec{Name: "echo", Description: "repeats input"}))
	planner := NewPlanner(PlannerConfig{Registry: reg, MaxSteps: 3})

	_, err := planner.Plan(context.Background(), "xyzzy plugh", contract.NewExecutionContext("s1d"), nil)
	assert.Error(t, err)
}

// A policy allowlist restricts which tools the planner can even consider.
func TestPlanRespectsGuardrailAllowlist(t *testing.T) {
	reg := newS1Registry(t)
	planner := NewPlanner(PlannerConfig{Registry: reg, MaxSteps: 2})

	policy := guardrail.NewPolicy("restricted", []string{"search_flights"})
	plan, err := planner.Plan(context.Background(), "find cheap flights", contract.NewExecutionContext("s1e"), policy)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "search_flights", plan.Steps[0].Tool)
}
