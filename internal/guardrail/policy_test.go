package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckToolExactAndGlob(t *testing.T) {
	p := NewPolicy("coding", []string{"read", "search:*"})

	assert.True(t, p.CheckTool("read"))
	assert.True(t, p.CheckTool("search:web"))
	assert.False(t, p.CheckTool("exec"))
}

func TestCheckToolEmptyAllowlistDeniesEverything(t *testing.T) {
	p := NewPolicy("minimal", nil)
	assert.False(t, p.CheckTool("status"))
}

func TestBudgetGuardWarnPolicyProceedsPastCeiling(t *testing.T) {
	p := NewPolicy("coding", []string{"*"})
	p.Budget.MaxCost = 1.0
	p.BudgetPolicy = BudgetPolicyWarn

	allowed, warned := p.BudgetGuard(2.0, 0)
	assert.True(t, allowed)
	assert.True(t, warned)
}

func TestBudgetGuardBlockPolicyDeniesPastCeiling(t *testing.T) {
	p := NewPolicy("coding", []string{"*"})
	p.Budget.MaxCost = 1.0
	p.BudgetPolicy = BudgetPolicyBlock

	allowed, warned := p.BudgetGuard(2.0, 0)
	assert.False(t, allowed)
	assert.False(t, warned)
}

func TestBudgetGuardWarnsAtThreshold(t *testing.T) {
	p := NewPolicy("coding", []string{"*"})
	p.Budget.MaxCalls = 10
	p.BudgetWarningThreshold = 0.8

	for i := 0; i < 7; i++ {
		p.Charge(0, 0)
	}

	// 8th call -> nextCalls = 8, utilization 0.8 -> should warn.
	allowed, warned := p.BudgetGuard(0, 0)
	assert.True(t, allowed)
	assert.True(t, warned)
}

func TestBudgetGuardBelowThresholdNoWarning(t *testing.T) {
	p := NewPolicy("coding", []string{"*"})
	p.Budget.MaxCalls = 100

	allowed, warned := p.BudgetGuard(0, 0)
	assert.True(t, allowed)
	assert.False(t, warned)
}

func TestChargeAccumulates(t *testing.T) {
	p := NewPolicy("coding", []string{"*"})
	p.Charge(1.5, 100)
	p.Charge(0.5, 50)

	cost, calls, tokens := p.Snapshot()
	assert.Equal(t, 2.0, cost)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 150, tokens)
}

func TestRequiresApproval(t *testing.T) {
	p := NewPolicy("coding", []string{"*"})
	p.ApprovalRules["exec"] = true

	assert.True(t, p.RequiresApproval("exec"))
	assert.False(t, p.RequiresApproval("read"))
}

func TestUnboundedBudgetNeverExceeds(t *testing.T) {
	p := NewPolicy("coding", []string{"*"})
	allowed, warned := p.BudgetGuard(1_000_000, 1_000_000)
	assert.True(t, allowed)
	assert.False(t, warned)
}
