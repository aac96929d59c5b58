package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanValidateRejectsEmpty(t *testing.T) {
	p := Plan{}
	assert.ErrorIs(t, p.Validate(10), ErrEmptyPlan)
}

func TestPlanValidateRejectsTooLong(t *testing.T) {
	p := Plan{Steps: []PlanStep{{Index: 0}, {Index: 1}, {Index: 2}}}
	assert.ErrorIs(t, p.Validate(2), ErrPlanTooLong)
}

func TestPlanValidateRejectsIndexGap(t *testing.T) {
	p := Plan{Steps: []PlanStep{{Index: 0}, {Index: 2}}}
	assert.ErrorIs(t, p.Validate(10), ErrPlanIndexGap)
}

func TestPlanValidateAcceptsDenseIndices(t *testing.T) {
	p := Plan{Steps: []PlanStep{{Index: 0}, {Index: 1}}}
	assert.NoError(t, p.Validate(10))
}
