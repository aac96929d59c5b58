package contract

import "errors"

// Sentinel errors for the plan invariants (§3.2) and cross-owner state
// writes (§4.2, §8 property 6).
var (
	ErrEmptyPlan    = errors.New("contract: plan must have at least one step")
	ErrPlanTooLong  = errors.New("contract: plan exceeds max_steps")
	ErrPlanIndexGap = errors.New("contract: plan step indices must be dense starting at 0")

	// ErrStateViolation is raised when a mutable key is written by an owner
	// other than the one classified by owns_state (§4.2, §8 property 6).
	ErrStateViolation = errors.New("contract: state ownership violation")
)

// StateViolationError names the offending key and the owner that attempted
// the write, wrapping ErrStateViolation so callers can errors.Is against it.
type StateViolationError struct {
	Key          string
	AttemptedBy  StateOwner
	ActualOwner  StateOwner
}

func (e *StateViolationError) Error() string {
	return "contract: key " + e.Key + " is owned by " + string(e.ActualOwner) +
		", cannot be written by " + string(e.AttemptedBy)
}

func (e *StateViolationError) Unwrap() error { return ErrStateViolation }

// StateOwner classifies which component may mutate a given state key
// (§3.2, §4.2).
type StateOwner string

const (
	StateOwnerAgent        StateOwner = "AGENT"
	StateOwnerMemory       StateOwner = "MEMORY"
	StateOwnerOrchestrator StateOwner = "ORCHESTRATOR"
	StateOwnerShared       StateOwner = "SHARED"
)
