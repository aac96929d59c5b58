package contract

import (
	"errors"
	"time"
)

// Status is the canonical enum for AgentResponse.Status.
type Status string

const (
	StatusSuccess   Status = "SUCCESS"
	StatusError     Status = "ERROR"
	StatusPartial   Status = "PARTIAL"
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"
)

// ErrResultRequired is returned by NewAgentResponse when status is SUCCESS
// but no result was supplied.
var ErrResultRequired = errors.New("contract: result is required when status is SUCCESS")

// ErrErrorRequired is returned by NewAgentResponse when status is ERROR but
// no AgentError was supplied.
var ErrErrorRequired = errors.New("contract: error is required when status is ERROR")

// ResponseMetadata carries response-scoped accounting: duration, cost, and
// whether the result came from a cache.
type ResponseMetadata struct {
	DurationMS float64
	Cost       float64
	CacheHit   bool
	Extra      map[string]any
}

// AgentResponse is the canonical response shape returned by every agent's
// Process method (§9: "Exceptions-as-control-flow are replaced by
// structured results").
type AgentResponse struct {
	Status    Status
	Result    any
	Error     *AgentError
	Trace     []map[string]any
	Metadata  ResponseMetadata
	Timestamp time.Time
}

// NewSuccessResponse builds a SUCCESS response, enforcing the invariant that
// result must be present (§8, property 12).
func NewSuccessResponse(result any, trace []map[string]any) (AgentResponse, error) {
	if result == nil {
		return AgentResponse{}, ErrResultRequired
	}
	return AgentResponse{
		Status:    StatusSuccess,
		Result:    result,
		Trace:     trace,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorResponse builds an ERROR response, enforcing that an AgentError is
// present (§8, property 12).
func NewErrorResponse(agentErr AgentError, trace []map[string]any) AgentResponse {
	return AgentResponse{
		Status:    StatusError,
		Error:     &agentErr,
		Trace:     trace,
		Timestamp: time.Now().UTC(),
	}
}

// NewPendingResponse builds a PENDING response for an async tool job that
// has not yet completed (§9 of SPEC_FULL: async tool jobs).
func NewPendingResponse(jobID string, trace []map[string]any) AgentResponse {
	return AgentResponse{
		Status:    StatusPending,
		Result:    map[string]any{"job_id": jobID},
		Trace:     trace,
		Timestamp: time.Now().UTC(),
	}
}

// NewCancelledResponse builds a CANCELLED response. No partial result is
// promised (§7 "On cancellation ... no partial result is promised").
func NewCancelledResponse(trace []map[string]any) AgentResponse {
	return AgentResponse{
		Status:    StatusCancelled,
		Trace:     trace,
		Timestamp: time.Now().UTC(),
	}
}

// Validate re-checks the SUCCESS/ERROR invariants on an already-constructed
// response; useful when a response is built incrementally.
func (r AgentResponse) Validate() error {
	if r.Status == StatusSuccess && r.Result == nil {
		return ErrResultRequired
	}
	if r.Status == StatusError && r.Error == nil {
		return ErrErrorRequired
	}
	return nil
}
