package contract

import (
	"errors"
	"maps"
)

// ErrEmptyGoal is returned by NewAgentRequest when goal is blank.
var ErrEmptyGoal = errors.New("contract: goal must not be empty")

// ErrEmptyTask is returned by NewAgentRequest when task is blank.
var ErrEmptyTask = errors.New("contract: task must not be empty")

// ErrMissingTraceID is returned when RequestMetadata.TraceID is unset.
var ErrMissingTraceID = errors.New("contract: metadata.trace_id is required")

// RequestMetadata carries the request-scoped metadata required by every
// AgentRequest. TraceID is mandatory; Priority is clamped to [0,10].
type RequestMetadata struct {
	TraceID        string
	Profile        string
	Priority       int
	TimeoutSeconds float64
	ParentContext  *ExecutionContext
	Tags           []string
}

// AgentRequest is the canonical, immutable request shape passed to every
// agent's Process method. Build with NewAgentRequest so the required-field
// invariants in the data model (§3.1) are enforced at construction.
type AgentRequest struct {
	Goal           string
	Task           string
	Metadata       RequestMetadata
	Inputs         map[string]any
	Context        map[string]any
	Constraints    map[string]any
	ExpectedOutput string
}

// NewAgentRequest validates the required fields and returns an immutable
// AgentRequest. Priority is clamped into [0,10].
func NewAgentRequest(goal, task string, meta RequestMetadata) (AgentRequest, error) {
	if goal == "" {
		return AgentRequest{}, ErrEmptyGoal
	}
	if task == "" {
		return AgentRequest{}, ErrEmptyTask
	}
	if meta.TraceID == "" {
		return AgentRequest{}, ErrMissingTraceID
	}
	if meta.Priority < 0 {
		meta.Priority = 0
	}
	if meta.Priority > 10 {
		meta.Priority = 10
	}
	if meta.Profile == "" {
		meta.Profile = "default"
	}
	return AgentRequest{Goal: goal, Task: task, Metadata: meta}, nil
}

// ToDict renders the request as a plain map, the shape used for the
// round-trip testable property (§8, property 11).
func (r AgentRequest) ToDict() map[string]any {
	d := map[string]any{
		"goal": r.Goal,
		"task": r.Task,
		"metadata": map[string]any{
			"trace_id":        r.Metadata.TraceID,
			"profile":         r.Metadata.Profile,
			"priority":        r.Metadata.Priority,
			"timeout_seconds": r.Metadata.TimeoutSeconds,
			"tags":            append([]string(nil), r.Metadata.Tags...),
		},
	}
	if r.Inputs != nil {
		d["inputs"] = maps.Clone(r.Inputs)
	}
	if r.Context != nil {
		d["context"] = maps.Clone(r.Context)
	}
	if r.Constraints != nil {
		d["constraints"] = maps.Clone(r.Constraints)
	}
	if r.ExpectedOutput != "" {
		d["expected_output"] = r.ExpectedOutput
	}
	return d
}

// AgentRequestFromDict reconstructs an AgentRequest from ToDict's output,
// completing the round-trip property `from_dict(to_dict(req)) == req`.
func AgentRequestFromDict(d map[string]any) (AgentRequest, error) {
	goal, _ := d["goal"].(string)
	task, _ := d["task"].(string)
	meta := RequestMetadata{}
	if m, ok := d["metadata"].(map[string]any); ok {
		meta.TraceID, _ = m["trace_id"].(string)
		meta.Profile, _ = m["profile"].(string)
		switch p := m["priority"].(type) {
		case int:
			meta.Priority = p
		case float64:
			meta.Priority = int(p)
		}
		switch to := m["timeout_seconds"].(type) {
		case float64:
			meta.TimeoutSeconds = to
		case int:
			meta.TimeoutSeconds = float64(to)
		}
		if tags, ok := m["tags"].([]string); ok {
			meta.Tags = append([]string(nil), tags...)
		}
	}
	req, err := NewAgentRequest(goal, task, meta)
	if err != nil {
		return AgentRequest{}, err
	}
	if inputs, ok := d["inputs"].(map[string]any); ok {
		req.Inputs = maps.Clone(inputs)
	}
	if ctx, ok := d["context"].(map[string]any); ok {
		req.Context = maps.Clone(ctx)
	}
	if constraints, ok := d["constraints"].(map[string]any); ok {
		req.Constraints = maps.Clone(constraints)
	}
	req.ExpectedOutput, _ = d["expected_output"].(string)
	return req, nil
}
