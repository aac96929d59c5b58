// Package contract defines the canonical I/O types shared by every agent,
// the registry, and the orchestrator: ExecutionContext, AgentRequest/Response/
// Error, PlanStep, MemoryRecord, RoutingDecision, and StructuredEvent.
package contract

import "maps"

// ExecutionContext is an immutable value carried through one orchestration
// run. It is never mutated after construction; derived contexts are built
// via the With* producers below, each returning a new value.
type ExecutionContext struct {
	TraceID        string         `json:"trace_id"`
	RequestID      string         `json:"request_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	MemoryScope    string         `json:"memory_scope,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	Profile        string         `json:"profile"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ParentContext  *ExecutionContext `json:"parent_context,omitempty"`
}

// NewExecutionContext builds a context with the default profile applied.
func NewExecutionContext(traceID string) ExecutionContext {
	return ExecutionContext{
		TraceID: traceID,
		Profile: "default",
	}
}

// WithProfile returns a new context scoped to profile, leaving the receiver
// untouched.
func (c ExecutionContext) WithProfile(profile string) ExecutionContext {
	next := c
	next.Profile = profile
	return next
}

// WithMetadata returns a new context with key=value merged into its
// read-only metadata mapping.
func (c ExecutionContext) WithMetadata(key string, value any) ExecutionContext {
	next := c
	next.Metadata = maps.Clone(c.Metadata)
	if next.Metadata == nil {
		next.Metadata = map[string]any{}
	}
	next.Metadata[key] = value
	return next
}

// WithParent returns a new context nested under parent, for sub-orchestrations
// that must still propagate the same trace_id.
func (c ExecutionContext) WithParent(parent ExecutionContext) ExecutionContext {
	next := c
	p := parent
	next.ParentContext = &p
	return next
}

// EffectiveProfile returns the context's profile, defaulting to "default"
// when unset.
func (c ExecutionContext) EffectiveProfile() string {
	if c.Profile == "" {
		return "default"
	}
	return c.Profile
}
