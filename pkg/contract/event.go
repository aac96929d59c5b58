package contract

import "time"

// EventType enumerates the required structured event set from §4.5.
type EventType string

const (
	EventPlanCreated       EventType = "plan_created"
	EventRouteDecision     EventType = "route_decision"
	EventToolCallStart     EventType = "tool_call_start"
	EventToolCallComplete  EventType = "tool_call_complete"
	EventToolCallError     EventType = "tool_call_error"
	EventBudgetWarning     EventType = "budget_warning"
	EventBudgetExceeded    EventType = "budget_exceeded"
	EventBudgetUpdated     EventType = "budget_updated"
	EventApprovalRequested EventType = "approval_requested"
	EventApprovalReceived  EventType = "approval_received"
	EventApprovalTimeout   EventType = "approval_timeout"
	EventMemoryUpdated     EventType = "memory_updated"
	EventErrorOccurred     EventType = "error_occurred"
	EventTraceStarted      EventType = "trace_started"
)

// EventStatus is the canonical enum for StructuredEvent.Status.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusError   EventStatus = "error"
	EventStatusWarning EventStatus = "warning"
)

// StructuredEvent is frozen after construction (§3.1); build it with
// NewStructuredEvent so Timestamp is always nanosecond-precision and
// Attributes is never nil (redaction walks it unconditionally).
type StructuredEvent struct {
	EventType    EventType
	TraceID      string
	Timestamp    time.Time
	Status       EventStatus
	Attributes   map[string]any
	DurationMS   float64
	ErrorMessage string
}

// NewStructuredEvent constructs a StructuredEvent with the current time in
// nanosecond precision and a non-nil Attributes map.
func NewStructuredEvent(typ EventType, traceID string, status EventStatus, attrs map[string]any) StructuredEvent {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return StructuredEvent{
		EventType:  typ,
		TraceID:    traceID,
		Timestamp:  time.Now(),
		Status:     status,
		Attributes: attrs,
	}
}
