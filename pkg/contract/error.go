package contract

import "fmt"

// ErrorType classifies an AgentError for programmatic handling. It is the
// canonical enum named in the data model; callers switch on it instead of
// string-matching messages.
type ErrorType string

const (
	ErrorValidation ErrorType = "VALIDATION"
	ErrorExecution  ErrorType = "EXECUTION"
	ErrorTimeout    ErrorType = "TIMEOUT"
	ErrorResource   ErrorType = "RESOURCE"
	ErrorPermission ErrorType = "PERMISSION"
	ErrorNetwork    ErrorType = "NETWORK"
	ErrorUnknown    ErrorType = "UNKNOWN"
)

// AgentError is the immutable error shape carried by an AgentResponse whose
// status is ERROR. Construct with NewAgentError rather than a literal so the
// recoverable default and trace context stay consistent.
type AgentError struct {
	Type          ErrorType
	Message       string
	Details       map[string]any
	Recoverable   bool
	RetryAfterSec float64
	TraceContext  string
}

// NewAgentError builds an AgentError with Recoverable defaulting to false,
// matching the data model's default.
func NewAgentError(typ ErrorType, message string, traceID string) AgentError {
	return AgentError{Type: typ, Message: message, TraceContext: traceID}
}

func (e AgentError) Error() string {
	if e.TraceContext != "" {
		return fmt.Sprintf("[%s] %s (trace=%s)", e.Type, e.Message, e.TraceContext)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// WithDetails returns a copy of e with details merged in.
func (e AgentError) WithDetails(details map[string]any) AgentError {
	next := e
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	next.Details = merged
	return next
}

// WithRetryAfter returns a copy of e marked recoverable with the given
// retry-after hint in seconds.
func (e AgentError) WithRetryAfter(seconds float64) AgentError {
	next := e
	next.Recoverable = true
	next.RetryAfterSec = seconds
	return next
}
