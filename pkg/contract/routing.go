package contract

// RoutingDecision is the immutable result of a routing policy: which agent
// should handle a task, why, and an optional fallback target for the
// FALLBACK error-propagation strategy (§4.1.2).
type RoutingDecision struct {
	Target   string
	Reason   string
	Metadata map[string]any
	Fallback string
}

// HasFallback reports whether a secondary target is configured.
func (d RoutingDecision) HasFallback() bool {
	return d.Fallback != ""
}
