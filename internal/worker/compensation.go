package worker

import "sync"

// compensationStack records undo actions in insertion order as steps
// succeed, and replays them in reverse on a critical-step failure under
// FALLBACK (§4.4.5). Compensation errors are logged by the caller, never
// raised, and never stop subsequent compensations from running.
type compensationStack struct {
	mu      sync.Mutex
	entries []string
}

func (s *compensationStack) push(action string) {
	if action == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, action)
}

// drain returns the recorded actions in reverse insertion order and
// clears the stack.
func (s *compensationStack) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, a := range s.entries {
		out[len(s.entries)-1-i] = a
	}
	s.entries = nil
	return out
}

// CompensationRunner executes one recorded compensation action (e.g.
// "delete_resource:id"). Its implementation is domain code, same as a
// tool handler; the substrate only guarantees ordering and
// never-propagates-errors semantics.
type CompensationRunner func(action string) error

// runCompensations executes actions in order (already reversed by
// drain), swallowing and collecting errors rather than raising them
// (§4.4.5 "Compensation errors are logged, never raised").
func runCompensations(actions []string, run CompensationRunner) []error {
	if run == nil {
		return nil
	}
	var errs []error
	for _, action := range actions {
		if err := run(action); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
