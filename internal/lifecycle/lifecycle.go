// Package lifecycle implements the shared Agent Lifecycle state machine
// (§4.2): UNINITIALIZED -> INITIALIZING -> READY <-> BUSY -> SHUTTING_DOWN
// -> TERMINATED, with an optional PAUSED state reachable from and back to
// READY. Grounded on the typed-string-enum-plus-mutex-guarded-struct
// pattern used for small state machines elsewhere (e.g.
// internal/agent/compaction.go's CompactionState), generalized here to a
// full lifecycle with explicit startup/shutdown contracts and state
// ownership enforcement (pkg/contract.StateOwner).
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/substrate/pkg/contract"
)

// State is one of the Agent Lifecycle's states.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateInitializing  State = "INITIALIZING"
	StateReady         State = "READY"
	StateBusy          State = "BUSY"
	StatePaused        State = "PAUSED"
	StateShuttingDown  State = "SHUTTING_DOWN"
	StateTerminated    State = "TERMINATED"
)

var validTransitions = map[State]map[State]bool{
	StateUninitialized: {StateInitializing: true, StateShuttingDown: true},
	StateInitializing:  {StateReady: true, StateShuttingDown: true, StateTerminated: true},
	StateReady:         {StateBusy: true, StatePaused: true, StateShuttingDown: true},
	StateBusy:          {StateReady: true, StateShuttingDown: true},
	StatePaused:        {StateReady: true, StateShuttingDown: true},
	StateShuttingDown:  {StateTerminated: true},
	StateTerminated:    {},
}

// TransitionEvent records one lifecycle transition for the event stream
// ("Transitions logged as events", §4.2).
type TransitionEvent struct {
	From State
	To   State
	At   time.Time
}

// StartupError is raised by Startup when initialization fails with
// partial cleanup disabled (CleanupOnError=false).
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string { return fmt.Sprintf("lifecycle: startup failed: %v", e.Err) }
func (e *StartupError) Unwrap() error { return e.Err }

// Config configures Startup.
type Config struct {
	TimeoutSeconds float64
	CleanupOnError bool
}

// StateStore abstracts the MEMORY-scope load and flush Startup/Shutdown
// depend on, so Lifecycle itself has no hard dependency on a concrete
// memory.Backend.
type StateStore interface {
	Load(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}

// Lifecycle is the state machine owning one agent's AGENT-scope state and
// the read/write rules from §4.2's "State ownership rules".
type Lifecycle struct {
	mu    sync.Mutex
	state State

	agentState map[string]any
	memory     StateStore
	onEvent    func(TransitionEvent)

	owners map[string]contract.StateOwner
}

// New builds a Lifecycle starting in UNINITIALIZED. onEvent, if non-nil,
// is called (outside the lock) on every transition.
func New(memory StateStore, onEvent func(TransitionEvent)) *Lifecycle {
	return &Lifecycle{
		state:      StateUninitialized,
		agentState: make(map[string]any),
		memory:     memory,
		onEvent:    onEvent,
		owners:     make(map[string]contract.StateOwner),
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) transitionLocked(to State) error {
	if !validTransitions[l.state][to] {
		return fmt.Errorf("lifecycle: invalid transition %s -> %s", l.state, to)
	}
	from := l.state
	l.state = to
	if l.onEvent != nil {
		event := TransitionEvent{From: from, To: to, At: time.Now()}
		go l.onEvent(event)
	}
	return nil
}

// Startup implements the §4.2 startup(config) contract: idempotent when
// already READY, loads MEMORY-scope state, initializes AGENT-scope state
// to empty, and on failure either rolls back fully to TERMINATED
// (CleanupOnError) or returns a StartupError with state left as-is.
func (l *Lifecycle) Startup(ctx context.Context, config Config, memoryKey string) error {
	l.mu.Lock()
	if l.state == StateReady {
		l.mu.Unlock()
		return nil
	}
	if err := l.transitionLocked(StateInitializing); err != nil {
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	if config.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(config.TimeoutSeconds*float64(time.Second)))
		defer cancel()
	}

	var loadErr error
	if l.memory != nil && memoryKey != "" {
		loadErr = l.memory.Load(ctx, memoryKey)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if loadErr != nil {
		if config.CleanupOnError {
			l.agentState = make(map[string]any)
			_ = l.transitionLocked(StateShuttingDown)
			_ = l.transitionLocked(StateTerminated)
			return &StartupError{Err: loadErr}
		}
		return &StartupError{Err: loadErr}
	}

	l.agentState = make(map[string]any)
	return l.transitionLocked(StateReady)
}

// Shutdown implements the §4.2 shutdown(timeout) contract: never raises,
// persists MEMORY state via Flush, clears AGENT state, and always ends
// TERMINATED.
func (l *Lifecycle) Shutdown(ctx context.Context, timeout time.Duration) {
	l.mu.Lock()
	if l.state == StateTerminated {
		l.mu.Unlock()
		return
	}
	if l.state != StateShuttingDown {
		_ = l.transitionLocked(StateShuttingDown)
	}
	l.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if l.memory != nil {
		if err := l.memory.Flush(ctx); err != nil {
			// logged and swallowed, never raised here
			slog.Warn("lifecycle: flush during shutdown failed", "error", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.agentState = make(map[string]any)
	_ = l.transitionLocked(StateTerminated)
}

// Pause transitions READY -> PAUSED.
func (l *Lifecycle) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(StatePaused)
}

// Resume transitions PAUSED -> READY.
func (l *Lifecycle) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(StateReady)
}

// Begin transitions READY -> BUSY for the duration of one unit of work;
// End transitions back to READY.
func (l *Lifecycle) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(StateBusy)
}

// End transitions BUSY -> READY.
func (l *Lifecycle) End() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(StateReady)
}

// DeclareOwner registers key's owning scope for OwnsState/CheckWrite.
func (l *Lifecycle) DeclareOwner(key string, owner contract.StateOwner) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owners[key] = owner
}

// OwnsState returns the scope that owns key, defaulting to AGENT for
// undeclared keys (an agent's own working state needs no prior
// declaration).
func (l *Lifecycle) OwnsState(key string) contract.StateOwner {
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner, ok := l.owners[key]; ok {
		return owner
	}
	return contract.StateOwnerAgent
}

// CheckWrite enforces §4.2's state ownership rules: an agent may write
// AGENT and SHARED keys; writing a MEMORY or ORCHESTRATOR key raises
// StateViolationError.
func (l *Lifecycle) CheckWrite(key string) error {
	owner := l.OwnsState(key)
	if owner == contract.StateOwnerAgent || owner == contract.StateOwnerShared {
		return nil
	}
	return &contract.StateViolationError{Key: key, AttemptedBy: contract.StateOwnerAgent, ActualOwner: owner}
}

// SetAgentState writes key into AGENT-scope state after a CheckWrite
// pass.
func (l *Lifecycle) SetAgentState(key string, value any) error {
	if err := l.CheckWrite(key); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.agentState[key] = value
	return nil
}

// GetAgentState reads key from AGENT-scope state.
func (l *Lifecycle) GetAgentState(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.agentState[key]
	return v, ok
}
