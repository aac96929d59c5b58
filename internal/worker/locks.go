// Package worker implements the Worker Agent & tool execution pipeline
// (§4.4): per-step resolve/validate/approve/budget/invoke/record, the
// approval gate, compensation replay, and settle-all parallel fan-out for
// plan steps that parallelize independent sub-steps (§5, §9). Grounded on
// internal/agent/tool_registry.go and internal/agent/executor.go's
// locking shape.
package worker

import (
	"strings"
	"sync"
)

// traceLock is a refcounted mutex for one trace_id, mirroring a
// sessionLock pattern in tool_registry.go.
type traceLock struct {
	mu   sync.Mutex
	refs int
}

// lockRegistry hands out per-trace_id locks so concurrent steps belonging
// to the same request never race on the same approval gate, while
// distinct requests never contend with each other (§[FULL-SUPPLEMENT]
// "session-scoped refcounted locks").
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*traceLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*traceLock)}
}

// Acquire blocks until traceID's lock is held and returns the release
// function. A blank traceID is treated as unscoped and never contends.
func (r *lockRegistry) Acquire(traceID string) func() {
	if strings.TrimSpace(traceID) == "" {
		return func() {}
	}

	r.mu.Lock()
	lock := r.locks[traceID]
	if lock == nil {
		lock = &traceLock{}
		r.locks[traceID] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.mu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(r.locks, traceID)
		}
		r.mu.Unlock()
	}
}
