package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/substrate/pkg/contract"
)

type fakeStore struct {
	mu        sync.Mutex
	loadErr   error
	flushErr  error
	loaded    []string
	flushed   int
}

func (f *fakeStore) Load(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, key)
	return f.loadErr
}

func (f *fakeStore) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
	return f.flushErr
}

func TestStartupTransitionsToReady(t *testing.T) {
	l := New(&fakeStore{}, nil)
	require.NoError(t, l.Startup(context.Background(), Config{}, "mem-key"))
	assert.Equal(t, StateReady, l.State())
}

func TestStartupIdempotentWhenAlreadyReady(t *testing.T) {
	store := &fakeStore{}
	l := New(store, nil)
	require.NoError(t, l.Startup(context.Background(), Config{}, "mem-key"))
	require.NoError(t, l.Startup(context.Background(), Config{}, "mem-key"))

	assert.Equal(t, StateReady, l.State())
	assert.Len(t, store.loaded, 1, "second Startup call must be a no-op")
}

func TestStartupRollsBackOnErrorWithCleanup(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("disk full")}
	l := New(store, nil)

	err := l.Startup(context.Background(), Config{CleanupOnError: true}, "mem-key")
	var startupErr *StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.Equal(t, StateTerminated, l.State())
}

func TestStartupSurfacesErrorWithoutCleanup(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("disk full")}
	l := New(store, nil)

	err := l.Startup(context.Background(), Config{CleanupOnError: false}, "mem-key")
	require.Error(t, err)
	assert.Equal(t, StateInitializing, l.State())
}

func TestShutdownAlwaysReachesTerminated(t *testing.T) {
	store := &fakeStore{flushErr: errors.New("export failed")}
	l := New(store, nil)
	require.NoError(t, l.Startup(context.Background(), Config{}, ""))

	assert.NotPanics(t, func() { l.Shutdown(context.Background(), time.Second) })
	assert.Equal(t, StateTerminated, l.State())
	assert.Equal(t, 1, store.flushed)
}

func TestShutdownIdempotent(t *testing.T) {
	l := New(&fakeStore{}, nil)
	require.NoError(t, l.Startup(context.Background(), Config{}, ""))
	l.Shutdown(context.Background(), time.Second)
	l.Shutdown(context.Background(), time.Second)
	assert.Equal(t, StateTerminated, l.State())
}

func TestBeginEndCycle(t *testing.T) {
	l := New(&fakeStore{}, nil)
	require.NoError(t, l.Startup(context.Background(), Config{}, ""))

	require.NoError(t, l.Begin())
	assert.Equal(t, StateBusy, l.State())
	require.NoError(t, l.End())
	assert.Equal(t, StateReady, l.State())
}

func TestPauseResumeCycle(t *testing.T) {
	l := New(&fakeStore{}, nil)
	require.NoError(t, l.Startup(context.Background(), Config{}, ""))

	require.NoError(t, l.Pause())
	assert.Equal(t, StatePaused, l.State())
	require.NoError(t, l.Resume())
	assert.Equal(t, StateReady, l.State())
}

func TestInvalidTransitionRejected(t *testing.T) {
	l := New(&fakeStore{}, nil)
	// Cannot go BUSY before READY.
	err := l.Begin()
	assert.Error(t, err)
}

func TestCheckWriteAllowsAgentAndSharedKeys(t *testing.T) {
	l := New(&fakeStore{}, nil)
	l.DeclareOwner("scratch", contract.StateOwnerAgent)
	l.DeclareOwner("shared_counter", contract.StateOwnerShared)

	assert.NoError(t, l.CheckWrite("scratch"))
	assert.NoError(t, l.CheckWrite("shared_counter"))
}

func TestCheckWriteRejectsMemoryAndOrchestratorKeys(t *testing.T) {
	l := New(&fakeStore{}, nil)
	l.DeclareOwner("trace_id", contract.StateOwnerOrchestrator)
	l.DeclareOwner("long_term_fact", contract.StateOwnerMemory)

	var violation *contract.StateViolationError
	require.ErrorAs(t, l.CheckWrite("trace_id"), &violation)
	assert.Equal(t, contract.StateOwnerOrchestrator, violation.ActualOwner)

	require.ErrorAs(t, l.CheckWrite("long_term_fact"), &violation)
	assert.Equal(t, contract.StateOwnerMemory, violation.ActualOwner)
}

func TestSetAgentStateRejectsProtectedKey(t *testing.T) {
	l := New(&fakeStore{}, nil)
	l.DeclareOwner("trace_id", contract.StateOwnerOrchestrator)

	err := l.SetAgentState("trace_id", "should-not-write")
	assert.Error(t, err)
	_, ok := l.GetAgentState("trace_id")
	assert.False(t, ok)
}

func TestSetAndGetAgentState(t *testing.T) {
	l := New(&fakeStore{}, nil)
	require.NoError(t, l.SetAgentState("counter", 1))
	v, ok := l.GetAgentState("counter")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestUndeclaredKeyDefaultsToAgentOwned(t *testing.T) {
	l := New(&fakeStore{}, nil)
	assert.Equal(t, contract.StateOwnerAgent, l.OwnsState("anything"))
}

func TestTransitionEventsEmitted(t *testing.T) {
	var mu sync.Mutex
	var events []TransitionEvent
	done := make(chan struct{}, 10)

	l := New(&fakeStore{}, func(e TransitionEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		done <- struct{}{}
	})

	require.NoError(t, l.Startup(context.Background(), Config{}, ""))
	<-done
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)

	seen := map[State]State{}
	for _, e := range events {
		seen[e.From] = e.To
	}
	assert.Equal(t, StateInitializing, seen[StateUninitialized])
	assert.Equal(t, StateReady, seen[StateInitializing])
}
