package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// JobStatus mirrors contract.Status' PENDING branch for tools marked
// Async (§[FULL-SUPPLEMENT]): the worker pipeline returns immediately
// with a job ID instead of blocking on the handler.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Job tracks one async tool invocation's lifecycle.
type Job struct {
	ID        string
	Tool      string
	Status    JobStatus
	Result    any
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrJobNotFound is returned by JobStore.Get for unknown job IDs.
var ErrJobNotFound = errors.New("registry: job not found")

// JobStore is a bounded-worker-pool-backed store for async tool jobs.
// Submit runs each job on its own goroutine, admitted through a semaphore
// channel with poolSize slots, and jobs are polled rather than awaited.
// RunSettleAll below is the separate errgroup-based "settle-all, don't
// short-circuit" fan-out used by the worker's parallel step execution (§5).
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job

	sem chan struct{} // bounds concurrent in-flight handlers
}

// NewJobStore builds a JobStore whose worker pool admits at most
// poolSize concurrent handler executions.
func NewJobStore(poolSize int) *JobStore {
	if poolSize <= 0 {
		poolSize = 8
	}
	return &JobStore{
		jobs: make(map[string]*Job),
		sem:  make(chan struct{}, poolSize),
	}
}

// Submit registers a new pending job for tool and asynchronously runs fn,
// recording its outcome. It returns immediately with the job ID.
func (s *JobStore) Submit(ctx context.Context, jobID, tool string, fn func(context.Context) (any, error)) *Job {
	now := time.Now()
	job := &Job{ID: jobID, Tool: tool, Status: JobPending, CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()

	go func() {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-ctx.Done():
			s.finish(jobID, nil, ctx.Err())
			return
		}

		s.mu.Lock()
		job.Status = JobRunning
		job.UpdatedAt = time.Now()
		s.mu.Unlock()

		result, err := fn(ctx)
		s.finish(jobID, result, err)
	}()

	return job
}

func (s *JobStore) finish(jobID string, result any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return
	}
	job.UpdatedAt = time.Now()
	job.Result = result
	job.Err = err
	if err != nil {
		job.Status = JobFailed
	} else {
		job.Status = JobSuccess
	}
}

// Get returns the current state of jobID.
func (s *JobStore) Get(jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrJobNotFound, jobID)
	}
	// Return a copy so callers can't mutate store state.
	cp := *job
	return &cp, nil
}

// RunSettleAll runs fns concurrently, waiting for every one to complete
// (success or failure) rather than cancelling the group on first error —
// the "settle-all" parallel fan-out pattern required for plan steps that
// parallelize independent sub-steps (§5). It returns one error per fn, in
// input order, with nil where the corresponding fn succeeded.
func RunSettleAll(ctx context.Context, fns []func(context.Context) error) []error {
	errs := make([]error, len(fns))
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			errs[i] = fn(gctx)
			return nil // never abort sibling goroutines on failure
		})
	}
	_ = g.Wait()
	return errs
}
