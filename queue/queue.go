// Package queue implements the fixed-capacity work queue and worker pool
// tile decode tasks run on: producers submit TileTasks, a bounded set of
// worker goroutines execute them in parallel, and a separate completion
// queue of the same shape is drained only by the caller that owns the
// render loop.
package queue

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// MaxThreadCount bounds the worker pool regardless of how many logical
// CPUs are detected.
const MaxThreadCount = 128

// TileTask is one unit of decode work: a callback plus the bookkeeping
// the pool needs to run it exactly once and report completion.
type TileTask struct {
	// Run performs the decode. It must check Deleted before doing any
	// work and after any blocking I/O, bailing out early if set.
	Run func(ctx context.Context) error
	// Deleted is set by the owning Image when it is closed; tasks must
	// re-check it cooperatively rather than being killed outright.
	Deleted *atomic.Bool
	// Priority is a scheduling hint only; the pool may run any ready
	// task regardless of priority order.
	Priority int
}

// Completion is pushed to the completion queue once a task finishes
// (successfully or not), for the owner of the render loop to drain.
type Completion struct {
	Task TileTask
	Err  error
}

// Pool is a counted-semaphore worker pool sized to
// min(logical_cpu_count, MaxThreadCount). Workers block on the semaphore
// when idle; there is no busy-waiting on the hot path.
type Pool struct {
	sem        *semaphore.Weighted
	group      *errgroup.Group
	groupCtx   context.Context
	completion chan Completion

	submitted  atomic.Int64
	executed   atomic.Int64
	completed  atomic.Int64
}

// NewPool starts a pool with workerCount workers (a non-positive count
// means runtime.NumCPU(); either way the count is capped at
// MaxThreadCount) draining into a completion channel of the given
// capacity.
func NewPool(ctx context.Context, workerCount, completionCapacity int) *Pool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount > MaxThreadCount {
		workerCount = MaxThreadCount
	}

	group, groupCtx := errgroup.WithContext(ctx)
	p := &Pool{
		sem:        semaphore.NewWeighted(int64(workerCount)),
		group:      group,
		groupCtx:   groupCtx,
		completion: make(chan Completion, completionCapacity),
	}
	return p
}

// Submit enqueues a task. It blocks only long enough to acquire a worker
// slot from the semaphore; the task itself runs on a freshly spawned
// goroutine so Submit never blocks for the task's full duration.
func (p *Pool) Submit(task TileTask) error {
	if err := p.sem.Acquire(p.groupCtx, 1); err != nil {
		return err
	}
	p.submitted.Add(1)

	p.group.Go(func() error {
		defer p.sem.Release(1)
		p.executed.Add(1)

		var err error
		if task.Deleted == nil || !task.Deleted.Load() {
			err = task.Run(p.groupCtx)
		}
		p.completed.Add(1)

		select {
		case p.completion <- Completion{Task: task, Err: err}:
		case <-p.groupCtx.Done():
			return p.groupCtx.Err()
		}
		return nil
	})
	return nil
}

// Drain pulls up to max completions without blocking past what is
// already available; the streamer calls this under its per-frame
// completion budget.
func (p *Pool) Drain(max int) []Completion {
	out := make([]Completion, 0, max)
	for len(out) < max {
		select {
		case c := <-p.completion:
			out = append(out, c)
		default:
			return out
		}
	}
	return out
}

// Wait blocks until every submitted task has returned, propagating the
// first task error (if any) or the context's cancellation cause.
func (p *Pool) Wait() error { return p.group.Wait() }

// Stats reports the submit/execute/completion counters invariant 3
// (single-flight) and the general queue-depth metrics are checked
// against.
func (p *Pool) Stats() (submitted, executed, completed int64) {
	return p.submitted.Load(), p.executed.Load(), p.completed.Load()
}
