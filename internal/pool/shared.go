package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"workflowctl/internal/errs"
	"workflowctl/internal/value"
)

// SharedPool is the "shared workers" variant of the executor pool: workers
// share memory with the Scheduler via goroutines, making dispatch cheap —
// suited to I/O-bound tasks. Concurrency is bounded by a
// golang.org/x/sync/semaphore.Weighted, which queues excess acquires in
// the order they reach it; since every Submit acquires from its own
// goroutine, that order is not necessarily the order of the Submit calls.
type SharedPool struct {
	sem     *semaphore.Weighted
	results chan Result

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	ctx       context.Context
	cancelAll context.CancelFunc
}

// NewShared returns a SharedPool with at most `concurrency` submissions
// running at once.
func NewShared(concurrency int) *SharedPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &SharedPool{
		sem:       semaphore.NewWeighted(int64(concurrency)),
		results:   make(chan Result, concurrency),
		cancels:   make(map[string]context.CancelFunc),
		ctx:       ctx,
		cancelAll: cancel,
	}
}

func (p *SharedPool) Results() <-chan Result { return p.results }

// Submit runs job.Fn in a new goroutine once a semaphore slot is
// available. The goroutine never touches Scheduler state — it only ever
// writes to p.results, preserving the invariant that workers never touch
// scheduler state directly.
func (p *SharedPool) Submit(job Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.results <- Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindCancelled, Msg: "pool shut down before dispatch"}}
			return
		}
		defer p.sem.Release(1)

		ctx := p.ctx
		cancel := func() {}
		if job.Timeout != nil {
			ctx, cancel = context.WithTimeout(p.ctx, *job.Timeout)
		} else {
			ctx, cancel = context.WithCancel(p.ctx)
		}
		p.mu.Lock()
		p.cancels[job.TaskID] = cancel
		p.mu.Unlock()
		defer func() {
			cancel()
			p.mu.Lock()
			delete(p.cancels, job.TaskID)
			p.mu.Unlock()
		}()

		p.results <- runJob(ctx, job)
	}()
}

func runJob(ctx context.Context, job Job) Result {
	type outcome struct {
		v   value.Value
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := job.Fn(ctx, job.Args)
		done <- outcome{v: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindTaskThrew, Msg: o.err.Error()}}
		}
		return Result{TaskID: job.TaskID, Value: o.v}
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindTaskTimeout, Msg: "task exceeded its timeout"}}
		}
		return Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindCancelled, Msg: "task cancelled"}}
	}
}

// Shutdown waits for in-flight jobs (graceful) or cancels every tracked
// in-flight job's context before waiting (force).
func (p *SharedPool) Shutdown(graceful bool) {
	if !graceful {
		p.mu.Lock()
		for _, cancel := range p.cancels {
			cancel()
		}
		p.mu.Unlock()
		p.cancelAll()
	}
	p.wg.Wait()
	close(p.results)
}
