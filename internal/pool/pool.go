// Package pool implements the engine's executor pool: an abstract bounded
// worker pool with isolated (process-per-task) and shared (goroutine)
// variants, both honoring a global concurrency cap and per-task
// timeout/cancellation.
package pool

import (
	"context"
	"time"

	"workflowctl/internal/errs"
	"workflowctl/internal/registry"
	"workflowctl/internal/value"
)

// Job is a single unit of work submitted to a Pool.
//
// FunctionRef is carried alongside the already-resolved Fn callable so that
// IsolatedPool, which cannot ship a closure across a process boundary, can
// re-resolve the same function by name inside the child (see
// cmd/workflowctl's worker mode). SharedPool ignores FunctionRef and calls
// Fn directly in-process.
type Job struct {
	TaskID      string
	FunctionRef string
	Fn          registry.Function
	Args        []value.Value
	Timeout     *time.Duration
}

func (j Job) fnRef() string { return j.FunctionRef }

// Result is the completion handle's resolved value: either a returned
// value or a failure descriptor `{kind, message}`.
type Result struct {
	TaskID string
	Value  value.Value
	Err    *errs.Error // nil on success
}

// Pool is the contract consumed by the Scheduler. Submit enqueues work;
// Results delivers completions asynchronously, in the order the pool
// observes them (not submission order) — the Scheduler's own queues are
// what impose submission order.
//
// Submissions beyond the pool's concurrency cap wait for a free slot. Each
// Submit starts its own goroutine, and waiting goroutines obtain slots in
// the order they reach the semaphore, which is not guaranteed to match the
// order of the Submit calls. Submit itself never blocks the Scheduler's
// single-threaded loop beyond enqueueing.
type Pool interface {
	Submit(job Job)
	Results() <-chan Result
	// Shutdown waits for in-flight jobs if graceful, or best-effort
	// cancels them and waits for their resolution if not.
	Shutdown(graceful bool)
}
