// Package scheduler implements the engine's central loop: a ready FIFO
// queue, a pending-retries min-heap ordered by wake-time, per-tag and
// global in-flight caps, and cache-before-dispatch semantics.
package scheduler

import (
	"container/heap"
	"context"
	"time"

	"workflowctl/internal/cache"
	"workflowctl/internal/errs"
	"workflowctl/internal/graph"
	"workflowctl/internal/logging"
	"workflowctl/internal/metrics"
	"workflowctl/internal/pool"
	"workflowctl/internal/registry"
	"workflowctl/internal/retry"
	"workflowctl/internal/summary"
	"workflowctl/internal/trace"
	"workflowctl/internal/value"
)

// Limits bounds concurrent dispatch: Global caps total in-flight tasks;
// Tags caps in-flight tasks per declared tag. A tag absent from Tags is
// unlimited.
type Limits struct {
	Global int
	Tags   map[string]int
}

// Options configures a Scheduler. Pool and Registry are required. Left
// zero, Cache defaults to cache.Disabled, Trace to trace.NopSink, Log to a
// new info-level logger on stderr, Metrics to a fresh metrics.New()
// collector, Now to time.Now, and Limits.Global to 1.
type Options struct {
	Limits   Limits
	Pool     pool.Pool
	Cache    cache.Cache
	Registry *registry.Registry
	Log      *logging.Sink
	Metrics  *metrics.Collector
	Trace    trace.Sink
	// Policy overrides the per-task retry policy; defaults to
	// retry.Default(task.Retries).
	Policy func(retries int) retry.Policy
	// Now overrides time.Now for deterministic tests.
	Now   func() time.Time
	RunID string
}

// taskRuntime is the Scheduler's private bookkeeping for one task across its
// lifetime, never exposed outside this package.
type taskRuntime struct {
	attempts     int
	startedAt    time.Time
	fingerprint  string
	cacheChecked bool
}

// Scheduler drives one workflow run to completion. It is not safe for
// concurrent use: Run owns a single-threaded dispatch loop.
type Scheduler struct {
	g        *graph.Graph
	pool     pool.Pool
	cache    cache.Cache
	resolved map[string]registry.Function
	limits   Limits
	log      *logging.Sink
	metrics  *metrics.Collector
	trace    trace.Sink
	policyFn func(retries int) retry.Policy
	now      func() time.Time
	runID    string

	ready          []string
	inFlightGlobal int
	inFlightTags   map[string]int
	pendingRetries retryHeap
	runtime        map[string]*taskRuntime
	outcomes       []summary.TaskOutcome
}

// New builds a Scheduler over wf, pre-resolving every task's function_ref
// against opts.Registry so an UnknownFunction error is fatal at workflow
// construction rather than surfacing mid-run.
func New(wf *graph.Workflow, opts Options) (*Scheduler, error) {
	g, err := graph.New(wf)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]registry.Function, len(wf.Tasks))
	for id, t := range wf.Tasks {
		fn, err := opts.Registry.Resolve(t.FunctionRef)
		if err != nil {
			return nil, err
		}
		resolved[id] = fn
	}

	c := opts.Cache
	if c == nil {
		c = cache.Disabled{}
	}
	tr := opts.Trace
	if tr == nil {
		tr = trace.NopSink{}
	}
	log := opts.Log
	if log == nil {
		log = logging.NewSink(logging.New(logging.DefaultConfig()))
	}
	met := opts.Metrics
	if met == nil {
		met = metrics.New()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limits := opts.Limits
	if limits.Global <= 0 {
		limits.Global = 1
	}
	if limits.Tags == nil {
		limits.Tags = map[string]int{}
	}

	return &Scheduler{
		g: g, pool: opts.Pool, cache: c, resolved: resolved,
		limits: limits, log: log, metrics: met, trace: tr, policyFn: opts.Policy,
		now: now, runID: opts.RunID,
		inFlightTags: make(map[string]int),
		runtime:      make(map[string]*taskRuntime),
	}, nil
}

// Run drives the workflow to completion: every task reaches a terminal
// state, or the run is cut short by overallTimeout (0 means unbounded) or
// ctx cancellation. The returned RunSummary's Outcomes are in completion
// order.
func (s *Scheduler) Run(ctx context.Context, overallTimeout time.Duration) (*summary.RunSummary, error) {
	started := s.now()
	s.log.Info(logging.EventRunStart, logging.Fields{})

	runCtx := ctx
	if overallTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, overallTimeout)
		defer cancel()
	}

	s.ready = s.g.InitialReady()
	results := s.pool.Results()

	timedOut := false
runLoop:
	for {
		s.promoteRetries()
		for s.dispatchPass() {
		}
		if s.g.AllTerminal() {
			break
		}
		if s.pendingWork() == 0 {
			// No task is ready, in flight, or waiting on a retry timer, yet
			// not every task is terminal: nothing can ever make progress
			// again. This should be unreachable for a validated workflow;
			// it is a defensive stop rather than a silent hang.
			break
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if len(s.pendingRetries) > 0 {
			d := time.Until(s.pendingRetries[0].wakeAt)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-runCtx.Done():
			timedOut = true
			if timer != nil {
				timer.Stop()
			}
			break runLoop
		case res := <-results:
			if timer != nil {
				timer.Stop()
			}
			s.collect(res)
		case <-timerC:
		}
	}

	if timedOut {
		s.cancelRemaining()
	} else {
		s.pool.Shutdown(true)
	}

	ended := s.now()
	s.log.Info(logging.EventRunEnd, logging.Fields{DurationMs: ended.Sub(started).Milliseconds()})

	return &summary.RunSummary{
		WorkflowName: s.g.Workflow().Name,
		StartedAt:    started,
		EndedAt:      ended,
		Outcomes:     s.outcomes,
	}, nil
}

func (s *Scheduler) pendingWork() int {
	return len(s.ready) + len(s.pendingRetries) + s.inFlightGlobal
}

// promoteRetries moves every due entry from pendingRetries into ready, in
// wake-time order.
func (s *Scheduler) promoteRetries() {
	now := s.now()
	for len(s.pendingRetries) > 0 && !s.pendingRetries[0].wakeAt.After(now) {
		item := heap.Pop(&s.pendingRetries).(retryItem)
		s.g.SetState(item.taskID, graph.StateReady)
		s.ready = append(s.ready, item.taskID)
	}
}

// dispatchPass makes one left-to-right sweep over the ready queue: cache
// hits resolve immediately regardless of capacity, tag/global-capped tasks
// stay in the queue in place, everything else is submitted to the pool.
// Returns whether anything resolved or was submitted, so the caller can
// keep sweeping until a fixed point (cache hits can make new tasks ready
// within the same pass).
func (s *Scheduler) dispatchPass() bool {
	if len(s.ready) == 0 {
		return false
	}
	pending := s.ready
	s.ready = nil
	progressed := false

	for _, id := range pending {
		task := s.g.Task(id)
		rt := s.runtimeFor(id)

		if task.Cacheable && !rt.cacheChecked {
			rt.cacheChecked = true
			fp, err := value.Fingerprint(task.FunctionRef, task.Args)
			if err != nil {
				// A fingerprint failure downgrades the task to cache-bypass rather
				// than failing it outright: it still runs, just without a read or
				// a write against the cache (rt.fingerprint stays unset below).
				s.log.Warn(logging.EventCacheHit, logging.Fields{TaskID: id, ErrorKind: string(errs.KindFingerprintError), ErrorMsg: err.Error()})
			} else {
				rt.fingerprint = fp

				v, ok, lookupErr := s.cache.Lookup(fp)
				if lookupErr != nil {
					s.log.Warn(logging.EventCacheHit, logging.Fields{TaskID: id, ErrorKind: string(errs.KindCacheReadError), ErrorMsg: lookupErr.Error()})
				} else if ok {
					s.finishCacheHit(id, v)
					progressed = true
					continue
				}
			}
		}

		if s.inFlightGlobal >= s.limits.Global {
			s.ready = append(s.ready, id)
			continue
		}
		if !s.tagsAdmit(task.Tags) {
			s.ready = append(s.ready, id)
			continue
		}

		s.dispatchToPool(id, task, rt)
		progressed = true
	}
	return progressed
}

func (s *Scheduler) tagsAdmit(tags []string) bool {
	for _, t := range tags {
		limit, capped := s.limits.Tags[t]
		if !capped {
			continue
		}
		if s.inFlightTags[t] >= limit {
			return false
		}
	}
	return true
}

func (s *Scheduler) dispatchToPool(id string, task graph.TaskSpec, rt *taskRuntime) {
	s.g.SetState(id, graph.StateRunning)
	s.inFlightGlobal++
	for _, t := range task.Tags {
		s.inFlightTags[t]++
		s.metrics.InFlightByTag.WithLabelValues(t).Set(float64(s.inFlightTags[t]))
	}
	s.metrics.InFlightGlobal.Set(float64(s.inFlightGlobal))

	rt.attempts++
	if rt.attempts == 1 {
		rt.startedAt = s.now()
	}

	s.log.Info(logging.EventTaskDispatch, logging.Fields{TaskID: id, Attempt: rt.attempts})
	trace.SafeRecord(s.trace, trace.Event{Kind: trace.EventDispatched, TaskID: id, Attempt: rt.attempts})

	// The scheduler enforces every admission gate (global/tag capacity)
	// before calling this, so submission to the pool and the task's
	// logical start coincide; there is no separate queued-in-pool state
	// to observe.
	s.log.Info(logging.EventTaskStart, logging.Fields{TaskID: id, Attempt: rt.attempts})

	s.pool.Submit(pool.Job{
		TaskID:      id,
		FunctionRef: task.FunctionRef,
		Fn:          s.resolved[id],
		Args:        task.Args,
		Timeout:     task.Timeout,
	})
}

func (s *Scheduler) finishCacheHit(id string, v value.Value) {
	now := s.now()
	s.log.Info(logging.EventCacheHit, logging.Fields{TaskID: id})
	trace.SafeRecord(s.trace, trace.Event{Kind: trace.EventCacheHit, TaskID: id})
	s.metrics.CacheHitsTotal.Inc()
	s.metrics.TasksTotal.WithLabelValues(string(graph.StateSucceeded)).Inc()

	newlyReady := s.g.MarkSucceeded(id)
	s.ready = append(s.ready, newlyReady...)

	s.outcomes = append(s.outcomes, summary.TaskOutcome{
		TaskID: id, Status: graph.StateSucceeded, Attempts: 0,
		StartedAt: now, EndedAt: now, Cached: true, Result: &v,
	})
}

// collect handles one pool.Result, routed here from Run's dispatch loop.
func (s *Scheduler) collect(res pool.Result) {
	id := res.TaskID
	task := s.g.Task(id)
	rt := s.runtimeFor(id)

	s.inFlightGlobal--
	s.metrics.InFlightGlobal.Set(float64(s.inFlightGlobal))
	for _, t := range task.Tags {
		s.inFlightTags[t]--
		s.metrics.InFlightByTag.WithLabelValues(t).Set(float64(s.inFlightTags[t]))
	}

	if res.Err == nil {
		s.finishSuccess(id, task, rt, res.Value)
		return
	}
	s.handleFailure(id, task, rt, res.Err)
}

func (s *Scheduler) finishSuccess(id string, task graph.TaskSpec, rt *taskRuntime, v value.Value) {
	now := s.now()
	durationMs := now.Sub(rt.startedAt).Milliseconds()

	s.log.Info(logging.EventTaskEnd, logging.Fields{
		TaskID: id, Attempt: rt.attempts, Status: string(graph.StateSucceeded), DurationMs: durationMs,
	})
	trace.SafeRecord(s.trace, trace.Event{Kind: trace.EventSucceeded, TaskID: id, Attempt: rt.attempts})
	s.metrics.TasksTotal.WithLabelValues(string(graph.StateSucceeded)).Inc()

	if task.Cacheable && rt.fingerprint != "" {
		if err := s.cache.Store(rt.fingerprint, v); err != nil {
			s.log.Warn(logging.EventCacheStore, logging.Fields{TaskID: id, ErrorKind: string(errs.KindCacheWriteError), ErrorMsg: err.Error()})
		} else {
			s.log.Info(logging.EventCacheStore, logging.Fields{TaskID: id})
		}
	}

	newlyReady := s.g.MarkSucceeded(id)
	s.ready = append(s.ready, newlyReady...)

	s.outcomes = append(s.outcomes, summary.TaskOutcome{
		TaskID: id, Status: graph.StateSucceeded, Attempts: rt.attempts,
		StartedAt: rt.startedAt, EndedAt: now, WallTime: now.Sub(rt.startedAt),
		Result: &v,
	})
}

// handleFailure classifies one task failure: retry it if the error kind is
// retryable and the policy has attempts left, otherwise mark it failed and
// propagate skips to its descendants.
func (s *Scheduler) handleFailure(id string, task graph.TaskSpec, rt *taskRuntime, errv *errs.Error) {
	now := s.now()
	retryable := errv.Kind == errs.KindTaskThrew || errv.Kind == errs.KindTaskTimeout
	policy := s.policyFor(task)

	if retryable && policy.HasRemainingAttempts(rt.attempts) {
		delay := policy.DelayForAttempt(rt.attempts + 1)
		heap.Push(&s.pendingRetries, retryItem{wakeAt: now.Add(delay), taskID: id})
		s.metrics.RetriesTotal.Inc()
		s.log.Info(logging.EventTaskRetry, logging.Fields{TaskID: id, Attempt: rt.attempts, ErrorKind: string(errv.Kind), ErrorMsg: errv.Msg})
		trace.SafeRecord(s.trace, trace.Event{Kind: trace.EventRetried, TaskID: id, Attempt: rt.attempts})
		return
	}

	s.g.SetState(id, graph.StateFailed)
	s.log.Error(logging.EventTaskEnd, logging.Fields{
		TaskID: id, Attempt: rt.attempts, Status: string(graph.StateFailed),
		ErrorKind: string(errv.Kind), ErrorMsg: errv.Msg,
	})
	trace.SafeRecord(s.trace, trace.Event{Kind: trace.EventFailed, TaskID: id, Attempt: rt.attempts})
	s.metrics.TasksTotal.WithLabelValues(string(graph.StateFailed)).Inc()

	s.outcomes = append(s.outcomes, summary.TaskOutcome{
		TaskID: id, Status: graph.StateFailed, Attempts: rt.attempts,
		StartedAt: rt.startedAt, EndedAt: now, WallTime: now.Sub(rt.startedAt),
		Error: &summary.ErrorDescriptor{Kind: string(errv.Kind), Message: errv.Msg},
	})

	skipped, cause := s.g.MarkTerminalNonSuccess(id)
	for _, sid := range skipped {
		s.log.Info(logging.EventTaskSkip, logging.Fields{TaskID: sid})
		trace.SafeRecord(s.trace, trace.Event{Kind: trace.EventSkipped, TaskID: sid, CauseTaskID: cause})
		s.metrics.TasksTotal.WithLabelValues(string(graph.StateSkipped)).Inc()
		s.outcomes = append(s.outcomes, summary.TaskOutcome{
			TaskID: sid, Status: graph.StateSkipped, StartedAt: now, EndedAt: now, SkipCause: cause,
		})
	}
	s.pruneReady(skipped)
}

// pruneReady removes ids (just marked skipped) that may still be sitting in
// the ready queue waiting on tag capacity.
func (s *Scheduler) pruneReady(remove []string) {
	if len(remove) == 0 {
		return
	}
	drop := make(map[string]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	out := s.ready[:0]
	for _, id := range s.ready {
		if !drop[id] {
			out = append(out, id)
		}
	}
	s.ready = out
}

// cancelRemaining force-stops the pool and marks every non-terminal task
// failed with Cancelled, for the overall-timeout path.
func (s *Scheduler) cancelRemaining() {
	s.pool.Shutdown(false)
	now := s.now()
	for _, id := range s.g.Workflow().SortedIDs() {
		if graph.IsTerminal(s.g.State(id)) {
			continue
		}
		rt := s.runtimeFor(id)
		s.g.SetState(id, graph.StateFailed)
		trace.SafeRecord(s.trace, trace.Event{Kind: trace.EventFailed, TaskID: id, Attempt: rt.attempts})
		s.metrics.TasksTotal.WithLabelValues(string(graph.StateFailed)).Inc()
		s.outcomes = append(s.outcomes, summary.TaskOutcome{
			TaskID: id, Status: graph.StateFailed, Attempts: rt.attempts,
			StartedAt: rt.startedAt, EndedAt: now,
			Error: &summary.ErrorDescriptor{Kind: string(errs.KindCancelled), Message: "run deadline exceeded"},
		})
	}
}

func (s *Scheduler) runtimeFor(id string) *taskRuntime {
	rt, ok := s.runtime[id]
	if !ok {
		rt = &taskRuntime{}
		s.runtime[id] = rt
	}
	return rt
}

func (s *Scheduler) policyFor(task graph.TaskSpec) retry.Policy {
	if s.policyFn != nil {
		return s.policyFn(task.Retries)
	}
	return retry.Default(task.Retries)
}
