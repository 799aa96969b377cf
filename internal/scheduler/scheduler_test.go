package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"workflowctl/internal/cache"
	"workflowctl/internal/errs"
	"workflowctl/internal/graph"
	"workflowctl/internal/logging"
	"workflowctl/internal/metrics"
	"workflowctl/internal/pool"
	"workflowctl/internal/registry"
	"workflowctl/internal/retry"
	"workflowctl/internal/trace"
	"workflowctl/internal/value"
)

// fakePool runs every job's Fn on its own goroutine and reports the result
// back unconverted, classifying a returned error as TaskThrew unless it is
// already an *errs.Error. This is enough to drive the Scheduler's dispatch
// loop deterministically without a real SharedPool/IsolatedPool.
type fakePool struct {
	results chan pool.Result
}

func newFakePool() *fakePool {
	return &fakePool{results: make(chan pool.Result, 64)}
}

func (p *fakePool) Submit(job pool.Job) {
	go func() {
		v, err := job.Fn(context.Background(), job.Args)
		var e *errs.Error
		if err != nil {
			var ok bool
			e, ok = errs.As(err)
			if !ok {
				e = &errs.Error{Kind: errs.KindTaskThrew, Msg: err.Error()}
			}
		}
		p.results <- pool.Result{TaskID: job.TaskID, Value: v, Err: e}
	}()
}

func (p *fakePool) Results() <-chan pool.Result { return p.results }
func (p *fakePool) Shutdown(bool)               {}

func newTestScheduler(t *testing.T, wf *graph.Workflow, reg *registry.Registry, limits Limits, c cache.Cache) *Scheduler {
	t.Helper()
	if c == nil {
		c = cache.Disabled{}
	}
	sched, err := New(wf, Options{
		Limits:   limits,
		Pool:     newFakePool(),
		Cache:    c,
		Registry: reg,
		Log:      logging.NewSink(logging.New(logging.Config{Level: logging.LevelError})),
		Metrics:  metrics.New(),
		Trace:    trace.NopSink{},
		Policy:   func(retries int) retry.Policy { return retry.New(retries, time.Millisecond, 2.0, 0, 0) },
	})
	require.NoError(t, err)
	return sched
}

func mustWorkflow(t *testing.T, name string, tasks ...graph.TaskSpec) *graph.Workflow {
	t.Helper()
	wf, err := graph.NewWorkflow(name, tasks)
	require.NoError(t, err)
	return wf
}

func TestLinearChainSucceedsInDependencyOrder(t *testing.T) {
	reg := registry.New()
	reg.Register("noop", func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.Int(1), nil
	})

	wf := mustWorkflow(t, "chain",
		graph.TaskSpec{ID: "a", FunctionRef: "noop", Cacheable: false},
		graph.TaskSpec{ID: "b", FunctionRef: "noop", Deps: []string{"a"}, Cacheable: false},
	)

	sched := newTestScheduler(t, wf, reg, Limits{Global: 4}, nil)
	sum, err := sched.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sum.Outcomes, 2)
	require.Equal(t, "a", sum.Outcomes[0].TaskID)
	require.Equal(t, "b", sum.Outcomes[1].TaskID)
	for _, o := range sum.Outcomes {
		require.Equal(t, graph.StateSucceeded, o.Status)
		require.Equal(t, 1, o.Attempts)
	}
}

func TestFailurePropagatesSkipToDescendants(t *testing.T) {
	reg := registry.New()
	reg.Register("ok", func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.Int(1), nil
	})
	reg.Register("boom", func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.Value{}, &errs.Error{Kind: errs.KindTaskThrew, Msg: "boom"}
	})

	wf := mustWorkflow(t, "propagate",
		graph.TaskSpec{ID: "a", FunctionRef: "boom", Retries: 0, Cacheable: false},
		graph.TaskSpec{ID: "b", FunctionRef: "ok", Deps: []string{"a"}, Cacheable: false},
	)

	sched := newTestScheduler(t, wf, reg, Limits{Global: 4}, nil)
	sum, err := sched.Run(context.Background(), 0)
	require.NoError(t, err)

	counts := sum.CountsByStatus()
	require.Equal(t, 1, counts[graph.StateFailed])
	require.Equal(t, 1, counts[graph.StateSkipped])
	for _, o := range sum.Outcomes {
		if o.TaskID == "b" {
			require.Equal(t, "a", o.SkipCause)
		}
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	reg := registry.New()
	var calls int32
	reg.Register("flaky", func(ctx context.Context, args []value.Value) (value.Value, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return value.Value{}, &errs.Error{Kind: errs.KindTaskThrew, Msg: "not yet"}
		}
		return value.Int(int64(n)), nil
	})

	wf := mustWorkflow(t, "retry",
		graph.TaskSpec{ID: "a", FunctionRef: "flaky", Retries: 3, Cacheable: false},
	)

	sched := newTestScheduler(t, wf, reg, Limits{Global: 4}, nil)
	sum, err := sched.Run(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.Len(t, sum.Outcomes, 1)
	require.Equal(t, graph.StateSucceeded, sum.Outcomes[0].Status)
	require.Equal(t, 3, sum.Outcomes[0].Attempts)
}

func TestCacheHitSkipsExecution(t *testing.T) {
	reg := registry.New()
	var calls int32
	reg.Register("expensive", func(ctx context.Context, args []value.Value) (value.Value, error) {
		atomic.AddInt32(&calls, 1)
		return value.Int(42), nil
	})

	wf := mustWorkflow(t, "cached",
		graph.TaskSpec{ID: "a", FunctionRef: "expensive", Cacheable: true},
	)

	dir := t.TempDir()
	c, err := cache.New(dir)
	require.NoError(t, err)

	fp, err := value.Fingerprint("expensive", nil)
	require.NoError(t, err)
	require.NoError(t, c.Store(fp, value.Int(42)))

	sched := newTestScheduler(t, wf, reg, Limits{Global: 4}, c)
	sum, err := sched.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sum.Outcomes, 1)
	require.True(t, sum.Outcomes[0].Cached)
	require.Equal(t, 0, sum.Outcomes[0].Attempts)
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestFingerprintErrorBypassesCacheRatherThanFailing(t *testing.T) {
	reg := registry.New()
	var calls int32
	reg.Register("echo", func(ctx context.Context, args []value.Value) (value.Value, error) {
		atomic.AddInt32(&calls, 1)
		return value.Int(42), nil
	})

	// An out-of-range Kind can't be fingerprinted; value.Fingerprint returns
	// a FingerprintError for it.
	badArg := value.Value{Kind: value.Kind(99)}
	wf := mustWorkflow(t, "unfingerprintable",
		graph.TaskSpec{ID: "a", FunctionRef: "echo", Args: []value.Value{badArg}, Cacheable: true},
	)

	dir := t.TempDir()
	c, err := cache.New(dir)
	require.NoError(t, err)

	sched := newTestScheduler(t, wf, reg, Limits{Global: 4}, c)
	sum, err := sched.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sum.Outcomes, 1)
	require.Equal(t, graph.StateSucceeded, sum.Outcomes[0].Status)
	require.False(t, sum.Outcomes[0].Cached)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTagLimitCapsConcurrency(t *testing.T) {
	reg := registry.New()
	var current, maxSeen int32
	reg.Register("slow", func(ctx context.Context, args []value.Value) (value.Value, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return value.Int(1), nil
	})

	var tasks []graph.TaskSpec
	for _, id := range []string{"a", "b", "c"} {
		tasks = append(tasks, graph.TaskSpec{ID: id, FunctionRef: "slow", Tags: []string{"gpu"}, Cacheable: false})
	}
	wf := mustWorkflow(t, "tagged", tasks...)

	sched := newTestScheduler(t, wf, reg, Limits{Global: 4, Tags: map[string]int{"gpu": 1}}, nil)
	sum, err := sched.Run(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.Len(t, sum.Outcomes, 3)
	require.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 1)
}

func TestOverallTimeoutCancelsRemainingTasks(t *testing.T) {
	reg := registry.New()
	reg.Register("forever", func(ctx context.Context, args []value.Value) (value.Value, error) {
		<-ctx.Done()
		return value.Value{}, &errs.Error{Kind: errs.KindCancelled, Msg: "cancelled"}
	})

	wf := mustWorkflow(t, "timeout",
		graph.TaskSpec{ID: "a", FunctionRef: "forever", Cacheable: false},
	)

	sched := newTestScheduler(t, wf, reg, Limits{Global: 4}, nil)
	sum, err := sched.Run(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, sum.Outcomes, 1)
	require.Equal(t, graph.StateFailed, sum.Outcomes[0].Status)
	require.Equal(t, string(errs.KindCancelled), sum.Outcomes[0].Error.Kind)
}
