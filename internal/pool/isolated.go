package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sync/semaphore"

	"workflowctl/internal/errs"
	"workflowctl/internal/value"
)

// WorkerEnvVar is set by the isolated pool on each child process it
// spawns, naming the function_ref to run; cmd/workflowctl checks for it at
// startup to enter worker mode instead of the normal CLI.
const WorkerEnvVar = "WORKFLOWCTL_WORKER_FN"

// WireRequest/WireResponse are the canonical-JSON envelopes crossing the
// address-space boundary between the Scheduler's process and an isolated
// worker, serialized via the same canonical form the cache uses for
// stored results.
type WireRequest struct {
	Args []any `json:"args"`
}

type WireResponse struct {
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// IsolatedPool is the "isolated workers" variant of the executor pool:
// each submission runs in a fresh child process (no shared mutable state
// with the Scheduler), suited to CPU-bound tasks that want true
// parallelism past a host-runtime global execution lock.
type IsolatedPool struct {
	sem     *semaphore.Weighted
	results chan Result

	mu    sync.Mutex
	procs map[string]*exec.Cmd
	wg    sync.WaitGroup

	ctx       context.Context
	cancelAll context.CancelFunc

	// executable is the binary re-invoked for each worker; overridable in
	// tests.
	executable string
}

// NewIsolated returns an IsolatedPool with at most `concurrency` child
// processes running at once.
func NewIsolated(concurrency int) (*IsolatedPool, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("pool: resolving self executable: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IsolatedPool{
		sem:        semaphore.NewWeighted(int64(concurrency)),
		results:    make(chan Result, concurrency),
		procs:      make(map[string]*exec.Cmd),
		ctx:        ctx,
		cancelAll:  cancel,
		executable: exe,
	}, nil
}

func (p *IsolatedPool) Results() <-chan Result { return p.results }

func (p *IsolatedPool) Submit(job Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.results <- Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindCancelled, Msg: "pool shut down before dispatch"}}
			return
		}
		defer p.sem.Release(1)

		p.results <- p.runChild(job)
	}()
}

func (p *IsolatedPool) runChild(job Job) Result {
	ctx := p.ctx
	cancel := func() {}
	if job.Timeout != nil {
		ctx, cancel = context.WithTimeout(p.ctx, *job.Timeout)
	} else {
		ctx, cancel = context.WithCancel(p.ctx)
	}
	defer cancel()

	reqArgs := make([]any, len(job.Args))
	for i, a := range job.Args {
		reqArgs[i] = a.ToAny()
	}
	reqBytes, err := json.Marshal(WireRequest{Args: reqArgs})
	if err != nil {
		return Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindInternal, Msg: err.Error()}}
	}

	// fnRef travels through the job's registered function identity, which
	// the Scheduler threads in as job.TaskID's associated function_ref via
	// the WorkerEnvVar set per-command below (see scheduler wiring).
	cmd := exec.CommandContext(ctx, p.executable)
	cmd.Env = append(os.Environ(), WorkerEnvVar+"="+job.fnRef())
	cmd.Stdin = bytes.NewReader(reqBytes)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.mu.Lock()
	p.procs[job.TaskID] = cmd
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.procs, job.TaskID)
		p.mu.Unlock()
	}()

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindTaskTimeout, Msg: "task exceeded its timeout"}}
	}
	if ctx.Err() == context.Canceled && runErr != nil {
		return Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindCancelled, Msg: "task cancelled"}}
	}
	if runErr != nil {
		msg := stderr.String()
		if msg == "" {
			msg = runErr.Error()
		}
		return Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindTaskThrew, Msg: msg}}
	}

	var resp WireResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindTaskThrew, Msg: "worker returned malformed response: " + err.Error()}}
	}
	if resp.Error != "" {
		return Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindTaskThrew, Msg: resp.Error}}
	}
	v, err := value.FromAny(resp.Value)
	if err != nil {
		return Result{TaskID: job.TaskID, Err: &errs.Error{Kind: errs.KindInternal, Msg: err.Error()}}
	}
	return Result{TaskID: job.TaskID, Value: v}
}

// Shutdown waits for in-flight children (graceful) or kills every tracked
// process before waiting (force); cancellation is best-effort for
// isolated pools — Kill races the child's own exit.
func (p *IsolatedPool) Shutdown(graceful bool) {
	if !graceful {
		p.mu.Lock()
		for _, cmd := range p.procs {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}
		p.mu.Unlock()
		p.cancelAll()
	}
	p.wg.Wait()
	close(p.results)
}
