// Package cliapp wires a cobra/viper CLI surface onto the Scheduler: a
// single verb-based cobra command with viper-bound flags.
package cliapp

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"workflowctl/internal/cache"
	"workflowctl/internal/config"
	"workflowctl/internal/graph"
	"workflowctl/internal/logging"
	"workflowctl/internal/metrics"
	"workflowctl/internal/pool"
	"workflowctl/internal/registry"
	"workflowctl/internal/registry/builtins"
	"workflowctl/internal/scheduler"
	"workflowctl/internal/summary"
	"workflowctl/internal/trace"
	"workflowctl/internal/workflowio"
)

// Exit codes for `workflowctl run`.
const (
	ExitSuccess       = 0
	ExitTaskFailure   = 1
	ExitSchemaOrCycle = 2
	ExitInternal      = 3
)

// NewRootCmd builds the `workflowctl` root command with its single `run`
// verb.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "workflowctl",
		Short:         "Executes a declarative DAG of tasks with retries, caching, and bounded concurrency.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <workflow.json>",
		Short: "Run a workflow to completion.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v.Set("workflow", args[0])
			return runWorkflow(cmd.Context(), v)
		},
	}

	flags := runCmd.Flags()
	flags.Int("max-workers", runtime.NumCPU(), "global concurrency cap")
	flags.String("executor", "thread", `executor pool: "thread" (shared, in-process) or "process" (isolated, child-per-task)`)
	flags.String("tag-limits", "", "comma-separated tag=N concurrency caps, e.g. gpu=2,network=4")
	flags.String("cache-dir", "", "result cache directory; absent disables the cache")
	flags.String("summary-json", "", "write the run summary as JSON to this path")
	flags.String("trace-json", "", "write the execution trace as JSON to this path")
	flags.Float64("timeout", 0, "overall run timeout in seconds; 0 means unbounded")
	flags.String("log-level", "info", "trace|debug|info|warn|error")
	flags.String("metrics-addr", "", "address to serve Prometheus /metrics on; absent disables it")

	for _, name := range []string{"max-workers", "executor", "tag-limits", "cache-dir", "summary-json", "trace-json", "timeout", "log-level", "metrics-addr"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(runCmd)
	return root
}

func runWorkflow(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return exitErr{code: ExitInvalidConfig(), err: err}
	}

	log := logging.NewSink(logging.New(logging.Config{Level: logging.Level(cfg.LogLevel)}))

	met := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := met.Serve(cfg.MetricsAddr); err != nil {
				log.Warn(logging.EventRunStart, logging.Fields{ErrorMsg: fmt.Sprintf("metrics server: %v", err)})
			}
		}()
	}

	wf, err := workflowio.Load(cfg.WorkflowPath)
	if err != nil {
		return exitErr{code: ExitSchemaOrCycle, err: err}
	}

	var c cache.Cache = cache.Disabled{}
	if cfg.CacheDir != "" {
		dc, err := cache.New(cfg.CacheDir)
		if err != nil {
			return exitErr{code: ExitInternal, err: err}
		}
		c = dc
	}

	reg := registry.New()
	builtins.Register(reg)

	var execPool pool.Pool
	switch cfg.Executor {
	case "process":
		ip, err := pool.NewIsolated(cfg.MaxWorkers)
		if err != nil {
			return exitErr{code: ExitInternal, err: err}
		}
		execPool = ip
	default:
		execPool = pool.NewShared(cfg.MaxWorkers)
	}

	recorder := trace.NewRecorder()
	runID := uuid.NewString()

	sched, err := scheduler.New(wf, scheduler.Options{
		Limits:   scheduler.Limits{Global: cfg.MaxWorkers, Tags: cfg.TagLimits},
		Pool:     execPool,
		Cache:    c,
		Registry: reg,
		Log:      log,
		Metrics:  met,
		Trace:    recorder,
		RunID:    runID,
	})
	if err != nil {
		return exitErr{code: ExitSchemaOrCycle, err: err}
	}

	sum, err := sched.Run(ctx, cfg.Timeout)
	if err != nil {
		return exitErr{code: ExitInternal, err: err}
	}

	if cfg.SummaryJSON != "" {
		if err := sum.WriteJSON(cfg.SummaryJSON); err != nil {
			return exitErr{code: ExitInternal, err: err}
		}
	}
	if cfg.TraceJSON != "" {
		tr := recorder.Trace(runID)
		data, err := tr.CanonicalJSON()
		if err != nil {
			return exitErr{code: ExitInternal, err: err}
		}
		if err := os.WriteFile(cfg.TraceJSON, data, 0644); err != nil {
			return exitErr{code: ExitInternal, err: err}
		}
	}

	return exitErr{code: exitCodeFor(sum), err: nil}
}

func exitCodeFor(sum *summary.RunSummary) int {
	counts := sum.CountsByStatus()
	if counts[graph.StateFailed] > 0 || counts[graph.StateSkipped] > 0 {
		return ExitTaskFailure
	}
	return ExitSuccess
}

func ExitInvalidConfig() int { return ExitSchemaOrCycle }

// exitErr carries a process exit code alongside an optional diagnostic
// error, so main can translate it without re-deriving the code from the
// error's shape.
type exitErr struct {
	code int
	err  error
}

func (e exitErr) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

// ExitCode extracts the process exit code carried by err. A bare error not
// produced by this package (a cobra usage error: unknown flag, wrong arg
// count) is treated as an invocation problem, the same class as a schema
// error, rather than an internal engine fault.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if ee, ok := err.(exitErr); ok {
		return ee.code
	}
	return ExitSchemaOrCycle
}
