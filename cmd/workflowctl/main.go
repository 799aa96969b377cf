package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"workflowctl/internal/cliapp"
	"workflowctl/internal/pool"
	"workflowctl/internal/registry"
	"workflowctl/internal/registry/builtins"
	"workflowctl/internal/value"
)

// main is a deterministic boundary: before running the normal CLI it checks
// for pool.WorkerEnvVar, which the isolated executor sets on every child
// process it spawns (re-invoking this same binary) instead of shipping a
// closure across the process boundary.
func main() {
	if fnRef := os.Getenv(pool.WorkerEnvVar); fnRef != "" {
		os.Exit(runWorker(fnRef))
	}

	root := cliapp.NewRootCmd()
	err := root.ExecuteContext(context.Background())
	os.Exit(cliapp.ExitCode(err))
}

// runWorker is the isolated-pool child entrypoint: it resolves fnRef against
// the same builtin registry the main process seeds, decodes a WireRequest
// from stdin, and writes a WireResponse to stdout. Only registry entries
// available at process start (the builtins) are reachable this way; a
// function registered dynamically by the parent process after startup has
// no counterpart in the child.
func runWorker(fnRef string) int {
	reg := registry.New()
	builtins.Register(reg)

	fn, err := reg.Resolve(fnRef)
	if err != nil {
		writeWorkerError(err.Error())
		return 1
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		writeWorkerError(fmt.Sprintf("reading request: %v", err))
		return 1
	}
	var req pool.WireRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeWorkerError(fmt.Sprintf("decoding request: %v", err))
		return 1
	}

	args := make([]value.Value, len(req.Args))
	for i, a := range req.Args {
		v, err := value.FromAny(a)
		if err != nil {
			writeWorkerError(fmt.Sprintf("decoding arg %d: %v", i, err))
			return 1
		}
		args[i] = v
	}

	result, err := fn(context.Background(), args)
	if err != nil {
		writeWorkerError(err.Error())
		return 1
	}

	return writeWorkerResult(result)
}

func writeWorkerError(msg string) {
	resp := pool.WireResponse{Error: msg}
	b, _ := json.Marshal(resp)
	os.Stdout.Write(b)
}

func writeWorkerResult(v value.Value) int {
	resp := pool.WireResponse{Value: v.ToAny()}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		writeWorkerError(fmt.Sprintf("encoding response: %v", err))
		return 1
	}
	os.Stdout.Write(buf.Bytes())
	return 0
}
