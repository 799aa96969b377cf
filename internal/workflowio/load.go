// Package workflowio implements the workflow description loader: the
// external collaborator that turns a JSON file on disk into a verified
// workflow value, kept separate from the engine's core scheduling logic.
package workflowio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"workflowctl/internal/errs"
	"workflowctl/internal/graph"
	"workflowctl/internal/value"
)

// taskSpecJSON mirrors the on-disk TaskSpec shape.
type taskSpecJSON struct {
	ID        string   `json:"id"`
	Fn        string   `json:"fn"`
	Args      []any    `json:"args"`
	Deps      []string `json:"deps"`
	Retries   *int     `json:"retries"`
	Timeout   *float64 `json:"timeout"`
	Tags      []string `json:"tags"`
	Cacheable *bool    `json:"cacheable"`
}

type workflowJSON struct {
	Name  string         `json:"name"`
	Tasks []taskSpecJSON `json:"tasks"`
}

// Load reads and validates the workflow description at path, using a
// strict-decode discipline (reject unknown fields, reject trailing data)
// so malformed input is always a SchemaError rather than a
// silently-ignored field or a late-surfacing panic.
func Load(path string) (*graph.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Schema(path, "reading workflow file: %v", err)
	}
	return Parse(data)
}

// Parse validates and decodes raw workflow JSON bytes into a graph.Workflow.
func Parse(data []byte) (*graph.Workflow, error) {
	var wf workflowJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wf); err != nil {
		return nil, errs.Schema("", "parsing workflow json: %v", err)
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return nil, errs.Schema("", "trailing data after workflow json")
		}
		return nil, errs.Schema("", "parsing workflow json: %v", err)
	}

	if wf.Name == "" {
		return nil, errs.Schema("name", "workflow name is required")
	}
	if len(wf.Tasks) == 0 {
		return nil, errs.Schema("tasks", "workflow must declare at least one task")
	}

	specs := make([]graph.TaskSpec, 0, len(wf.Tasks))
	for i, t := range wf.Tasks {
		spec, err := toTaskSpec(i, t)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	return graph.NewWorkflow(wf.Name, specs)
}

func toTaskSpec(i int, t taskSpecJSON) (graph.TaskSpec, error) {
	path := fmt.Sprintf("tasks[%d]", i)
	if t.ID == "" {
		return graph.TaskSpec{}, errs.Schema(path+".id", "task id is required")
	}
	if t.Fn == "" {
		return graph.TaskSpec{}, errs.Schema(path+".fn", "task %q: fn is required", t.ID)
	}

	args := make([]value.Value, 0, len(t.Args))
	for j, a := range t.Args {
		v, err := value.FromAny(a)
		if err != nil {
			return graph.TaskSpec{}, errs.Schema(fmt.Sprintf("%s.args[%d]", path, j), "task %q: %v", t.ID, err)
		}
		args = append(args, v)
	}

	deps := t.Deps
	if deps == nil {
		deps = []string{}
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}

	retries := 0
	if t.Retries != nil {
		if *t.Retries < 0 {
			return graph.TaskSpec{}, errs.Schema(path+".retries", "task %q: retries must be non-negative", t.ID)
		}
		retries = *t.Retries
	}

	var timeout *time.Duration
	if t.Timeout != nil {
		if *t.Timeout <= 0 {
			return graph.TaskSpec{}, errs.Schema(path+".timeout", "task %q: timeout must be positive", t.ID)
		}
		d := time.Duration(*t.Timeout * float64(time.Second))
		timeout = &d
	}

	cacheable := true
	if t.Cacheable != nil {
		cacheable = *t.Cacheable
	}

	return graph.TaskSpec{
		ID:          t.ID,
		FunctionRef: t.Fn,
		Args:        args,
		Deps:        deps,
		Retries:     retries,
		Timeout:     timeout,
		Tags:        tags,
		Cacheable:   cacheable,
	}, nil
}
