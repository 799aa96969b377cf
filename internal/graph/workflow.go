package graph

import (
	"sort"

	"workflowctl/internal/errs"
)

// NewWorkflow validates and assembles a Workflow from a flat task list,
// enforcing two invariants: no duplicate ids, and every dep references an
// existing id. Cycle detection is deliberately not done here — it is the
// Graph's responsibility and reported as CycleError rather than
// SchemaError.
func NewWorkflow(name string, tasks []TaskSpec) (*Workflow, error) {
	byID := make(map[string]TaskSpec, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return nil, errs.Schema("tasks[].id", "task id must not be empty")
		}
		if _, dup := byID[t.ID]; dup {
			return nil, errs.Schema("tasks[]", "duplicate task id %q", t.ID)
		}
		byID[t.ID] = t
	}

	for _, t := range tasks {
		for _, d := range t.Deps {
			if _, ok := byID[d]; !ok {
				return nil, errs.Schema("tasks["+t.ID+"].deps", "task %q declares unknown dependency %q", t.ID, d)
			}
		}
	}

	return &Workflow{Name: name, Tasks: byID}, nil
}

// SortedIDs returns every task id in lexicographic order, the canonical
// enumeration order used wherever an ascending task-id tie-break applies.
func (w *Workflow) SortedIDs() []string {
	ids := make([]string, 0, len(w.Tasks))
	for id := range w.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
