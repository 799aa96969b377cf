// Package summary implements the engine's run summary: the per-task
// terminal outcomes and run-level rollups reported when a run completes.
package summary

import (
	"encoding/json"
	"os"
	"time"

	"workflowctl/internal/graph"
	"workflowctl/internal/value"
)

// ErrorDescriptor is TaskOutcome's optional error payload (kind + message).
type ErrorDescriptor struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TaskOutcome is the per-task terminal record of one run.
type TaskOutcome struct {
	TaskID    string           `json:"task_id"`
	Status    graph.TaskState  `json:"status"`
	Attempts  int              `json:"attempts"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	WallTime  time.Duration    `json:"wall_time_ns"`
	Cached    bool             `json:"cached"`
	Result    *value.Value     `json:"result,omitempty"`
	Error     *ErrorDescriptor `json:"error,omitempty"`
	SkipCause string           `json:"skip_cause,omitempty"`
}

// RunSummary is the engine's emitted run-completion value.
type RunSummary struct {
	WorkflowName string        `json:"workflow_name"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Outcomes     []TaskOutcome `json:"outcomes"`
}

// CountsByStatus tallies outcomes per terminal status.
func (s RunSummary) CountsByStatus() map[graph.TaskState]int {
	counts := make(map[graph.TaskState]int)
	for _, o := range s.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// TotalAttempts sums Attempts across every outcome.
func (s RunSummary) TotalAttempts() int {
	total := 0
	for _, o := range s.Outcomes {
		total += o.Attempts
	}
	return total
}

// TotalRetried counts outcomes that needed more than one attempt.
func (s RunSummary) TotalRetried() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Attempts > 1 {
			n++
		}
	}
	return n
}

// TotalCacheHits counts outcomes served from cache.
func (s RunSummary) TotalCacheHits() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Cached {
			n++
		}
	}
	return n
}

// LongestTask returns the task id with the greatest wall time, or "" if
// there are no outcomes.
func (s RunSummary) LongestTask() string {
	var longestID string
	var longest time.Duration
	for _, o := range s.Outcomes {
		if o.WallTime > longest {
			longest = o.WallTime
			longestID = o.TaskID
		}
	}
	return longestID
}

// CriticalPathDuration returns the longest root-to-leaf sum of successful
// task wall-times over wf's DAG structure.
func (s RunSummary) CriticalPathDuration(wf *graph.Workflow) time.Duration {
	wallByID := make(map[string]time.Duration, len(s.Outcomes))
	for _, o := range s.Outcomes {
		if o.Status == graph.StateSucceeded {
			wallByID[o.TaskID] = o.WallTime
		}
	}

	memo := make(map[string]time.Duration)
	var longestTo func(id string) time.Duration
	longestTo = func(id string) time.Duration {
		if d, ok := memo[id]; ok {
			return d
		}
		own, ok := wallByID[id]
		if !ok {
			memo[id] = 0
			return 0
		}
		best := time.Duration(0)
		for _, dep := range wf.Tasks[id].Deps {
			if d := longestTo(dep); d > best {
				best = d
			}
		}
		total := own + best
		memo[id] = total
		return total
	}

	var max time.Duration
	for id := range wf.Tasks {
		if d := longestTo(id); d > max {
			max = d
		}
	}
	return max
}

// WriteJSON serializes s as indented JSON to path, for `--summary-json`.
func (s RunSummary) WriteJSON(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
