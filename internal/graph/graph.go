package graph

import (
	"container/heap"
	"sort"
	"strings"

	"workflowctl/internal/errs"
)

// Graph is the mutable runtime view over a Workflow, built once at
// workflow construction. It tracks, per task: remaining unsatisfied
// dependency count, the direct dependents list, and the current TaskState.
//
// Graph is exclusively mutated by the Scheduler; every other component
// treats it as read-only.
type Graph struct {
	wf *Workflow

	ids        []string // canonical (lexicographic) order
	index      map[string]int
	dependents [][]int // by index, sorted ascending
	indeg      []int   // original dep count, by index
	remaining  []int   // remaining unsatisfied dep count, by index
	state      []TaskState
}

// New builds and validates a Graph from wf, detecting cycles with Kahn's
// algorithm and extracting a deterministic witness cycle (by DFS over
// lexicographic task order) if one exists.
func New(wf *Workflow) (*Graph, error) {
	ids := wf.SortedIDs()
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	dependents := make([][]int, len(ids))
	indeg := make([]int, len(ids))
	for _, id := range ids {
		t := wf.Tasks[id]
		to := index[id]
		for _, dep := range t.Deps {
			from := index[dep]
			dependents[from] = append(dependents[from], to)
			indeg[to]++
		}
	}
	for i := range dependents {
		sort.Ints(dependents[i])
	}

	g := &Graph{
		wf:         wf,
		ids:        ids,
		index:      index,
		dependents: dependents,
		indeg:      indeg,
		remaining:  append([]int(nil), indeg...),
		state:      make([]TaskState, len(ids)),
	}
	for i := range g.state {
		g.state[i] = StatePending
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) validateAcyclic() error {
	indeg := append([]int(nil), g.indeg...)
	ready := &intMinHeap{}
	heap.Init(ready)
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}
	visited := 0
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		visited++
		for _, v := range g.dependents[u] {
			indeg[v]--
			if indeg[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}
	if visited == len(g.ids) {
		return nil
	}

	witness := g.findCycleWitness()
	msg := "cycle"
	if len(witness) > 0 {
		msg = "cycle: " + strings.Join(witness, " -> ")
	}
	return &errs.Error{Kind: errs.KindCycleError, Msg: msg}
}

// findCycleWitness performs a deterministic DFS over lexicographic task
// order to extract one cycle path naming participating tasks, mirroring
// a standard gray/black DFS witness extraction.
func (g *Graph) findCycleWitness() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(g.ids))
	ancestor := make([]int, len(g.ids))
	for i := range ancestor {
		ancestor[i] = -1
	}

	var backEdge [2]int // {from, to}; -1,-1 until a back-edge is found
	backEdge[0], backEdge[1] = -1, -1

	var visit func(u int) bool
	visit = func(u int) bool {
		color[u] = gray
		for _, next := range g.dependents[u] {
			switch color[next] {
			case white:
				ancestor[next] = u
				if visit(next) {
					return true
				}
			case gray:
				backEdge[0], backEdge[1] = u, next
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range g.ids {
		if color[i] == white && visit(i) {
			break
		}
	}
	if backEdge[1] == -1 {
		return nil
	}

	// Walk the parent chain from the back-edge's source back up to its
	// target, then lay the witness out head (target) to tail (source).
	path := []int{backEdge[1]}
	for cur := backEdge[0]; cur != -1 && cur != backEdge[1]; cur = ancestor[cur] {
		path = append(path, cur)
	}
	path = append(path, backEdge[1])

	out := make([]string, len(path))
	for i, idx := range path {
		out[len(path)-1-i] = g.ids[idx]
	}
	return out
}

// InitialReady returns the ids with zero deps, in canonical lexicographic
// order.
func (g *Graph) InitialReady() []string {
	out := make([]string, 0)
	for i, id := range g.ids {
		if g.remaining[i] == 0 {
			g.state[i] = StateReady
			out = append(out, id)
		}
	}
	return out
}

// State returns the current TaskState for id.
func (g *Graph) State(id string) TaskState {
	return g.state[g.index[id]]
}

// SetState forcibly sets a task's state; used by the Scheduler for
// dispatch (ready->running) and terminal transitions it decides on its own
// (e.g. retry exhaustion, cancellation) outside the mark* helpers below.
func (g *Graph) SetState(id string, s TaskState) {
	g.state[g.index[id]] = s
}

// MarkSucceeded transitions id to succeeded and returns the ids newly made
// ready (those whose remaining dep count drops to zero), in ascending
// lexicographic order, the engine's ascending tie-break rule.
func (g *Graph) MarkSucceeded(id string) []string {
	u := g.index[id]
	g.state[u] = StateSucceeded

	var newlyReady []int
	for _, v := range g.dependents[u] {
		g.remaining[v]--
		if g.remaining[v] == 0 && g.state[v] == StatePending {
			newlyReady = append(newlyReady, v)
		}
	}
	sort.Ints(newlyReady)

	out := make([]string, len(newlyReady))
	for i, idx := range newlyReady {
		g.state[idx] = StateReady
		out[i] = g.ids[idx]
	}
	return out
}

// MarkTerminalNonSuccess transitively marks every descendant of id
// `skipped`, returning the affected ids in deterministic (min-heap over
// index) order alongside id itself as the skip-cause to record on each.
//
// id itself must already have been set to a terminal non-success state
// (failed) by the caller; this only propagates to descendants.
func (g *Graph) MarkTerminalNonSuccess(id string) (skipped []string, cause string) {
	start := g.index[id]
	visited := make([]bool, len(g.ids))
	visited[start] = true

	hq := &intMinHeap{}
	heap.Init(hq)
	for _, d := range g.dependents[start] {
		heap.Push(hq, d)
	}

	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		if g.state[u] == StatePending || g.state[u] == StateReady {
			g.state[u] = StateSkipped
			skipped = append(skipped, g.ids[u])
		}

		for _, v := range g.dependents[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}
	return skipped, id
}

// AllTerminal reports whether every task has reached a terminal state.
func (g *Graph) AllTerminal() bool {
	for _, s := range g.state {
		if !IsTerminal(s) {
			return false
		}
	}
	return true
}

// Task returns the TaskSpec for id.
func (g *Graph) Task(id string) TaskSpec { return g.wf.Tasks[id] }

// Workflow returns the underlying read-only Workflow.
func (g *Graph) Workflow() *Workflow { return g.wf }

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
