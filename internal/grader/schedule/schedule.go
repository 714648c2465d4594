// Package schedule orders the test cases of one (homework, type) pair by
// their declared predecessor graph and prunes everything downstream of a
// failed test.
package schedule

import (
	"sort"

	"hwjudge/internal/grader/model"
	appErr "hwjudge/pkg/errors"
)

// Graph is the dependency graph over test numbers. Edges run from a
// predecessor to the tests that declared it.
type Graph struct {
	nodes []int
	succ  map[int][]int
	pred  map[int][]int
}

// Build constructs and validates the graph from ingested test cases.
// Dangling predecessor references and cycles are ingestion errors: left
// undetected they would stall the scheduler forever.
func Build(tests []model.TestCase) (*Graph, error) {
	g := &Graph{
		succ: make(map[int][]int, len(tests)),
		pred: make(map[int][]int, len(tests)),
	}
	known := make(map[int]bool, len(tests))
	for _, tc := range tests {
		if known[tc.TestNum] {
			return nil, appErr.Newf(appErr.IngestFailed, "duplicate test number %d", tc.TestNum)
		}
		known[tc.TestNum] = true
		g.nodes = append(g.nodes, tc.TestNum)
	}
	sort.Ints(g.nodes)

	for _, tc := range tests {
		for _, p := range tc.Predecessors {
			if !known[p] {
				return nil, appErr.Newf(appErr.DependencyDangling,
					"test %d declares unknown predecessor %d", tc.TestNum, p)
			}
			if p == tc.TestNum {
				return nil, appErr.Newf(appErr.DependencyCycle, "test %d depends on itself", tc.TestNum)
			}
			g.succ[p] = append(g.succ[p], tc.TestNum)
			g.pred[tc.TestNum] = append(g.pred[tc.TestNum], p)
		}
	}
	for n := range g.succ {
		sort.Ints(g.succ[n])
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// Dependents returns the direct dependents of a test, the derived inverse
// edge set stored on TestCase records at ingestion.
func (g *Graph) Dependents(test int) []int {
	out := make([]int, len(g.succ[test]))
	copy(out, g.succ[test])
	return out
}

// Nodes returns all test numbers in ascending order.
func (g *Graph) Nodes() []int {
	out := make([]int, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// checkAcyclic runs a Kahn pass; any node left unprocessed sits on a cycle.
func (g *Graph) checkAcyclic() error {
	indegree := make(map[int]int, len(g.nodes))
	for _, n := range g.nodes {
		indegree[n] = len(g.pred[n])
	}
	var queue []int
	for _, n := range g.nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	processed := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		processed++
		for _, v := range g.succ[u] {
			indegree[v]--
			if indegree[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
	if processed != len(g.nodes) {
		return appErr.New(appErr.DependencyCycle)
	}
	return nil
}

type nodeState int

const (
	statePending nodeState = iota
	stateScheduled
	statePruned
)

// Scheduler releases tests breadth-first as their predecessors pass and
// prunes the transitive dependents of any test that fails. It is driven
// incrementally because results for in-flight tests are not known upfront.
// Not safe for concurrent use; the execute stage serializes access.
type Scheduler struct {
	g        *Graph
	indegree map[int]int
	ready    []int
	state    map[int]nodeState
}

// NewScheduler seeds the ready queue with every in-degree-0 test.
func NewScheduler(g *Graph) *Scheduler {
	s := &Scheduler{
		g:        g,
		indegree: make(map[int]int, len(g.nodes)),
		state:    make(map[int]nodeState, len(g.nodes)),
	}
	for _, n := range g.nodes {
		s.indegree[n] = len(g.pred[n])
		if s.indegree[n] == 0 {
			s.ready = append(s.ready, n)
		}
	}
	sort.Ints(s.ready)
	return s
}

// Next drains the tests that are ready to run, in ascending test number
// order, marking them scheduled. Returns nil when nothing is ready.
func (s *Scheduler) Next() []int {
	if len(s.ready) == 0 {
		return nil
	}
	out := s.ready
	s.ready = nil
	for _, n := range out {
		s.state[n] = stateScheduled
	}
	return out
}

// Complete records the result of a scheduled test. A pass releases direct
// successors whose in-degree drops to zero; a failure prunes every test
// transitively reachable from it and returns the pruned set in ascending
// order. Pruned tests are never handed out by Next.
func (s *Scheduler) Complete(test int, passed bool) (pruned []int) {
	if !passed {
		pruned = s.pruneReachable(test)
		return pruned
	}
	for _, v := range s.g.succ[test] {
		if s.state[v] != statePending {
			continue
		}
		s.indegree[v]--
		if s.indegree[v] == 0 {
			s.ready = append(s.ready, v)
		}
	}
	sort.Ints(s.ready)
	return nil
}

// pruneReachable walks forward edges depth-first from a failed test.
func (s *Scheduler) pruneReachable(from int) []int {
	var pruned []int
	stack := append([]int(nil), s.g.succ[from]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.state[n] != statePending {
			continue
		}
		s.state[n] = statePruned
		pruned = append(pruned, n)
		stack = append(stack, s.g.succ[n]...)
	}
	// Drop pruned nodes that already sat in the ready queue.
	if len(pruned) > 0 {
		kept := s.ready[:0]
		for _, n := range s.ready {
			if s.state[n] == statePending {
				kept = append(kept, n)
			}
		}
		s.ready = kept
	}
	sort.Ints(pruned)
	return pruned
}
