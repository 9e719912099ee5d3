// Package dagexec implements the DAG Planner & Executor (spec C7):
// topological scheduling, an event bus, and single-threaded
// cooperative execution of a task graph.
package dagexec

import (
	"github.com/connerohnesorge/spry/internal/deps"
	"github.com/connerohnesorge/spry/internal/errs"
)

// Task is a schedulable unit: an id and its explicit dependency ids.
type Task interface {
	ID() string
	Deps() []string
}

// Plan is a topologically ordered execution plan (spec §4.7).
type Plan struct {
	Order  []string
	Cycles [][]string
	byID   map[string]Task
}

// ExecutionPlan builds a topological order over tasks via Kahn's
// algorithm. If cycles exist, Order holds only the tasks outside any
// cycle (the "empty topo prefix" case is simply an Order of length 0
// when every task participates in a cycle) and Cycles lists the
// offending sets.
func ExecutionPlan(tasks []Task) *Plan {
	byID := make(map[string]Task, len(tasks))
	indegree := make(map[string]int, len(tasks))

	for _, t := range tasks {
		byID[t.ID()] = t
		if _, ok := indegree[t.ID()]; !ok {
			indegree[t.ID()] = 0
		}
	}

	dependents := make(map[string][]string)
	for _, t := range tasks {
		for _, d := range t.Deps() {
			indegree[t.ID()]++
			dependents[d] = append(dependents[d], t.ID())
		}
	}

	var queue []string
	for _, t := range tasks {
		if indegree[t.ID()] == 0 {
			queue = append(queue, t.ID())
		}
	}

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	plan := &Plan{Order: order, byID: byID}

	if len(order) != len(tasks) {
		getExplicit := func(id string) []string {
			if t, ok := byID[id]; ok {
				return t.Deps()
			}

			return nil
		}

		allIDs := make([]string, 0, len(tasks))
		for _, t := range tasks {
			allIDs = append(allIDs, t.ID())
		}

		plan.Cycles = deps.DetectCycles(allIDs, getExplicit)
	}

	return plan
}

// Err surfaces plan.Cycles as an *errs.CycleError, or nil if the plan
// is acyclic.
func (p *Plan) Err() error {
	if len(p.Cycles) == 0 {
		return nil
	}

	return &errs.CycleError{Cycles: p.Cycles}
}

// ExecutionSubplan restricts plan to the transitive closure of
// seedIDs (every seed plus everything it (transitively) depends on),
// preserving topo order.
func ExecutionSubplan(plan *Plan, seedIDs []string) *Plan {
	include := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if include[id] {
			return
		}

		include[id] = true

		if t, ok := plan.byID[id]; ok {
			for _, d := range t.Deps() {
				mark(d)
			}
		}
	}

	for _, id := range seedIDs {
		mark(id)
	}

	var order []string
	for _, id := range plan.Order {
		if include[id] {
			order = append(order, id)
		}
	}

	return &Plan{Order: order, byID: plan.byID}
}

