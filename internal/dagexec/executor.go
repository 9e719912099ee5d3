package dagexec

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Status is a completed task's terminal state.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
)

// TaskResult is one task's outcome within a run.
type TaskResult struct {
	Status Status
	Error  error
	Cause  string // populated when Status is StatusSkipped
	Output any
}

// RunContext carries per-run state across tasks: a run id and
// whatever accumulated state runTask chooses to stash (spec §4.7).
type RunContext struct {
	RunID string
	State map[string]any
}

// RunTask executes a single task and reports its outcome. Returning a
// non-nil error is equivalent to TaskResult{Status: StatusFail,
// Error: err}.
type RunTask func(ctx context.Context, rc *RunContext, taskID string) (TaskResult, error)

// Summary is executeDAG's return value: per-task status plus outputs.
type Summary struct {
	Results map[string]TaskResult
	Order   []string
}

// ExecuteOptions configures one run.
type ExecuteOptions struct {
	EventBus *EventBus
	RunID    string
}

// ExecuteDAG runs plan's tasks strictly in topological order, single-
// threaded and cooperative (spec §5): no task starts before every
// dependency has finished with StatusOK, and any task downstream of a
// non-OK dependency is skipped rather than run.
func ExecuteDAG(ctx context.Context, plan *Plan, runTask RunTask, opts ExecuteOptions) Summary {
	bus := opts.EventBus
	if bus == nil {
		bus = NewEventBus()
	}

	rc := &RunContext{RunID: opts.RunID, State: make(map[string]any)}

	results := make(map[string]TaskResult, len(plan.Order))

	bus.Emit(ctx, Event{Type: EventDAGStart})

	for _, taskID := range plan.Order {
		if cause, skip := firstFailedDep(plan, taskID, results); skip {
			results[taskID] = TaskResult{Status: StatusSkipped, Cause: cause}
			bus.Emit(ctx, Event{Type: EventTaskSkip, TaskID: taskID, Cause: cause})

			continue
		}

		bus.Emit(ctx, Event{Type: EventTaskStart, TaskID: taskID})

		result, err := runTask(ctx, rc, taskID)
		if err != nil {
			result = TaskResult{Status: StatusFail, Error: err}
		}

		results[taskID] = result

		switch result.Status {
		case StatusOK:
			bus.Emit(ctx, Event{Type: EventTaskOK, TaskID: taskID, Data: result.Output})
		case StatusFail:
			bus.Emit(ctx, Event{Type: EventTaskFail, TaskID: taskID, Error: result.Error})
		case StatusSkipped:
			bus.Emit(ctx, Event{Type: EventTaskSkip, TaskID: taskID, Cause: result.Cause})
		default:
			log.Warn().Str("task", taskID).Str("status", string(result.Status)).Msg("unrecognized task status, treating as failed")
			result.Status = StatusFail
			results[taskID] = result
			bus.Emit(ctx, Event{Type: EventTaskFail, TaskID: taskID, Error: result.Error})
		}
	}

	bus.Emit(ctx, Event{Type: EventDAGEnd, Data: results})

	return Summary{Results: results, Order: plan.Order}
}

// firstFailedDep reports whether taskID has a dependency that did not
// finish StatusOK, and if so, which one (spec §4.7 skip propagation).
func firstFailedDep(plan *Plan, taskID string, results map[string]TaskResult) (string, bool) {
	t, ok := plan.byID[taskID]
	if !ok {
		return "", false
	}

	for _, dep := range t.Deps() {
		r, ran := results[dep]
		if !ran || r.Status != StatusOK {
			return dep, true
		}
	}

	return "", false
}
