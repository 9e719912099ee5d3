package dagexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTask struct {
	id   string
	deps []string
}

func (t fakeTask) ID() string     { return t.id }
func (t fakeTask) Deps() []string { return t.deps }

func TestExecutionPlan_TopologicalOrder(t *testing.T) {
	tasks := []Task{
		fakeTask{id: "build", deps: []string{"clean"}},
		fakeTask{id: "clean"},
		fakeTask{id: "test", deps: []string{"build"}},
	}

	plan := ExecutionPlan(tasks)
	require.NoError(t, plan.Err())

	pos := indexOf(plan.Order)
	assert.Less(t, pos["clean"], pos["build"])
	assert.Less(t, pos["build"], pos["test"])
}

func TestExecutionPlan_CyclesSurfaced(t *testing.T) {
	tasks := []Task{
		fakeTask{id: "A", deps: []string{"B"}},
		fakeTask{id: "B", deps: []string{"A"}},
	}

	plan := ExecutionPlan(tasks)
	require.Error(t, plan.Err())
	require.Len(t, plan.Cycles, 1)
	assert.ElementsMatch(t, []string{"A", "B"}, plan.Cycles[0])
}

func TestExecutionSubplan_TransitiveClosure(t *testing.T) {
	tasks := []Task{
		fakeTask{id: "A"},
		fakeTask{id: "B", deps: []string{"A"}},
		fakeTask{id: "C", deps: []string{"B"}},
		fakeTask{id: "D"},
	}

	plan := ExecutionPlan(tasks)
	require.NoError(t, plan.Err())

	sub := ExecutionSubplan(plan, []string{"C"})

	assert.ElementsMatch(t, []string{"A", "B", "C"}, sub.Order)
}

func TestExecuteDAG_SkipPropagation(t *testing.T) {
	tasks := []Task{
		fakeTask{id: "A"},
		fakeTask{id: "B", deps: []string{"A"}},
		fakeTask{id: "C", deps: []string{"B"}},
	}

	plan := ExecutionPlan(tasks)
	require.NoError(t, plan.Err())

	runTask := func(ctx context.Context, rc *RunContext, taskID string) (TaskResult, error) {
		if taskID == "A" {
			return TaskResult{Status: StatusFail}, nil
		}

		return TaskResult{Status: StatusOK}, nil
	}

	summary := ExecuteDAG(context.Background(), plan, runTask, ExecuteOptions{})

	assert.Equal(t, StatusFail, summary.Results["A"].Status)
	assert.Equal(t, StatusSkipped, summary.Results["B"].Status)
	assert.Equal(t, StatusSkipped, summary.Results["C"].Status)
}

func TestExecuteDAG_TopologicalSoundness(t *testing.T) {
	tasks := []Task{
		fakeTask{id: "A"},
		fakeTask{id: "B", deps: []string{"A"}},
	}

	plan := ExecutionPlan(tasks)
	require.NoError(t, plan.Err())

	var executed []string
	runTask := func(ctx context.Context, rc *RunContext, taskID string) (TaskResult, error) {
		executed = append(executed, taskID)

		return TaskResult{Status: StatusOK}, nil
	}

	ExecuteDAG(context.Background(), plan, runTask, ExecuteOptions{})

	require.Equal(t, []string{"A", "B"}, executed)
}

type recordingObserver struct {
	events []Event
}

func (o *recordingObserver) Name() string           { return "recorder" }
func (o *recordingObserver) Filter() EventFilter     { return nil }
func (o *recordingObserver) OnEvent(ctx context.Context, e Event) error {
	o.events = append(o.events, e)

	return nil
}

func TestExecuteDAG_EventOrdering(t *testing.T) {
	tasks := []Task{fakeTask{id: "A"}}
	plan := ExecutionPlan(tasks)
	require.NoError(t, plan.Err())

	rec := &recordingObserver{}
	bus := NewEventBus()
	bus.Register(rec)

	runTask := func(ctx context.Context, rc *RunContext, taskID string) (TaskResult, error) {
		return TaskResult{Status: StatusOK}, nil
	}

	ExecuteDAG(context.Background(), plan, runTask, ExecuteOptions{EventBus: bus})

	require.Len(t, rec.events, 4)
	assert.Equal(t, EventDAGStart, rec.events[0].Type)
	assert.Equal(t, EventTaskStart, rec.events[1].Type)
	assert.Equal(t, EventTaskOK, rec.events[2].Type)
	assert.Equal(t, EventDAGEnd, rec.events[3].Type)
}

func indexOf(order []string) map[string]int {
	m := make(map[string]int, len(order))
	for i, id := range order {
		m[id] = i
	}

	return m
}
