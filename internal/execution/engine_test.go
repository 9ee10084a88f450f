package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/status"
	"github.com/vibeflow/taskvibe/internal/todo"
	"github.com/vibeflow/taskvibe/internal/validation"
)

// fakeStore keeps tasks in memory and can fail chosen writes.
type fakeStore struct {
	mu        sync.Mutex
	tasks     map[string]*model.Task
	failRefs  map[string]error
	statusErr error
	writes    []string
	onWrite   func(n int)
}

func newFakeStore(tasks ...*model.Task) *fakeStore {
	s := &fakeStore{tasks: map[string]*model.Task{}, failRefs: map[string]error{}}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *fakeStore) FetchTask(_ context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: model.NotFoundTask, ID: id}
	}
	cp := *t
	cp.Sections = todo.Clone(t.Sections)
	return &cp, nil
}

func (s *fakeStore) SetTodoCompleted(_ context.Context, id string, ref model.TodoRef, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, ref.String())
	if s.onWrite != nil {
		s.onWrite(len(s.writes))
	}
	if err, ok := s.failRefs[ref.String()]; ok {
		return err
	}
	t, ok := s.tasks[id]
	if !ok {
		return &model.NotFoundError{Kind: model.NotFoundTask, ID: id}
	}
	return todo.SetCompleted(t.Sections, ref, completed)
}

func (s *fakeStore) SetTaskStatus(_ context.Context, id string, st model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return s.statusErr
	}
	s.tasks[id].Status = st
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	steps    int
	statuses []string
	finished []*model.ExecutionResult
}

func (o *recordingObserver) StepRecorded(string, model.ProgressionStep) {
	o.mu.Lock()
	o.steps++
	o.mu.Unlock()
}

func (o *recordingObserver) StatusChanged(_ string, from, to model.Status) {
	o.mu.Lock()
	o.statuses = append(o.statuses, string(from)+"→"+string(to))
	o.mu.Unlock()
}

func (o *recordingObserver) ExecutionFinished(r *model.ExecutionResult, _ time.Duration) {
	o.mu.Lock()
	o.finished = append(o.finished, r)
	o.mu.Unlock()
}

func workflow() *model.WorkflowConfig {
	return &model.WorkflowConfig{
		Statuses:      []model.Status{"todo", "in_progress", "done"},
		DefaultStatus: "todo",
		Transitions: map[model.Status][]model.Status{
			"todo":        {"in_progress"},
			"in_progress": {"done"},
		},
		Thresholds: []model.Threshold{{Min: 100, Status: "done"}, {Min: 1, Status: "in_progress"}},
		Templates:  map[string]string{"feature": ""},
	}
}

func newEngine(t *testing.T, store TaskStore, policy model.Policy, opts ...Option) *Engine {
	t.Helper()
	cfg := workflow()
	cfg.Policy = policy
	st, err := status.New(cfg)
	require.NoError(t, err)
	return New(store, st, validation.New(cfg, st), todo.NewStatsEngine(policy), policy, opts...)
}

func twoSectionTask() *model.Task {
	return &model.Task{ID: "task_1", Status: "in_progress", Sections: []model.Section{
		{Name: "Design", Todos: []model.Todo{{Text: "a"}, {Text: "b"}, {Text: "c"}}},
		{Name: "Build", Todos: []model.Todo{{Text: "d"}, {Text: "e"}}},
	}}
}

func stepKinds(steps []model.ProgressionStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		if s.Type == model.StepSection {
			out[i] = "section:" + s.SectionName
		} else {
			out[i] = "todo:" + s.TodoText
		}
	}
	return out
}

func TestExecute_AutoTwoSections(t *testing.T) {
	store := newFakeStore(twoSectionTask())
	obs := &recordingObserver{}
	e := newEngine(t, store, model.Policy{}, WithObserver(obs))

	res, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, model.StateCompleted, res.State)
	assert.Equal(t, 100, res.FinalStats.Percentage)
	assert.Equal(t, []string{
		"todo:a", "todo:b", "todo:c", "section:Design",
		"todo:d", "todo:e", "section:Build",
	}, stepKinds(res.Progression))
	assert.Equal(t, 5, res.TodosCompleted)
	assert.Equal(t, 2, res.SectionsProcessed)
	assert.NoError(t, res.Err())

	require.NotNil(t, res.StatusUpdate)
	assert.True(t, res.StatusUpdate.Applied)
	assert.Equal(t, model.Status("done"), store.tasks["task_1"].Status)
	assert.Equal(t, []string{"in_progress→done"}, obs.statuses)
	assert.Equal(t, 7, obs.steps)
	require.Len(t, obs.finished, 1)
}

func TestExecute_Idempotent(t *testing.T) {
	store := newFakeStore(twoSectionTask())
	e := newEngine(t, store, model.Policy{})

	first, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	second, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)

	assert.Empty(t, second.Progression)
	assert.Equal(t, first.FinalStats, second.FinalStats)
	assert.True(t, second.Success)
	assert.Equal(t, model.StateCompleted, second.State)
	assert.Len(t, store.writes, 5)
}

func TestExecute_NestedDocumentOrder(t *testing.T) {
	task := &model.Task{ID: "task_1", Status: "todo", Sections: []model.Section{
		{Name: "S", Todos: []model.Todo{
			{Text: "p", Children: []model.Todo{{Text: "p1", Completed: true}, {Text: "p2"}}},
			{Text: "q"},
		}},
		{Name: "Done", Todos: []model.Todo{{Text: "z", Completed: true}}},
	}}
	store := newFakeStore(task)
	e := newEngine(t, store, model.Policy{})

	res, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	assert.Equal(t, []string{"todo:p", "todo:p2", "todo:q", "section:S"}, stepKinds(res.Progression))
	assert.Equal(t, []string{"0:0", "0:0.1", "0:1"}, store.writes)
	assert.Equal(t, 1, res.SectionsProcessed)
}

func TestExecute_FailureRatio(t *testing.T) {
	tests := []struct {
		name    string
		fail    []string
		ratio   float64
		success bool
		state   model.ExecutionState
	}{
		{"no failures", nil, 0.5, true, model.StateCompleted},
		{"1 of 5 below 0.5", []string{"0:1"}, 0.5, true, model.StatePartiallyCompleted},
		{"2 of 5 below 0.5", []string{"0:1", "1:0"}, 0.5, true, model.StatePartiallyCompleted},
		{"3 of 5 above 0.5", []string{"0:0", "0:1", "1:0"}, 0.5, false, model.StateFailed},
		{"1 of 5 at 0.2", []string{"0:0"}, 0.2, false, model.StateFailed},
		{"all fail", []string{"0:0", "0:1", "0:2", "1:0", "1:1"}, 0.5, false, model.StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(twoSectionTask())
			for _, ref := range tt.fail {
				store.failRefs[ref] = errors.New("write rejected")
			}
			e := newEngine(t, store, model.Policy{FailureRatio: tt.ratio})

			res, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
			require.NoError(t, err)
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.state, res.State)
			assert.Equal(t, 5-len(tt.fail), res.TodosCompleted)

			var failedSteps int
			for _, s := range res.Progression {
				if s.Type == model.StepTodo && !s.Completed {
					failedSteps++
				}
			}
			assert.Equal(t, len(tt.fail), failedSteps)
			if len(tt.fail) > 0 {
				assert.ErrorIs(t, res.Err(), model.ErrPartialExecution)
			}
		})
	}
}

func TestExecute_FailedTodoKeepsSectionOpen(t *testing.T) {
	store := newFakeStore(twoSectionTask())
	store.failRefs["0:1"] = errors.New("boom")
	e := newEngine(t, store, model.Policy{})

	res, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	assert.Equal(t, []string{"todo:a", "todo:b", "todo:c", "todo:d", "todo:e", "section:Build"}, stepKinds(res.Progression))
	assert.Equal(t, 80, res.FinalStats.Percentage)
	// 80% recommends in_progress, which is the current status.
	assert.Nil(t, res.StatusUpdate)
}

func TestExecute_TaskVanishesMidRun(t *testing.T) {
	store := newFakeStore(twoSectionTask())
	store.failRefs["0:2"] = &model.NotFoundError{Kind: model.NotFoundTask, ID: "task_1"}
	e := newEngine(t, store, model.Policy{})

	res, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, model.StatePartiallyCompleted, res.State)
	assert.Equal(t, []string{"todo:a", "todo:b"}, stepKinds(res.Progression))
	assert.Equal(t, []string{"0:0", "0:1", "0:2"}, store.writes)
	assert.Nil(t, res.StatusUpdate)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "0:2", res.Failures[0].Ref)
}

func TestExecute_ContextCancelled(t *testing.T) {
	store := newFakeStore(twoSectionTask())
	ctx, cancel := context.WithCancel(context.Background())
	store.onWrite = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	e := newEngine(t, store, model.Policy{})

	res, err := e.Execute(ctx, "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, model.StatePartiallyCompleted, res.State)
	assert.Equal(t, 2, res.TodosCompleted)
	assert.Len(t, store.writes, 2)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	res, err = newEngine(t, newFakeStore(twoSectionTask()), model.Policy{}).Execute(cancelled, "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, res.State)
}

func TestExecute_StatusUpdateFailureDoesNotAffectSuccess(t *testing.T) {
	store := newFakeStore(twoSectionTask())
	store.statusErr = errors.New("status column locked")
	e := newEngine(t, store, model.Policy{})

	res, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.StateCompleted, res.State)
	require.NotNil(t, res.StatusUpdate)
	assert.False(t, res.StatusUpdate.Applied)
	assert.Contains(t, res.StatusUpdate.Error, "status column locked")
	assert.ErrorIs(t, res.Err(), model.ErrPartialExecution)
}

func TestExecute_StatusUpdateRejectedByGraph(t *testing.T) {
	task := twoSectionTask()
	task.Status = "todo"
	store := newFakeStore(task)
	e := newEngine(t, store, model.Policy{})

	res, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	// 100% recommends done, unreachable from todo, so nothing is proposed.
	assert.Nil(t, res.StatusUpdate)
	assert.Equal(t, model.Status("todo"), store.tasks["task_1"].Status)
}

func nestedTask() *model.Task {
	return &model.Task{ID: "task_1", Status: "todo", Sections: []model.Section{
		{Name: "S", Todos: []model.Todo{
			{Text: "p", Children: []model.Todo{{Text: "p1", Completed: true}, {Text: "p2"}}},
			{Text: "q"},
		}},
	}}
}

func TestExecute_OrderedCompletionWritesChildrenFirst(t *testing.T) {
	store := newFakeStore(nestedTask())
	e := newEngine(t, store, model.Policy{OrderedCompletion: true})

	res, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	assert.Equal(t, []string{"0:0.1", "0:0", "0:1"}, store.writes)
	assert.Equal(t, []string{"todo:p2", "todo:p", "todo:q", "section:S"}, stepKinds(res.Progression))
	assert.Equal(t, model.StateCompleted, res.State)
}

func TestExecute_OrderedCompletionSkipsBlockedParent(t *testing.T) {
	store := newFakeStore(nestedTask())
	store.failRefs["0:0.1"] = errors.New("disk full")
	e := newEngine(t, store, model.Policy{OrderedCompletion: true})

	res, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	assert.Equal(t, []string{"0:0.1", "0:1"}, store.writes)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "0:0", res.Failures[1].Ref)
	assert.Contains(t, res.Failures[1].Error, "blocked by open subtask")
	assert.Equal(t, 1, res.TodosCompleted)
}

func TestExecute_ManualOrderedCompletionPointsAtChild(t *testing.T) {
	store := newFakeStore(nestedTask())

	res, err := newEngine(t, store, model.Policy{}).Execute(context.Background(), "task_1", model.ExecutionMode{Type: model.ModeManual})
	require.NoError(t, err)
	require.Len(t, res.Progression, 1)
	assert.Equal(t, "p", res.Progression[0].TodoText)

	res, err = newEngine(t, store, model.Policy{OrderedCompletion: true}).Execute(context.Background(), "task_1", model.ExecutionMode{Type: model.ModeManual})
	require.NoError(t, err)
	require.Len(t, res.Progression, 1)
	assert.Equal(t, "p2", res.Progression[0].TodoText)
	assert.Equal(t, "0:0.1", res.Progression[0].Ref.String())
}

func TestExecute_Manual(t *testing.T) {
	store := newFakeStore(twoSectionTask())
	store.tasks["task_1"].Sections[0].Todos[0].Completed = true
	e := newEngine(t, store, model.Policy{})

	res, err := e.Execute(context.Background(), "task_1", model.ExecutionMode{Type: model.ModeManual})
	require.NoError(t, err)
	assert.Empty(t, store.writes)
	require.Len(t, res.Progression, 1)
	step := res.Progression[0]
	assert.Equal(t, "b", step.TodoText)
	assert.Equal(t, "Design", step.SectionName)
	assert.False(t, step.Completed)
	assert.Equal(t, "0:1", step.Ref.String())
	assert.True(t, res.Success)
}

func TestExecute_NothingToDo(t *testing.T) {
	for _, sections := range [][]model.Section{
		nil,
		{{Name: "done", Todos: []model.Todo{{Text: "x", Completed: true}}}},
	} {
		store := newFakeStore(&model.Task{ID: "task_1", Status: "todo", Sections: sections})
		e := newEngine(t, store, model.Policy{})
		res, err := e.Execute(context.Background(), "task_1", model.DefaultExecutionMode())
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Empty(t, res.Progression)
		assert.Empty(t, store.writes)
		assert.Equal(t, model.StateCompleted, res.State)
	}
}

func TestExecute_Errors(t *testing.T) {
	e := newEngine(t, newFakeStore(), model.Policy{})

	_, err := e.Execute(context.Background(), "task_1", model.ExecutionMode{Type: "turbo"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = e.Execute(context.Background(), "missing", model.DefaultExecutionMode())
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.True(t, model.IsTaskNotFound(err))
}

func TestRun_StateMachine(t *testing.T) {
	store := newFakeStore(twoSectionTask())
	e := newEngine(t, store, model.Policy{})

	run, err := e.NewRun("task_1", model.DefaultExecutionMode())
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, run.State())
	assert.True(t, model.ValidateID(run.ID()))

	_, err = run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, run.State())
	assert.Len(t, run.Steps(), 7)

	_, err = run.Execute(context.Background())
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "a finished run cannot execute again")
}

func TestExecute_HideProgressKeepsRunLog(t *testing.T) {
	store := newFakeStore(twoSectionTask())
	e := newEngine(t, store, model.Policy{})
	run, err := e.NewRun("task_1", model.ExecutionMode{Type: model.ModeAuto})
	require.NoError(t, err)

	res, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Progression)
	assert.Len(t, run.Steps(), 7)
	assert.Nil(t, res.StatusUpdate)
}
