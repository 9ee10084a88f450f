package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/todo"
)

// Run is a single execution of one task. Its state and step log can be read
// while it is running.
type Run struct {
	id     string
	taskID string
	mode   model.ExecutionMode
	engine *Engine
	logger *log.Logger

	mu       sync.Mutex
	state    model.ExecutionState
	steps    []model.ProgressionStep
	failures []model.StepFailure
}

func (r *Run) ID() string { return r.id }

func (r *Run) State() model.ExecutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Steps returns a copy of the step log recorded so far.
func (r *Run) Steps() []model.ProgressionStep {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ProgressionStep(nil), r.steps...)
}

func (r *Run) transition(to model.ExecutionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := model.ValidateExecutionTransition(r.state, to); err != nil {
		return err
	}
	r.logger.Debug("run state", "from", r.state, "to", to)
	r.state = to
	return nil
}

func (r *Run) record(step model.ProgressionStep) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
	r.engine.notifyStep(r.taskID, step)
}

func (r *Run) fail(f model.StepFailure) {
	r.mu.Lock()
	r.failures = append(r.failures, f)
	r.mu.Unlock()
}

// counters tracks the auto loop's progress for the success rule.
type counters struct {
	attempted, advanced, failed int
	sectionsDone                int
	stopped                     error
}

// Execute drives the run to a terminal state. A run can execute only once.
func (r *Run) Execute(ctx context.Context) (*model.ExecutionResult, error) {
	e := r.engine
	started := e.now()
	if err := r.transition(model.StateRunning); err != nil {
		return nil, fmt.Errorf("execute run %s: %w", r.id, err)
	}

	task, err := e.store.FetchTask(ctx, r.taskID)
	if err != nil {
		_ = r.transition(model.StateFailed)
		r.logger.Warn("fetch task failed", "err", err)
		return nil, fmt.Errorf("fetch task: %w", err)
	}

	snapshot := todo.Clone(task.Sections)
	result := &model.ExecutionResult{
		TaskID:        task.ID,
		RunID:         r.id,
		Mode:          r.mode.Type,
		TotalSections: len(snapshot),
		TotalTodos:    todo.Count(snapshot),
		Progression:   []model.ProgressionStep{},
	}

	switch {
	case todo.AllCompleted(snapshot):
		result.Success = true
		result.Message = "Nothing to do: all todos are already completed"
		if result.TotalTodos == 0 {
			result.Message = "Nothing to do: task has no todos"
		}
		_ = r.transition(model.StateCompleted)
	case r.mode.Type == model.ModeManual:
		r.next(snapshot)
		result.Success = true
		result.Message = "Manual mode: no todos were changed"
		_ = r.transition(model.StateCompleted)
	default:
		c := r.auto(ctx, task.ID, snapshot)
		result.TodosCompleted = c.advanced
		result.SectionsProcessed = c.sectionsDone
		result.Success = c.advanced > 0 && c.stopped == nil &&
			float64(c.failed)/float64(c.attempted) < e.policy.FailureRatio
		result.Message = summarize(c, result.TotalTodos)

		var final model.ExecutionState
		switch {
		case result.Success && c.failed == 0:
			final = model.StateCompleted
		case result.Success, c.stopped != nil && c.advanced > 0:
			final = model.StatePartiallyCompleted
		default:
			final = model.StateFailed
		}

		if r.mode.AutoUpdateStatus && c.stopped == nil {
			result.StatusUpdate = r.updateStatus(ctx, task, e.stats.Compute(snapshot).Percentage)
		}
		_ = r.transition(final)
	}

	result.State = r.State()
	result.FinalStats = e.stats.Compute(snapshot)
	if r.mode.ShowProgress || r.mode.Type == model.ModeManual {
		result.Progression = r.Steps()
	}
	r.mu.Lock()
	result.Failures = append([]model.StepFailure(nil), r.failures...)
	r.mu.Unlock()

	e.notifyFinished(result, e.now().Sub(started))
	r.logger.Info("execution finished",
		"mode", result.Mode, "state", result.State, "success", result.Success,
		"completed", result.TodosCompleted, "failures", len(result.Failures))
	return result, nil
}

// auto completes every open todo in document order, updating snapshot after
// each successful write. Under ordered completion a parent is written only
// after its subtree, and is skipped while a child is still open.
func (r *Run) auto(ctx context.Context, taskID string, snapshot []model.Section) counters {
	var c counters
	ordered := r.engine.policy.OrderedCompletion
	walk := todo.WalkSection
	if ordered {
		walk = todo.WalkSectionPostOrder
	}
	for si := range snapshot {
		var open []model.TodoRef
		walk(snapshot, si, func(ref model.TodoRef, t *model.Todo, _ int) bool {
			if !t.Completed {
				open = append(open, ref)
			}
			return true
		})
		if len(open) == 0 {
			continue
		}

		for _, ref := range open {
			if err := ctx.Err(); err != nil {
				r.stop(&c, ref, "", err)
				return c
			}
			t, _ := todo.Find(snapshot, ref)
			c.attempted++
			if child, blocked := todo.FirstOpenChild(t); ordered && blocked {
				c.failed++
				msg := fmt.Sprintf("blocked by open subtask %q", child.Text)
				r.fail(model.StepFailure{Ref: ref.String(), Text: t.Text, Error: msg})
				step := todoStep(snapshot, ref, t.Text, false, "Skipped blocked todo")
				step.Error = msg
				r.record(step)
				continue
			}
			err := r.engine.store.SetTodoCompleted(ctx, taskID, ref, true)
			if err != nil && (model.IsTaskNotFound(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				c.failed++
				r.stop(&c, ref, t.Text, err)
				return c
			}
			if err != nil {
				c.failed++
				r.fail(model.StepFailure{Ref: ref.String(), Text: t.Text, Error: err.Error()})
				r.logger.Warn("complete todo failed", "ref", ref, "err", err)
				step := todoStep(snapshot, ref, t.Text, false, "Failed to complete todo")
				step.Error = err.Error()
				r.record(step)
				continue
			}
			t.Completed = true
			c.advanced++
			r.record(todoStep(snapshot, ref, t.Text, true, "Completed todo"))
		}

		if todo.SectionCompleted(snapshot, si) {
			c.sectionsDone++
			r.record(model.ProgressionStep{
				Completed:   true,
				Type:        model.StepSection,
				SectionName: snapshot[si].Name,
				Message:     fmt.Sprintf("Completed section %q", snapshot[si].Name),
			})
		}
	}
	return c
}

// stop ends the loop on an error no further write can recover from.
func (r *Run) stop(c *counters, ref model.TodoRef, text string, err error) {
	c.stopped = err
	r.fail(model.StepFailure{Ref: ref.String(), Text: text, Error: err.Error()})
	r.logger.Error("execution stopped", "ref", ref, "err", err)
}

// next records the first actionable todo without writing anything. Under
// ordered completion a parent with an open child is not actionable.
func (r *Run) next(snapshot []model.Section) {
	ordered := r.engine.policy.OrderedCompletion
	todo.Walk(snapshot, func(ref model.TodoRef, t *model.Todo, _ int) bool {
		if t.Completed {
			return true
		}
		if _, blocked := todo.FirstOpenChild(t); ordered && blocked {
			return true
		}
		r.record(todoStep(snapshot, ref, t.Text, false, "Next todo: "+t.Text))
		return false
	})
}

func (r *Run) updateStatus(ctx context.Context, task *model.Task, percentage int) *model.StatusUpdate {
	e := r.engine
	target, ok := e.status.Recommend(percentage, task.Status)
	if !ok {
		return nil
	}
	upd := &model.StatusUpdate{From: task.Status, To: target}
	err := e.validator.ValidateUpdate(task.ID, task.Status, model.UpdateFields{model.FieldStatus: string(target)})
	if err == nil {
		err = e.store.SetTaskStatus(ctx, task.ID, target)
	}
	if err != nil {
		upd.Error = err.Error()
		r.fail(model.StepFailure{Text: "status " + string(task.Status) + " → " + string(target), Error: err.Error()})
		r.logger.Warn("status update failed", "from", task.Status, "to", target, "err", err)
		return upd
	}
	upd.Applied = true
	e.notifyStatus(task.ID, task.Status, target)
	r.logger.Info("status updated", "from", task.Status, "to", target)
	return upd
}

func todoStep(snapshot []model.Section, ref model.TodoRef, text string, completed bool, msg string) model.ProgressionStep {
	refCopy := ref
	return model.ProgressionStep{
		Completed:   completed,
		Type:        model.StepTodo,
		Message:     msg,
		SectionName: snapshot[ref.Section].Name,
		TodoText:    text,
		Ref:         &refCopy,
	}
}

func summarize(c counters, total int) string {
	msg := fmt.Sprintf("Completed %d of %d todo(s) across %d section(s)", c.advanced, total, c.sectionsDone)
	if c.failed > 0 {
		msg += fmt.Sprintf("; %d update(s) failed", c.failed)
	}
	if c.stopped != nil {
		msg += fmt.Sprintf("; stopped early: %v", c.stopped)
	}
	return msg
}
