// Package execution auto-progresses a task's outstanding todos. Each call to
// Execute drives one Run through idle → running → a terminal state and keeps
// the step log that produced the result.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vibeflow/taskvibe/internal/logging"
	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/status"
	"github.com/vibeflow/taskvibe/internal/todo"
	"github.com/vibeflow/taskvibe/internal/validation"
)

// TaskStore is the slice of the storage adapter the engine writes through.
type TaskStore interface {
	FetchTask(ctx context.Context, id string) (*model.Task, error)
	SetTodoCompleted(ctx context.Context, id string, ref model.TodoRef, completed bool) error
	SetTaskStatus(ctx context.Context, id string, s model.Status) error
}

// Observer is notified as a run progresses. Implementations must not block.
type Observer interface {
	StepRecorded(taskID string, step model.ProgressionStep)
	StatusChanged(taskID string, from, to model.Status)
	ExecutionFinished(result *model.ExecutionResult, elapsed time.Duration)
}

type Engine struct {
	store     TaskStore
	status    *status.Engine
	validator *validation.Engine
	stats     *todo.StatsEngine
	policy    model.Policy
	logger    *log.Logger
	observers []Observer
	now       func() time.Time
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver adds an observer; it may be given more than once.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

func New(store TaskStore, statusEng *status.Engine, validator *validation.Engine, stats *todo.StatsEngine, policy model.Policy, opts ...Option) *Engine {
	policy.ApplyDefaults()
	e := &Engine{
		store:     store,
		status:    statusEng,
		validator: validator,
		stats:     stats,
		policy:    policy,
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs taskID to completion in the given mode. Write failures during
// the run are reported in the result (see ExecutionResult.Err); the returned
// error is reserved for a bad mode or a task that cannot be fetched.
func (e *Engine) Execute(ctx context.Context, taskID string, mode model.ExecutionMode) (*model.ExecutionResult, error) {
	run, err := e.NewRun(taskID, mode)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx)
}

// NewRun prepares an idle run without touching storage.
func (e *Engine) NewRun(taskID string, mode model.ExecutionMode) (*Run, error) {
	errs := &model.InvalidInputError{}
	if taskID == "" {
		errs.Add("taskId", "task ID is required")
	}
	switch mode.Type {
	case model.ModeAuto, model.ModeManual:
	default:
		errs.Add("mode.type", fmt.Sprintf("unknown execution mode %q (want auto or manual)", mode.Type))
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	id, err := model.GenerateID(model.IDTypeRun)
	if err != nil {
		return nil, fmt.Errorf("new run: %w", err)
	}
	return &Run{
		id:     id,
		taskID: taskID,
		mode:   mode,
		engine: e,
		state:  model.StateIdle,
		logger: e.logger.With("run", id, "task", taskID),
	}, nil
}

func (e *Engine) notifyStep(taskID string, step model.ProgressionStep) {
	for _, o := range e.observers {
		o.StepRecorded(taskID, step)
	}
}

func (e *Engine) notifyStatus(taskID string, from, to model.Status) {
	for _, o := range e.observers {
		o.StatusChanged(taskID, from, to)
	}
}

func (e *Engine) notifyFinished(result *model.ExecutionResult, elapsed time.Duration) {
	for _, o := range e.observers {
		o.ExecutionFinished(result, elapsed)
	}
}
