// Package validation gates task mutations against the workflow config.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/status"
	"github.com/vibeflow/taskvibe/internal/todo"
)

type Engine struct {
	cfg    *model.WorkflowConfig
	status *status.Engine
}

func New(cfg *model.WorkflowConfig, statusEng *status.Engine) *Engine {
	return &Engine{cfg: cfg, status: statusEng}
}

// ValidateCreate checks a new task's fields and reports every problem at once.
func (e *Engine) ValidateCreate(title, taskType, description string) error {
	errs := &model.InvalidInputError{}
	if strings.TrimSpace(title) == "" {
		errs.Add(model.FieldTitle, "title is required")
	}
	e.validateTaskType(taskType, errs)
	if strings.TrimSpace(description) == "" {
		errs.Add(model.FieldDescription, "description is required")
	}
	return errs.OrNil()
}

// ValidateUpdate checks a field update against the task's current status.
// Field problems are reported as *model.InvalidInputError; a status outside
// the transition graph as *model.InvalidTransitionError.
func (e *Engine) ValidateUpdate(taskID string, current model.Status, fields model.UpdateFields) error {
	errs := &model.InvalidInputError{}
	if strings.TrimSpace(taskID) == "" {
		errs.Add("taskId", "task ID is required")
	}
	if len(fields) == 0 {
		errs.Add("fields", "at least one field must be updated")
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !model.UpdatableFields[name] {
			errs.Add(name, fmt.Sprintf("unknown field %q", name))
		}
	}

	if title, ok := fields[model.FieldTitle]; ok && strings.TrimSpace(title) == "" {
		errs.Add(model.FieldTitle, "title must not be empty")
	}
	if taskType, ok := fields[model.FieldTaskType]; ok {
		e.validateTaskType(taskType, errs)
	}
	if err := errs.OrNil(); err != nil {
		return err
	}

	if requested, ok := fields.Status(); ok {
		return e.ValidateStatusChange(current, requested)
	}
	return nil
}

// ValidateStatusChange checks a single status move against the graph.
func (e *Engine) ValidateStatusChange(current, requested model.Status) error {
	available, _ := e.status.AvailableTransitions(current)
	if !e.status.Known(requested) {
		return &model.InvalidTransitionError{From: current, To: requested, Available: available, Msg: "unknown status"}
	}
	if !e.status.ValidateTransition(current, requested) {
		return &model.InvalidTransitionError{From: current, To: requested, Available: available}
	}
	return nil
}

// ValidateTodoUpdates checks that a batch is non-empty and that every ref
// resolves in the task snapshot.
func (e *Engine) ValidateTodoUpdates(task *model.Task, updates []model.TodoUpdate) error {
	errs := &model.InvalidInputError{}
	if len(updates) == 0 {
		errs.Add("updates", "at least one update is required")
		return errs
	}
	for i, u := range updates {
		if _, err := todo.Find(task.Sections, u.Ref); err != nil {
			errs.Add(fmt.Sprintf("updates[%d].ref", i), fmt.Sprintf("todo %s does not exist", u.Ref))
		}
	}
	return errs.OrNil()
}

func (e *Engine) validateTaskType(taskType string, errs *model.InvalidInputError) {
	if strings.TrimSpace(taskType) == "" {
		errs.Add(model.FieldTaskType, "task type is required")
		return
	}
	if _, ok := e.cfg.Template(taskType); !ok {
		errs.Add(model.FieldTaskType, fmt.Sprintf("unknown task type %q (known: %s)", taskType, strings.Join(e.TaskTypes(), ", ")))
	}
}

// TaskTypes lists the configured template keys, sorted.
func (e *Engine) TaskTypes() []string {
	types := make([]string, 0, len(e.cfg.Templates))
	for k := range e.cfg.Templates {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}
