// Package tools implements the task tool surface shared by the MCP server,
// the daemon socket and the CLI. Each tool is a typed method on Service; the
// Router decodes JSON arguments and renders results.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/vibeflow/taskvibe/internal/analysis"
	"github.com/vibeflow/taskvibe/internal/events"
	"github.com/vibeflow/taskvibe/internal/execution"
	"github.com/vibeflow/taskvibe/internal/logging"
	"github.com/vibeflow/taskvibe/internal/metrics"
	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/status"
	"github.com/vibeflow/taskvibe/internal/store"
	"github.com/vibeflow/taskvibe/internal/todo"
	"github.com/vibeflow/taskvibe/internal/validation"
)

// Deps wires a Service. Bus, Metrics, Changes and Logger are optional.
type Deps struct {
	Store     store.Provider
	Workflow  *model.WorkflowConfig
	Status    *status.Engine
	Validator *validation.Engine
	Stats     *todo.StatsEngine
	Analyzer  *analysis.Engine
	Executor  *execution.Engine
	Changes   ChangeSource
	Bus       *events.Bus
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

type Service struct {
	Deps
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Changes == nil {
		d.Changes = GitChanges{}
	}
	return &Service{Deps: d}
}

type ExecuteTaskArgs struct {
	TaskID string              `json:"taskId"`
	Mode   model.ExecutionMode `json:"mode"`
}

type CreateTaskArgs struct {
	Title       string `json:"title"`
	TaskType    string `json:"taskType"`
	Description string `json:"description"`
}

type TaskIDArgs struct {
	TaskID string `json:"taskId"`
}

type UpdateTaskArgs struct {
	TaskID      string  `json:"taskId"`
	Title       *string `json:"title,omitempty"`
	TaskType    *string `json:"taskType,omitempty"`
	Status      *string `json:"status,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Fields collects the fields the caller set.
func (a UpdateTaskArgs) Fields() model.UpdateFields {
	f := model.UpdateFields{}
	set := func(name string, v *string) {
		if v != nil {
			f[name] = *v
		}
	}
	set(model.FieldTitle, a.Title)
	set(model.FieldTaskType, a.TaskType)
	set(model.FieldStatus, a.Status)
	set(model.FieldDescription, a.Description)
	return f
}

type UpdateTaskResult struct {
	TaskID         string       `json:"taskId"`
	Fields         []string     `json:"fields"`
	PreviousStatus model.Status `json:"previousStatus,omitempty"`
	Status         model.Status `json:"status,omitempty"`
}

type TemplateArgs struct {
	TaskType string `json:"taskType"`
}

type TemplateResult struct {
	TaskType string `json:"taskType"`
	Template string `json:"template"`
}

type AnalyzeTodosArgs struct {
	TaskID           string `json:"taskId"`
	IncludeHierarchy bool   `json:"includeHierarchy"`
}

type UpdateTodosArgs struct {
	TaskID  string             `json:"taskId"`
	Updates []model.TodoUpdate `json:"updates"`
}

func requireTaskID(id string) error {
	if strings.TrimSpace(id) == "" {
		errs := &model.InvalidInputError{}
		errs.Add("taskId", "task ID is required")
		return errs
	}
	return nil
}

func (s *Service) publish(t events.EventType, taskID string, data map[string]any) {
	if s.Bus != nil {
		s.Bus.Publish(t, taskID, data)
	}
}

func (s *Service) ExecuteTask(ctx context.Context, args ExecuteTaskArgs) (*model.ExecutionResult, error) {
	if err := requireTaskID(args.TaskID); err != nil {
		return nil, err
	}
	result, err := s.Executor.Execute(ctx, args.TaskID, args.Mode)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("task executed", "task", args.TaskID, "mode", args.Mode.Type, "state", result.State, "completed", result.TodosCompleted)
	return result, nil
}

func (s *Service) CreateTask(ctx context.Context, args CreateTaskArgs) (*model.Task, error) {
	if err := s.Validator.ValidateCreate(args.Title, args.TaskType, args.Description); err != nil {
		return nil, err
	}
	t, err := s.Store.CreateTask(ctx, args.Title, args.TaskType, args.Description)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.publish(events.EventTaskCreated, t.ID, map[string]any{
		"title":  t.Title,
		"type":   t.Type,
		"status": string(t.Status),
		"todos":  todo.Count(t.Sections),
	})
	return t, nil
}

// GetTask returns the task's metadata with fresh stats and status info.
func (s *Service) GetTask(ctx context.Context, args TaskIDArgs) (*model.TaskMetadata, error) {
	if err := requireTaskID(args.TaskID); err != nil {
		return nil, err
	}
	t, err := s.Store.FetchTask(ctx, args.TaskID)
	if err != nil {
		return nil, err
	}
	stats := s.Stats.Compute(t.Sections)
	return &model.TaskMetadata{
		ID:         t.ID,
		URL:        t.URL,
		Title:      t.Title,
		Type:       t.Type,
		Status:     t.Status,
		TodoStats:  stats,
		StatusInfo: s.Status.Info(t.Status, stats.Percentage),
	}, nil
}

// UpdateTask validates the update against the task's current status, then
// writes field changes before the status change.
func (s *Service) UpdateTask(ctx context.Context, args UpdateTaskArgs) (*UpdateTaskResult, error) {
	if err := requireTaskID(args.TaskID); err != nil {
		return nil, err
	}
	fields := args.Fields()
	t, err := s.Store.FetchTask(ctx, args.TaskID)
	if err != nil {
		return nil, err
	}
	if err := s.Validator.ValidateUpdate(args.TaskID, t.Status, fields); err != nil {
		return nil, err
	}

	res := &UpdateTaskResult{TaskID: t.ID, Fields: sortedNames(fields)}
	if rest := fields.Without(model.FieldStatus); len(rest) > 0 {
		if err := s.Store.UpdateTaskFields(ctx, t.ID, rest); err != nil {
			return nil, fmt.Errorf("update task fields: %w", err)
		}
	}
	if to, ok := fields.Status(); ok {
		if err := s.Store.SetTaskStatus(ctx, t.ID, to); err != nil {
			return nil, fmt.Errorf("set task status: %w", err)
		}
		res.PreviousStatus, res.Status = t.Status, to
		if s.Metrics != nil {
			s.Metrics.StatusChanged(t.ID, t.Status, to)
		}
		s.publish(events.EventStatusChanged, t.ID, map[string]any{"from": string(t.Status), "to": string(to)})
	}
	s.publish(events.EventTaskUpdated, t.ID, map[string]any{"fields": res.Fields})
	s.Logger.Info("task updated", "task", t.ID, "fields", strings.Join(res.Fields, ","))
	return res, nil
}

func (s *Service) GetTaskTemplate(_ context.Context, args TemplateArgs) (*TemplateResult, error) {
	tmpl, ok := s.Workflow.Template(args.TaskType)
	if !ok {
		errs := &model.InvalidInputError{}
		errs.Add(model.FieldTaskType, fmt.Sprintf("unknown task type %q (known: %s)", args.TaskType, strings.Join(s.Validator.TaskTypes(), ", ")))
		return nil, errs
	}
	return &TemplateResult{TaskType: args.TaskType, Template: tmpl}, nil
}

func (s *Service) AnalyzeTodos(ctx context.Context, args AnalyzeTodosArgs) (*model.TodoAnalysisResult, error) {
	if err := requireTaskID(args.TaskID); err != nil {
		return nil, err
	}
	t, err := s.Store.FetchTask(ctx, args.TaskID)
	if err != nil {
		return nil, err
	}
	res := s.Analyzer.Analyze(t, args.IncludeHierarchy)
	if s.Metrics != nil {
		s.Metrics.AnalysisPerformed()
	}
	return &res, nil
}

// UpdateTodos validates the whole batch against a snapshot, then applies it
// in order. A failed write is recorded and the batch continues; a cancelled
// context or a vanished task stops it.
func (s *Service) UpdateTodos(ctx context.Context, args UpdateTodosArgs) (*model.TodoUpdateResult, error) {
	if err := requireTaskID(args.TaskID); err != nil {
		return nil, err
	}
	t, err := s.Store.FetchTask(ctx, args.TaskID)
	if err != nil {
		return nil, err
	}
	if err := s.Validator.ValidateTodoUpdates(t, args.Updates); err != nil {
		return nil, err
	}

	res := &model.TodoUpdateResult{}
	for i, u := range args.Updates {
		if err := ctx.Err(); err != nil {
			res.Failed += len(args.Updates) - i
			res.Failures = append(res.Failures, model.StepFailure{Ref: u.Ref.String(), Error: err.Error()})
			break
		}
		err := s.Store.SetTodoCompleted(ctx, t.ID, u.Ref, u.Completed)
		if err == nil {
			res.Updated++
			continue
		}
		res.Failed++
		res.Failures = append(res.Failures, model.StepFailure{Ref: u.Ref.String(), Error: err.Error()})
		if model.IsTaskNotFound(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res.Failed += len(args.Updates) - i - 1
			break
		}
	}

	if s.Metrics != nil {
		s.Metrics.TodoUpdates(res.Updated, res.Failed)
	}
	s.publish(events.EventTodosUpdated, t.ID, map[string]any{"updated": res.Updated, "failed": res.Failed})
	s.Logger.Info("todos updated", "task", t.ID, "updated", res.Updated, "failed", res.Failed)
	return res, nil
}

// GenerateDevSummary reports progress and uncommitted changes. It reads the
// task and the working tree and writes nothing.
func (s *Service) GenerateDevSummary(ctx context.Context, args TaskIDArgs) (*model.DevSummary, error) {
	if err := requireTaskID(args.TaskID); err != nil {
		return nil, err
	}
	t, err := s.Store.FetchTask(ctx, args.TaskID)
	if err != nil {
		return nil, err
	}
	sum := &model.DevSummary{
		TaskID:         t.ID,
		Title:          t.Title,
		Status:         t.Status,
		Stats:          s.Stats.Compute(t.Sections),
		CompletedTodos: []string{},
		RemainingTodos: []string{},
		ChangedFiles:   []string{},
	}
	todo.Walk(t.Sections, func(_ model.TodoRef, td *model.Todo, _ int) bool {
		if s.Stats.IsCompleted(td) {
			sum.CompletedTodos = append(sum.CompletedTodos, td.Text)
		} else {
			sum.RemainingTodos = append(sum.RemainingTodos, td.Text)
		}
		return true
	})

	files, err := s.Changes.ChangedFiles(ctx)
	if err != nil {
		s.Logger.Warn("changed files unavailable", "task", t.ID, "err", err)
	} else if files != nil {
		sum.ChangedFiles = files
	}
	sum.TestTodos = TestTodos(sum.ChangedFiles)
	return sum, nil
}

func sortedNames(f model.UpdateFields) []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
