package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vibeflow/taskvibe/internal/format"
	"github.com/vibeflow/taskvibe/internal/model"
)

const (
	ToolExecuteTask        = "execute_task"
	ToolCreateTask         = "create_task"
	ToolGetTask            = "get_task"
	ToolUpdateTask         = "update_task"
	ToolGetTaskTemplate    = "get_task_template"
	ToolAnalyzeTodos       = "analyze_todos"
	ToolUpdateTodos        = "update_todos"
	ToolGenerateDevSummary = "generate_dev_summary"
)

var ErrUnknownTool = errors.New("unknown tool")

// ParamType names a JSON Schema primitive.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Tool describes one entry of the tool surface.
type Tool struct {
	Name        string
	Description string
	Params      []Param
}

var taskIDParam = Param{Name: "taskId", Type: ParamString, Description: "Task ID", Required: true}

// Tools lists the tool surface in registration order.
var Tools = []Tool{
	{
		Name:        ToolExecuteTask,
		Description: "Execute a task: complete its open todos section by section and update its status",
		Params: []Param{
			taskIDParam,
			{Name: "mode", Type: ParamObject, Description: `Execution mode {"type": "auto"|"manual", "showProgress": bool, "autoUpdateStatus": bool}; defaults to auto with progress and status updates`},
		},
	},
	{
		Name:        ToolCreateTask,
		Description: "Create a task from a task type template",
		Params: []Param{
			{Name: "title", Type: ParamString, Description: "Task title", Required: true},
			{Name: "taskType", Type: ParamString, Description: "Task type (a template name)", Required: true},
			{Name: "description", Type: ParamString, Description: "Task description", Required: true},
		},
	},
	{
		Name:        ToolGetTask,
		Description: "Get task information with todo statistics and status transitions",
		Params:      []Param{taskIDParam},
	},
	{
		Name:        ToolUpdateTask,
		Description: "Update task fields or move the task to another status",
		Params: []Param{
			taskIDParam,
			{Name: "title", Type: ParamString, Description: "New title"},
			{Name: "taskType", Type: ParamString, Description: "New task type"},
			{Name: "status", Type: ParamString, Description: "New status; must be reachable from the current one"},
			{Name: "description", Type: ParamString, Description: "New description"},
		},
	},
	{
		Name:        ToolGetTaskTemplate,
		Description: "Get the todo template for a task type",
		Params: []Param{
			{Name: "taskType", Type: ParamString, Description: "Task type", Required: true},
		},
	},
	{
		Name:        ToolAnalyzeTodos,
		Description: "Analyze todos: insights, recommendations and blockers",
		Params: []Param{
			taskIDParam,
			{Name: "includeHierarchy", Type: ParamBoolean, Description: "Include rules about nested todos"},
		},
	},
	{
		Name:        ToolUpdateTodos,
		Description: "Batch update todos",
		Params: []Param{
			taskIDParam,
			{Name: "updates", Type: ParamArray, Description: `List of {"ref": "<section>:<i>.<j>", "completed": bool}`, Required: true},
		},
	},
	{
		Name:        ToolGenerateDevSummary,
		Description: "Generate development summary with testing todos based on git changes",
		Params:      []Param{taskIDParam},
	},
}

// Result carries a tool's typed payload and its markdown rendering.
type Result struct {
	Data any
	Text string
}

type handler func(ctx context.Context, args json.RawMessage) (*Result, error)

// Router dispatches tool calls by name.
type Router struct {
	svc      *Service
	handlers map[string]handler
}

func NewRouter(svc *Service) *Router {
	r := &Router{svc: svc}
	r.handlers = map[string]handler{
		ToolExecuteTask:        r.executeTask,
		ToolCreateTask:         r.createTask,
		ToolGetTask:            r.getTask,
		ToolUpdateTask:         r.updateTask,
		ToolGetTaskTemplate:    r.getTaskTemplate,
		ToolAnalyzeTodos:       r.analyzeTodos,
		ToolUpdateTodos:        r.updateTodos,
		ToolGenerateDevSummary: r.generateDevSummary,
	}
	return r
}

func (r *Router) Service() *Service { return r.svc }

// Call runs the named tool with JSON arguments.
func (r *Router) Call(ctx context.Context, name string, args json.RawMessage) (*Result, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return h(ctx, args)
}

// decodeArgs decodes strictly; unknown argument names are input errors.
// Fields already set on dst act as defaults.
func decodeArgs(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		errs := &model.InvalidInputError{}
		errs.Add("arguments", err.Error())
		return errs
	}
	return nil
}

func (r *Router) executeTask(ctx context.Context, raw json.RawMessage) (*Result, error) {
	args := ExecuteTaskArgs{Mode: model.DefaultExecutionMode()}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	res, err := r.svc.ExecuteTask(ctx, args)
	if err != nil {
		return nil, err
	}
	text, err := format.ExecutionResult(res)
	return &Result{Data: res, Text: text}, err
}

func (r *Router) createTask(ctx context.Context, raw json.RawMessage) (*Result, error) {
	var args CreateTaskArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	t, err := r.svc.CreateTask(ctx, args)
	if err != nil {
		return nil, err
	}
	text, err := format.TaskCreated(t)
	return &Result{Data: t, Text: text}, err
}

func (r *Router) getTask(ctx context.Context, raw json.RawMessage) (*Result, error) {
	var args TaskIDArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	meta, err := r.svc.GetTask(ctx, args)
	if err != nil {
		return nil, err
	}
	text, err := format.TaskInfo(*meta)
	return &Result{Data: meta, Text: text}, err
}

func (r *Router) updateTask(ctx context.Context, raw json.RawMessage) (*Result, error) {
	var args UpdateTaskArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	res, err := r.svc.UpdateTask(ctx, args)
	if err != nil {
		return nil, err
	}
	text, err := format.TaskUpdated(res.TaskID, args.Fields(), res.Status)
	return &Result{Data: res, Text: text}, err
}

func (r *Router) getTaskTemplate(ctx context.Context, raw json.RawMessage) (*Result, error) {
	var args TemplateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	res, err := r.svc.GetTaskTemplate(ctx, args)
	if err != nil {
		return nil, err
	}
	text, err := format.Template(res.TaskType, res.Template)
	return &Result{Data: res, Text: text}, err
}

func (r *Router) analyzeTodos(ctx context.Context, raw json.RawMessage) (*Result, error) {
	var args AnalyzeTodosArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	res, err := r.svc.AnalyzeTodos(ctx, args)
	if err != nil {
		return nil, err
	}
	text, err := format.Analysis(*res)
	return &Result{Data: res, Text: text}, err
}

func (r *Router) updateTodos(ctx context.Context, raw json.RawMessage) (*Result, error) {
	var args UpdateTodosArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	res, err := r.svc.UpdateTodos(ctx, args)
	if err != nil {
		return nil, err
	}
	text, err := format.TodosUpdated(args.TaskID, *res)
	return &Result{Data: res, Text: text}, err
}

func (r *Router) generateDevSummary(ctx context.Context, raw json.RawMessage) (*Result, error) {
	var args TaskIDArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	res, err := r.svc.GenerateDevSummary(ctx, args)
	if err != nil {
		return nil, err
	}
	text, err := format.DevSummary(*res)
	return &Result{Data: res, Text: text}, err
}
