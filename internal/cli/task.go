package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/tools"
)

// newTaskCmd groups the in-process task tools.
func newTaskCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, inspect and progress tasks without a daemon",
	}
	cmd.AddCommand(
		newTaskCreateCmd(g),
		newTaskGetCmd(g),
		newTaskUpdateCmd(g),
		newTaskTemplateCmd(g),
		newTaskAnalyzeCmd(g),
		newTaskTodosCmd(g),
		newTaskExecuteCmd(g),
		newTaskSummaryCmd(g),
		newTaskListCmd(g),
	)
	return cmd
}

func newTaskCreateCmd(g *globalFlags) *cobra.Command {
	var args tools.CreateTaskArgs
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task from its type's template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.callTool(cmd, tools.ToolCreateTask, args)
		},
	}
	cmd.Flags().StringVarP(&args.Title, "title", "t", "", "task title")
	cmd.Flags().StringVar(&args.TaskType, "type", "", "task type (a workflow template name)")
	cmd.Flags().StringVarP(&args.Description, "description", "d", "", "task description")
	return cmd
}

func newTaskGetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task's metadata and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.callTool(cmd, tools.ToolGetTask, tools.TaskIDArgs{TaskID: args[0]})
		},
	}
}

func newTaskUpdateCmd(g *globalFlags) *cobra.Command {
	var title, taskType, status, description string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a task's fields or status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := tools.UpdateTaskArgs{TaskID: args[0]}
			flags := cmd.Flags()
			if flags.Changed("title") {
				upd.Title = &title
			}
			if flags.Changed("type") {
				upd.TaskType = &taskType
			}
			if flags.Changed("status") {
				upd.Status = &status
			}
			if flags.Changed("description") {
				upd.Description = &description
			}
			return g.callTool(cmd, tools.ToolUpdateTask, upd)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVar(&taskType, "type", "", "new task type")
	cmd.Flags().StringVarP(&status, "status", "s", "", "new status")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	return cmd
}

func newTaskTemplateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "template <task-type>",
		Short: "Print the todo template for a task type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.callTool(cmd, tools.ToolGetTaskTemplate, tools.TemplateArgs{TaskType: args[0]})
		},
	}
}

func newTaskAnalyzeCmd(g *globalFlags) *cobra.Command {
	var hierarchy bool
	cmd := &cobra.Command{
		Use:   "analyze <task-id>",
		Short: "Analyze a task's todos and suggest the next steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.callTool(cmd, tools.ToolAnalyzeTodos, tools.AnalyzeTodosArgs{TaskID: args[0], IncludeHierarchy: hierarchy})
		},
	}
	cmd.Flags().BoolVar(&hierarchy, "hierarchy", false, "include per-section hierarchy stats")
	return cmd
}

func newTaskTodosCmd(g *globalFlags) *cobra.Command {
	var done, undo []string
	cmd := &cobra.Command{
		Use:   "todos <task-id>",
		Short: "Mark todos complete or incomplete",
		Example: `  taskvibe task todos task_1767225600_abcdef12 --done 0:0 --done 1:0.1
  taskvibe task todos task_1767225600_abcdef12 --undo 2:1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := todoUpdates(done, undo)
			if err != nil {
				return err
			}
			return g.callTool(cmd, tools.ToolUpdateTodos, tools.UpdateTodosArgs{TaskID: args[0], Updates: updates})
		},
	}
	cmd.Flags().StringArrayVar(&done, "done", nil, "todo reference <section>:<index[.child...]> to complete")
	cmd.Flags().StringArrayVar(&undo, "undo", nil, "todo reference to mark incomplete")
	return cmd
}

func todoUpdates(done, undo []string) ([]model.TodoUpdate, error) {
	if len(done)+len(undo) == 0 {
		return nil, invalidInput("updates", "pass at least one --done or --undo reference")
	}
	updates := make([]model.TodoUpdate, 0, len(done)+len(undo))
	for _, set := range []struct {
		refs      []string
		completed bool
	}{{done, true}, {undo, false}} {
		for _, s := range set.refs {
			ref, err := model.ParseTodoRef(s)
			if err != nil {
				return nil, invalidInput("updates", err.Error())
			}
			updates = append(updates, model.TodoUpdate{Ref: ref, Completed: set.completed})
		}
	}
	return updates, nil
}

func newTaskExecuteCmd(g *globalFlags) *cobra.Command {
	var mode string
	var noProgress, noAutoStatus bool
	cmd := &cobra.Command{
		Use:   "execute <task-id>",
		Short: "Run a task's todos in auto or manual mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := model.DefaultExecutionMode()
			m.Type = model.ModeType(mode)
			m.ShowProgress = !noProgress
			m.AutoUpdateStatus = !noAutoStatus
			return g.callTool(cmd, tools.ToolExecuteTask, tools.ExecuteTaskArgs{TaskID: args[0], Mode: m})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(model.ModeAuto), "execution mode: auto or manual")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "omit the progression log from the result")
	cmd.Flags().BoolVar(&noAutoStatus, "no-auto-status", false, "do not move the task status as todos complete")
	return cmd
}

func newTaskSummaryCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <task-id>",
		Short: "Summarize a task for a developer, with changed files from git",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.callTool(cmd, tools.ToolGenerateDevSummary, tools.TaskIDArgs{TaskID: args[0]})
		},
	}
}

func newTaskListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored task IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ids, err := a.Store.ListTaskIDs()
			if err != nil {
				return err
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), ids)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func invalidInput(fieldPath, msg string) error {
	e := &model.InvalidInputError{}
	e.Add(fieldPath, msg)
	return e
}
