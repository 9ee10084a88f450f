// Package format renders tool results as markdown for agent-facing
// transports.
package format

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/vibeflow/taskvibe/internal/model"
)

var funcs = template.FuncMap{
	"upper": func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
	"check": func(done bool) string {
		if done {
			return "x"
		}
		return " "
	},
	"yesno": func(ok bool) string {
		if ok {
			return "yes"
		}
		return "no"
	},
	"join": func(items any, sep string) string {
		switch v := items.(type) {
		case []string:
			return strings.Join(v, sep)
		case []model.Status:
			parts := make([]string, len(v))
			for i, s := range v {
				parts[i] = string(s)
			}
			return strings.Join(parts, sep)
		default:
			return fmt.Sprint(items)
		}
	},
	"orNone": func(v any) string {
		s := fmt.Sprint(v)
		if s == "" {
			return "None"
		}
		return s
	},
}

var tmpl = template.Must(template.New("format").Funcs(funcs).Parse(templates))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

// ExecutionResult renders the outcome of an execute_task call.
func ExecutionResult(r *model.ExecutionResult) (string, error) {
	return render("execution", r)
}

func TaskInfo(m model.TaskMetadata) (string, error) {
	return render("task_info", m)
}

func TaskCreated(t *model.Task) (string, error) {
	return render("task_created", t)
}

// TaskUpdated lists the changed field names in sorted order. status is the
// new status when the update changed it, otherwise empty.
func TaskUpdated(taskID string, fields model.UpdateFields, status model.Status) (string, error) {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return render("task_updated", struct {
		TaskID string
		Fields []string
		Status model.Status
	}{taskID, names, status})
}

func Template(taskType, text string) (string, error) {
	return render("template", struct {
		TaskType string
		Text     string
	}{taskType, strings.TrimRight(text, "\n")})
}

// Analysis renders an analyze_todos result.
func Analysis(a model.TodoAnalysisResult) (string, error) {
	return render("analysis", a)
}

func TodosUpdated(taskID string, r model.TodoUpdateResult) (string, error) {
	return render("todos_updated", struct {
		TaskID string
		model.TodoUpdateResult
	}{taskID, r})
}

func DevSummary(s model.DevSummary) (string, error) {
	return render("dev_summary", s)
}
