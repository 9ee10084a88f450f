// Package store holds the storage adapter interface and the bundled
// file-backed implementation.
package store

import (
	"context"
	"strings"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/todo"
)

// Provider is the storage adapter every engine and tool writes through.
// Implementations return *model.NotFoundError for unknown tasks or todos.
type Provider interface {
	FetchTask(ctx context.Context, id string) (*model.Task, error)
	CreateTask(ctx context.Context, title, taskType, description string) (*model.Task, error)
	UpdateTaskFields(ctx context.Context, id string, fields model.UpdateFields) error
	SetTodoCompleted(ctx context.Context, id string, ref model.TodoRef, completed bool) error
	SetTaskStatus(ctx context.Context, id string, status model.Status) error
}

// RenderTemplate fills a task type template's placeholders.
func RenderTemplate(tmpl, title, description string) string {
	return strings.NewReplacer(
		"{{description}}", description,
		"{{title}}", title,
	).Replace(tmpl)
}

// SectionsFromTemplate builds a new task's hierarchy from its template. A
// rendered template that cannot be parsed is an *model.InvalidInputError on
// the description, the only caller-controlled part of it.
func SectionsFromTemplate(tmpl, title, description string) ([]model.Section, error) {
	sections, err := todo.ParseMarkdown(RenderTemplate(tmpl, title, description))
	if err != nil {
		errs := &model.InvalidInputError{}
		errs.Add(model.FieldDescription, err.Error())
		return nil, errs
	}
	if sections == nil {
		sections = []model.Section{}
	}
	return sections, nil
}

// ApplyFields copies an update onto t. Unknown names are ignored; callers
// validate first.
func ApplyFields(t *model.Task, fields model.UpdateFields) {
	for name, v := range fields {
		switch name {
		case model.FieldTitle:
			t.Title = v
		case model.FieldTaskType:
			t.Type = v
		case model.FieldDescription:
			t.Description = v
		case model.FieldStatus:
			t.Status = model.Status(v)
		}
	}
}
