package todo

import (
	"github.com/vibeflow/taskvibe/internal/model"
)

// VisitFunc is called once per todo in document order. Returning false stops
// the walk.
type VisitFunc func(ref model.TodoRef, t *model.Todo, depth int) bool

// Walk visits every todo in document order: sections in order, then each
// section's tree depth-first, parents before children. The *model.Todo points
// into sections, so callers may mutate it.
func Walk(sections []model.Section, fn VisitFunc) {
	for si := range sections {
		todos := sections[si].Todos
		for i := range todos {
			ref := model.TodoRef{Section: si, Path: []int{i}}
			if !walkTodo(ref, &todos[i], fn) {
				return
			}
		}
	}
}

// WalkSection is Walk restricted to one section.
func WalkSection(sections []model.Section, si int, fn VisitFunc) {
	if si < 0 || si >= len(sections) {
		return
	}
	todos := sections[si].Todos
	for i := range todos {
		if !walkTodo(model.TodoRef{Section: si, Path: []int{i}}, &todos[i], fn) {
			return
		}
	}
}

// WalkSectionPostOrder is WalkSection with every todo's children visited
// before the todo itself.
func WalkSectionPostOrder(sections []model.Section, si int, fn VisitFunc) {
	if si < 0 || si >= len(sections) {
		return
	}
	todos := sections[si].Todos
	for i := range todos {
		if !walkTodoPost(model.TodoRef{Section: si, Path: []int{i}}, &todos[i], fn) {
			return
		}
	}
}

func walkTodoPost(ref model.TodoRef, t *model.Todo, fn VisitFunc) bool {
	for i := range t.Children {
		if !walkTodoPost(ref.Child(i), &t.Children[i], fn) {
			return false
		}
	}
	return fn(ref, t, ref.Depth())
}

// FirstOpenChild returns t's first direct child that is not marked complete.
func FirstOpenChild(t *model.Todo) (*model.Todo, bool) {
	for i := range t.Children {
		if !t.Children[i].Completed {
			return &t.Children[i], true
		}
	}
	return nil, false
}

func walkTodo(ref model.TodoRef, t *model.Todo, fn VisitFunc) bool {
	if !fn(ref, t, ref.Depth()) {
		return false
	}
	for i := range t.Children {
		if !walkTodo(ref.Child(i), &t.Children[i], fn) {
			return false
		}
	}
	return true
}

// Find resolves ref against sections. A ref that points nowhere is a
// *model.NotFoundError of kind todo.
func Find(sections []model.Section, ref model.TodoRef) (*model.Todo, error) {
	notFound := &model.NotFoundError{Kind: model.NotFoundTodo, ID: ref.String()}
	if ref.Section < 0 || ref.Section >= len(sections) || len(ref.Path) == 0 {
		return nil, notFound
	}
	todos := sections[ref.Section].Todos
	var cur *model.Todo
	for _, idx := range ref.Path {
		if idx < 0 || idx >= len(todos) {
			return nil, notFound
		}
		cur = &todos[idx]
		todos = cur.Children
	}
	return cur, nil
}

// SetCompleted flips the completion flag of the todo at ref in place.
func SetCompleted(sections []model.Section, ref model.TodoRef, completed bool) error {
	t, err := Find(sections, ref)
	if err != nil {
		return err
	}
	t.Completed = completed
	return nil
}

// AllCompleted reports whether every todo, nested ones included, is marked
// complete. It is true for a hierarchy with no todos.
func AllCompleted(sections []model.Section) bool {
	done := true
	Walk(sections, func(_ model.TodoRef, t *model.Todo, _ int) bool {
		if !t.Completed {
			done = false
			return false
		}
		return true
	})
	return done
}

// SectionCompleted reports whether every todo in section si is complete.
func SectionCompleted(sections []model.Section, si int) bool {
	done := true
	WalkSection(sections, si, func(_ model.TodoRef, t *model.Todo, _ int) bool {
		if !t.Completed {
			done = false
			return false
		}
		return true
	})
	return done
}

// Count returns how many todos the hierarchy holds, nested ones included.
func Count(sections []model.Section) int {
	n := 0
	Walk(sections, func(model.TodoRef, *model.Todo, int) bool {
		n++
		return true
	})
	return n
}

// Clone deep-copies a hierarchy so a snapshot can be mutated without
// touching the caller's task.
func Clone(sections []model.Section) []model.Section {
	if sections == nil {
		return nil
	}
	out := make([]model.Section, len(sections))
	for i, s := range sections {
		out[i] = model.Section{Name: s.Name, Todos: cloneTodos(s.Todos)}
	}
	return out
}

func cloneTodos(todos []model.Todo) []model.Todo {
	if todos == nil {
		return nil
	}
	out := make([]model.Todo, len(todos))
	for i, t := range todos {
		out[i] = model.Todo{Text: t.Text, Completed: t.Completed, Children: cloneTodos(t.Children)}
	}
	return out
}

// descendantsCompleted reports whether every descendant of t is complete.
func descendantsCompleted(t *model.Todo) bool {
	for i := range t.Children {
		c := &t.Children[i]
		if !c.Completed || !descendantsCompleted(c) {
			return false
		}
	}
	return true
}
