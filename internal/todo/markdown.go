package todo

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/vibeflow/taskvibe/internal/model"
)

// DefaultSectionName holds todos that appear before the first heading.
const DefaultSectionName = "Todos"

const indentWidth = 2

// MaxLineSize bounds a single line of a todo document.
const MaxLineSize = 1024 * 1024

// ParseMarkdown reads a todo hierarchy from a markdown document. "## Title"
// opens a section, "- [ ] text" and "- [x] text" are todos, and every two
// spaces of indentation nest a todo one level under the previous one. Other
// lines are ignored. A line longer than MaxLineSize is an error.
func ParseMarkdown(text string) ([]model.Section, error) {
	var sections []model.Section
	// stack[d] is the path of the last todo seen at depth d in the current
	// section.
	var stack [][]int

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimLeft(line, " \t")

		if strings.HasPrefix(trimmed, "## ") && trimmed == line {
			sections = append(sections, model.Section{Name: strings.TrimSpace(trimmed[3:]), Todos: []model.Todo{}})
			stack = stack[:0]
			continue
		}

		item, completed, ok := parseItem(trimmed)
		if !ok {
			continue
		}
		if len(sections) == 0 {
			sections = append(sections, model.Section{Name: DefaultSectionName, Todos: []model.Todo{}})
		}

		depth := indentOf(line) / indentWidth
		if depth > len(stack) {
			depth = len(stack)
		}
		stack = stack[:depth]

		sec := &sections[len(sections)-1]
		todo := model.Todo{Text: item, Completed: completed}
		var path []int
		if depth == 0 {
			sec.Todos = append(sec.Todos, todo)
			path = []int{len(sec.Todos) - 1}
		} else {
			parentPath := stack[depth-1]
			parent, _ := Find(sections, model.TodoRef{Section: len(sections) - 1, Path: parentPath})
			parent.Children = append(parent.Children, todo)
			path = append(append([]int(nil), parentPath...), len(parent.Children)-1)
		}
		stack = append(stack, path)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse todo markdown: %w", err)
	}
	return sections, nil
}

func parseItem(s string) (string, bool, bool) {
	for _, bullet := range []string{"- ", "* "} {
		if !strings.HasPrefix(s, bullet) {
			continue
		}
		rest := s[len(bullet):]
		switch {
		case strings.HasPrefix(rest, "[ ] "):
			return strings.TrimSpace(rest[4:]), false, true
		case strings.HasPrefix(rest, "[x] "), strings.HasPrefix(rest, "[X] "):
			return strings.TrimSpace(rest[4:]), true, true
		}
	}
	return "", false, false
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += indentWidth
		default:
			return n
		}
	}
	return n
}

// RenderMarkdown writes sections back in the form ParseMarkdown reads.
func RenderMarkdown(sections []model.Section) string {
	var sb strings.Builder
	for i, s := range sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## ")
		sb.WriteString(s.Name)
		sb.WriteString("\n\n")
		for _, t := range s.Todos {
			renderTodo(&sb, t, 0)
		}
	}
	return sb.String()
}

func renderTodo(sb *strings.Builder, t model.Todo, depth int) {
	sb.WriteString(strings.Repeat(" ", depth*indentWidth))
	if t.Completed {
		sb.WriteString("- [x] ")
	} else {
		sb.WriteString("- [ ] ")
	}
	sb.WriteString(t.Text)
	sb.WriteString("\n")
	for _, c := range t.Children {
		renderTodo(sb, c, depth+1)
	}
}
