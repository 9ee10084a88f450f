package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Task struct {
	ID          string    `yaml:"id" json:"id"`
	URL         string    `yaml:"url,omitempty" json:"url,omitempty"`
	Title       string    `yaml:"title" json:"title"`
	Type        string    `yaml:"type" json:"type"`
	Status      Status    `yaml:"status" json:"status"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Sections    []Section `yaml:"sections" json:"sections"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

// Section owns its todo sequence exclusively.
type Section struct {
	Name  string `yaml:"name" json:"name"`
	Todos []Todo `yaml:"todos" json:"todos"`
}

// Todo is a node in an acyclic todo tree. Children are stored inline; there
// are no parent pointers, a TodoRef addresses any node.
type Todo struct {
	Text      string `yaml:"text" json:"text"`
	Completed bool   `yaml:"completed" json:"completed"`
	Children  []Todo `yaml:"children,omitempty" json:"children,omitempty"`
}

// TodoRef addresses a todo by section index and position path. Path[0] is the
// index in the section's todo list, Path[1] the index among that todo's
// children, and so on. In JSON and YAML a ref is always its string form.
type TodoRef struct {
	Section int
	Path    []int
}

// String formats the ref as "<section>:<i>.<j>...", e.g. "1:0.2".
func (r TodoRef) String() string {
	parts := make([]string, len(r.Path))
	for i, p := range r.Path {
		parts[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("%d:%s", r.Section, strings.Join(parts, "."))
}

// Depth is zero for top-level todos.
func (r TodoRef) Depth() int {
	if len(r.Path) == 0 {
		return 0
	}
	return len(r.Path) - 1
}

// Child returns the ref of the i-th child of r.
func (r TodoRef) Child(i int) TodoRef {
	path := make([]int, len(r.Path)+1)
	copy(path, r.Path)
	path[len(r.Path)] = i
	return TodoRef{Section: r.Section, Path: path}
}

func ParseTodoRef(s string) (TodoRef, error) {
	sec, path, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TodoRef{}, fmt.Errorf("invalid todo ref %q: expected <section>:<path>", s)
	}
	sectionIdx, err := strconv.Atoi(sec)
	if err != nil || sectionIdx < 0 {
		return TodoRef{}, fmt.Errorf("invalid todo ref %q: bad section index", s)
	}
	if path == "" {
		return TodoRef{}, fmt.Errorf("invalid todo ref %q: empty path", s)
	}
	ref := TodoRef{Section: sectionIdx}
	for _, p := range strings.Split(path, ".") {
		idx, err := strconv.Atoi(p)
		if err != nil || idx < 0 {
			return TodoRef{}, fmt.Errorf("invalid todo ref %q: bad path element %q", s, p)
		}
		ref.Path = append(ref.Path, idx)
	}
	return ref, nil
}

// MarshalText lets refs travel as plain strings in JSON and YAML payloads.
func (r TodoRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *TodoRef) UnmarshalText(text []byte) error {
	parsed, err := ParseTodoRef(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// UpdateFields carries a task field update keyed by field name. Only the
// names in UpdatableFields are accepted by validation.
type UpdateFields map[string]string

const (
	FieldTitle       = "title"
	FieldTaskType    = "taskType"
	FieldStatus      = "status"
	FieldDescription = "description"
)

var UpdatableFields = map[string]bool{
	FieldTitle:       true,
	FieldTaskType:    true,
	FieldStatus:      true,
	FieldDescription: true,
}

// Status returns the requested status and whether it was set.
func (f UpdateFields) Status() (Status, bool) {
	s, ok := f[FieldStatus]
	return Status(s), ok
}

// Without returns a copy of f minus the named field.
func (f UpdateFields) Without(name string) UpdateFields {
	out := make(UpdateFields, len(f))
	for k, v := range f {
		if k != name {
			out[k] = v
		}
	}
	return out
}

// TodoUpdate is one entry of a batch todo update.
type TodoUpdate struct {
	Ref       TodoRef `json:"ref"`
	Completed bool    `json:"completed"`
}

type TodoUpdateResult struct {
	Updated  int           `json:"updated"`
	Failed   int           `json:"failed"`
	Failures []StepFailure `json:"failures,omitempty"`
}

type TodoStats struct {
	Total      int      `json:"total"`
	Completed  int      `json:"completed"`
	Percentage int      `json:"percentage"`
	NextTodos  []string `json:"nextTodos"`
}

type StatusInfo struct {
	Current     Status   `json:"current"`
	Available   []Status `json:"available"`
	Recommended Status   `json:"recommended,omitempty"`
}

// TaskMetadata is the read model returned for a single task lookup.
type TaskMetadata struct {
	ID         string     `json:"id"`
	URL        string     `json:"url,omitempty"`
	Title      string     `json:"title"`
	Type       string     `json:"type"`
	Status     Status     `json:"status"`
	TodoStats  TodoStats  `json:"todoStats"`
	StatusInfo StatusInfo `json:"statusInfo"`
}

type TodoAnalysisResult struct {
	TaskID          string    `json:"taskId"`
	Stats           TodoStats `json:"stats"`
	Insights        []string  `json:"insights"`
	Recommendations []string  `json:"recommendations"`
	Blockers        []string  `json:"blockers"`
}

// DevSummary is a read-only development report for a task.
type DevSummary struct {
	TaskID         string    `json:"taskId"`
	Title          string    `json:"title"`
	Status         Status    `json:"status"`
	Stats          TodoStats `json:"stats"`
	CompletedTodos []string  `json:"completedTodos"`
	RemainingTodos []string  `json:"remainingTodos"`
	ChangedFiles   []string  `json:"changedFiles"`
	TestTodos      []string  `json:"testTodos"`
}
