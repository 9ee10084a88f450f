package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/todo"
	yamlutil "github.com/vibeflow/taskvibe/internal/yaml"
)

const featureTemplate = `# {{title}}

{{description}}

## Design
- [ ] Write design notes
  - [ ] Review API
## Implementation
- [ ] Implement
- [ ] Add tests
`

func testWorkflow() *model.WorkflowConfig {
	return &model.WorkflowConfig{
		Statuses:      []model.Status{"todo", "in_progress", "done"},
		DefaultStatus: "todo",
		Templates:     map[string]string{"feature": featureTemplate},
	}
}

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFileStore(dir, dir, testWorkflow(),
		WithBaseURL("https://tasks.example.com/"),
		WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return s, dir
}

func TestCreateAndFetch(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, "Login", "feature", "Add OAuth login")
	require.NoError(t, err)
	assert.True(t, model.ValidateID(created.ID))
	assert.Equal(t, model.Status("todo"), created.Status)
	assert.Equal(t, "https://tasks.example.com/"+created.ID, created.URL)
	require.Len(t, created.Sections, 2)
	assert.Equal(t, "Design", created.Sections[0].Name)
	assert.Equal(t, "Review API", created.Sections[0].Todos[0].Children[0].Text)

	got, err := s.FetchTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.Sections, got.Sections)
	assert.True(t, fixedNow.Equal(got.CreatedAt))
}

func TestCreateTask_UnknownType(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateTask(context.Background(), "x", "epic", "y")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestFetchTask_NotFound(t *testing.T) {
	s, _ := newStore(t)
	for _, id := range []string{"task_1771722000_a3f2b7c1", "../etc/passwd", ""} {
		_, err := s.FetchTask(context.Background(), id)
		assert.True(t, model.IsTaskNotFound(err), id)
	}
}

func TestMutations(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	task, err := s.CreateTask(ctx, "Login", "feature", "d")
	require.NoError(t, err)

	require.NoError(t, s.SetTodoCompleted(ctx, task.ID, model.TodoRef{Section: 0, Path: []int{0, 0}}, true))
	require.NoError(t, s.SetTaskStatus(ctx, task.ID, "in_progress"))
	require.NoError(t, s.UpdateTaskFields(ctx, task.ID, model.UpdateFields{"title": "OAuth login", "description": "new"}))

	got, err := s.FetchTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.Sections[0].Todos[0].Children[0].Completed)
	assert.Equal(t, model.Status("in_progress"), got.Status)
	assert.Equal(t, "OAuth login", got.Title)
	assert.Equal(t, "new", got.Description)

	err = s.SetTodoCompleted(ctx, task.ID, model.TodoRef{Section: 5, Path: []int{0}}, true)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.False(t, model.IsTaskNotFound(err))

	err = s.SetTaskStatus(ctx, "task_1771722000_a3f2b7c1", "done")
	assert.True(t, model.IsTaskNotFound(err))
}

func TestFetchTask_ReturnsIndependentCopies(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	task, err := s.CreateTask(ctx, "Login", "feature", "d")
	require.NoError(t, err)

	a, err := s.FetchTask(ctx, task.ID)
	require.NoError(t, err)
	a.Sections[0].Todos[0].Completed = true

	b, err := s.FetchTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, b.Sections[0].Todos[0].Completed)
}

func TestFetchTask_SeesWriteDespiteInFlightRead(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	task, err := s.CreateTask(ctx, "Login", "feature", "d")
	require.NoError(t, err)
	stale, err := s.FetchTask(ctx, task.ID)
	require.NoError(t, err)

	started, release := make(chan struct{}), make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = s.reads.Do(task.ID, func() (any, error) {
			close(started)
			<-release
			return stale, nil
		})
	}()
	<-started

	require.NoError(t, s.SetTaskStatus(ctx, task.ID, "in_progress"))
	got, err := s.FetchTask(ctx, task.ID)
	close(release)
	<-done
	require.NoError(t, err)
	assert.Equal(t, model.Status("in_progress"), got.Status)
}

func TestConcurrentTodoWrites(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	task, err := s.CreateTask(ctx, "Login", "feature", "d")
	require.NoError(t, err)

	refs := []model.TodoRef{
		{Section: 0, Path: []int{0}},
		{Section: 0, Path: []int{0, 0}},
		{Section: 1, Path: []int{0}},
		{Section: 1, Path: []int{1}},
	}
	var wg sync.WaitGroup
	for _, ref := range refs {
		wg.Add(1)
		go func(ref model.TodoRef) {
			defer wg.Done()
			assert.NoError(t, s.SetTodoCompleted(ctx, task.ID, ref, true))
		}(ref)
	}
	wg.Wait()

	got, err := s.FetchTask(ctx, task.ID)
	require.NoError(t, err)
	for _, ref := range refs {
		td, err := findRef(got, ref)
		require.NoError(t, err)
		assert.True(t, td.Completed, ref.String())
	}
}

func findRef(t *model.Task, ref model.TodoRef) (*model.Todo, error) {
	cur := &t.Sections[ref.Section].Todos[ref.Path[0]]
	for _, i := range ref.Path[1:] {
		cur = &cur.Children[i]
	}
	return cur, nil
}

func TestFetchTask_RecoversCorruptFile(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()
	task, err := s.CreateTask(ctx, "Login", "feature", "d")
	require.NoError(t, err)
	require.NoError(t, s.SetTaskStatus(ctx, task.ID, "in_progress"))

	path := filepath.Join(dir, "tasks", task.ID+".yaml")
	require.NoError(t, os.WriteFile(path, []byte("sections: [\n"), 0644))

	got, err := s.FetchTask(ctx, task.ID)
	require.NoError(t, err)
	// The backup holds the version before the status change.
	assert.Equal(t, model.Status("todo"), got.Status)

	entries, err := os.ReadDir(filepath.Join(dir, yamlutil.QuarantineDir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestListTaskIDs(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()
	a, err := s.CreateTask(ctx, "A", "feature", "d")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks", "notes.yaml"), []byte("x: 1\n"), 0644))

	ids, err := s.ListTaskIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)
}

func TestRenderTemplate(t *testing.T) {
	out := RenderTemplate("## {{title}}\n- [ ] {{description}}\n", "T", "D")
	assert.Equal(t, "## T\n- [ ] D\n", out)
	sections, err := SectionsFromTemplate("no todos here", "", "")
	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestSectionsFromTemplate_LongDescription(t *testing.T) {
	tmpl := "## Context\n\n{{description}}\n\n## Build\n\n- [ ] write code\n- [ ] write tests\n"

	sections, err := SectionsFromTemplate(tmpl, "t", strings.Repeat("x", 70*1024))
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Len(t, sections[1].Todos, 2)

	_, err = SectionsFromTemplate(tmpl, "t", strings.Repeat("x", todo.MaxLineSize+1))
	var ie *model.InvalidInputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, model.FieldDescription, ie.Errors[0].FieldPath)
}

func TestCreateTask_OversizedDescriptionRejected(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateTask(context.Background(), "A", "feature", strings.Repeat("x", todo.MaxLineSize+1))
	require.ErrorIs(t, err, model.ErrInvalidInput)

	ids, err := s.ListTaskIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestApplyFields(t *testing.T) {
	task := &model.Task{Title: "a", Type: "bug", Status: "todo"}
	ApplyFields(task, model.UpdateFields{"title": "b", "taskType": "feature", "status": "done", "ignored": "x"})
	assert.Equal(t, "b", task.Title)
	assert.Equal(t, "feature", task.Type)
	assert.Equal(t, model.Status("done"), task.Status)
}
