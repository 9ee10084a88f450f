package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeflow/taskvibe/internal/model"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Observer(t *testing.T) {
	m := New()
	ref := model.TodoRef{Section: 0, Path: []int{0}}

	m.StepRecorded("t", model.ProgressionStep{Type: model.StepTodo, Completed: true, Ref: &ref})
	m.StepRecorded("t", model.ProgressionStep{Type: model.StepTodo, Completed: true, Ref: &ref})
	m.StepRecorded("t", model.ProgressionStep{Type: model.StepTodo, Ref: &ref, Error: "boom"})
	// Manual-mode and section steps are not writes.
	m.StepRecorded("t", model.ProgressionStep{Type: model.StepTodo, Ref: &ref})
	m.StepRecorded("t", model.ProgressionStep{Type: model.StepSection, Completed: true})
	m.StatusChanged("t", "todo", "in_progress")
	m.ExecutionFinished(&model.ExecutionResult{Mode: model.ModeAuto, State: model.StateCompleted}, 20*time.Millisecond)
	m.AnalysisPerformed()
	m.TodoUpdates(3, 1)

	body := scrape(t, m)
	assert.Contains(t, body, `taskvibe_todo_updates_total{result="updated"} 5`)
	assert.Contains(t, body, `taskvibe_todo_updates_total{result="failed"} 2`)
	assert.Contains(t, body, `taskvibe_status_transitions_total{from="todo",to="in_progress"} 1`)
	assert.Contains(t, body, `taskvibe_executions_total{mode="auto",state="completed"} 1`)
	assert.Contains(t, body, `taskvibe_execution_duration_seconds_count 1`)
	assert.Contains(t, body, `taskvibe_analyses_total 1`)
	assert.Contains(t, body, `go_goroutines`)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.AnalysisPerformed()
	assert.Contains(t, scrape(t, b), "taskvibe_analyses_total 0")
}
