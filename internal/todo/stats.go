// Package todo holds the todo hierarchy helpers and the statistics engine
// shared by execution and analysis.
package todo

import (
	"math"

	"github.com/vibeflow/taskvibe/internal/model"
)

// StatsEngine computes completion statistics over a todo hierarchy.
type StatsEngine struct {
	previewSize                 int
	independentParentCompletion bool
}

func NewStatsEngine(policy model.Policy) *StatsEngine {
	policy.ApplyDefaults()
	return &StatsEngine{
		previewSize:                 policy.PreviewSize,
		independentParentCompletion: policy.IndependentParentCompletion,
	}
}

// Compute flattens the hierarchy and counts every todo once. A parent whose
// subtree still holds an open todo does not count as completed unless the
// policy allows independent parent completion. NextTodos lists the first
// open todos in document order.
func (e *StatsEngine) Compute(sections []model.Section) model.TodoStats {
	stats := model.TodoStats{NextTodos: []string{}}
	Walk(sections, func(_ model.TodoRef, t *model.Todo, _ int) bool {
		stats.Total++
		if e.IsCompleted(t) {
			stats.Completed++
		}
		if !t.Completed && len(stats.NextTodos) < e.previewSize {
			stats.NextTodos = append(stats.NextTodos, t.Text)
		}
		return true
	})
	stats.Percentage = Percentage(stats.Completed, stats.Total)
	return stats
}

// IsCompleted applies the parent-completion policy to a single todo.
func (e *StatsEngine) IsCompleted(t *model.Todo) bool {
	if !t.Completed {
		return false
	}
	return e.independentParentCompletion || descendantsCompleted(t)
}

// PreviewSize is the configured NextTodos length.
func (e *StatsEngine) PreviewSize() int { return e.previewSize }

// Percentage is round(100*completed/total), or 0 for an empty hierarchy.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(completed) / float64(total)))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
