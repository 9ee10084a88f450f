package analysis

import (
	"fmt"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/todo"
)

func ruleEmpty(c *evalContext, r *model.TodoAnalysisResult) {
	if c.stats.Total > 0 {
		return
	}
	r.Insights = append(r.Insights, "Task has no todos")
	if c.task.Type != "" {
		r.Recommendations = append(r.Recommendations, fmt.Sprintf("Add todos from the %q template", c.task.Type))
		return
	}
	r.Recommendations = append(r.Recommendations, "Add todos to start tracking progress")
}

type sectionCounts struct {
	total, completed int
}

// countSections tallies each section with the same completion rule as Stats.
func (e *Engine) countSections(sections []model.Section) []sectionCounts {
	counts := make([]sectionCounts, len(sections))
	for si := range sections {
		todo.WalkSection(sections, si, func(_ model.TodoRef, t *model.Todo, _ int) bool {
			counts[si].total++
			if e.stats.IsCompleted(t) {
				counts[si].completed++
			}
			return true
		})
	}
	return counts
}

// ruleOutOfOrder fires when a fully completed section follows a section that
// has not been started.
func (e *Engine) ruleOutOfOrder(c *evalContext, r *model.TodoAnalysisResult) {
	counts := e.countSections(c.task.Sections)
	for i, early := range counts {
		if early.total == 0 || early.completed > 0 {
			continue
		}
		for j := i + 1; j < len(counts); j++ {
			late := counts[j]
			if late.total > 0 && late.completed == late.total {
				r.Insights = append(r.Insights, "Sections are completing out of declared order")
				r.Recommendations = append(r.Recommendations, fmt.Sprintf(
					"Complete remaining todos in section %q before moving to %q",
					c.task.Sections[i].Name, c.task.Sections[j].Name))
				return
			}
		}
	}
}

func (e *Engine) ruleFocusSection(c *evalContext, r *model.TodoAnalysisResult) {
	for i, sc := range e.countSections(c.task.Sections) {
		if sc.completed < sc.total {
			r.Recommendations = append(r.Recommendations, fmt.Sprintf(
				"Focus on section %q (%d of %d todos remaining)",
				c.task.Sections[i].Name, sc.total-sc.completed, sc.total))
			return
		}
	}
}

func ruleParentRollup(c *evalContext, r *model.TodoAnalysisResult) {
	var closable, reopened int
	todo.Walk(c.task.Sections, func(ref model.TodoRef, t *model.Todo, _ int) bool {
		if len(t.Children) == 0 {
			return true
		}
		childrenDone := allDone(t.Children)
		switch {
		case !t.Completed && childrenDone:
			closable++
			r.Recommendations = append(r.Recommendations, fmt.Sprintf("Mark %q (%s) complete: all of its subtasks are done", t.Text, ref))
		case t.Completed && !childrenDone:
			reopened++
			r.Recommendations = append(r.Recommendations, fmt.Sprintf("Finish the open subtasks of %q (%s) or reopen it", t.Text, ref))
		}
		return true
	})
	if closable > 0 {
		r.Insights = append(r.Insights, fmt.Sprintf("%d parent todo(s) have every subtask done", closable))
	}
	if reopened > 0 {
		r.Insights = append(r.Insights, fmt.Sprintf("%d completed parent todo(s) still have open subtasks", reopened))
	}
}

func allDone(todos []model.Todo) bool {
	for i := range todos {
		if !todos[i].Completed || !allDone(todos[i].Children) {
			return false
		}
	}
	return true
}

func ruleDepth(c *evalContext, r *model.TodoAnalysisResult) {
	maxDepth, nested := 0, 0
	todo.Walk(c.task.Sections, func(_ model.TodoRef, _ *model.Todo, depth int) bool {
		if depth > 0 {
			nested++
		}
		if depth > maxDepth {
			maxDepth = depth
		}
		return true
	})
	if nested == 0 {
		return
	}
	r.Insights = append(r.Insights, fmt.Sprintf("%d nested todo(s), up to %d level(s) deep", nested, maxDepth))
}
