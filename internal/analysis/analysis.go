// Package analysis derives insights, recommendations and blockers from a
// task's todo hierarchy. Every rule is deterministic: the same task, config
// and clock always yield the same result.
package analysis

import (
	"fmt"
	"regexp"
	"time"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/status"
	"github.com/vibeflow/taskvibe/internal/todo"
)

// Rule names, in evaluation order.
const (
	RuleEmpty              = "empty"
	RuleNoProgress         = "no_progress"
	RuleNearTransition     = "near_transition"
	RuleReadyForTransition = "ready_for_transition"
	RuleOutOfOrder         = "out_of_order"
	RuleFocusSection       = "focus_section"
	RuleBlockerMarker      = "blocker_marker"
	RuleParentRollup       = "parent_rollup"
	RuleOrderedChildren    = "ordered_children"
	RuleDepth              = "depth"
)

type rule struct {
	name      string
	hierarchy bool
	eval      func(*evalContext, *model.TodoAnalysisResult)
}

type Engine struct {
	status   *status.Engine
	stats    *todo.StatsEngine
	policy   model.Policy
	blockers []*regexp.Regexp
	rules    []rule
	now      func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now for the no_progress age check.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New compiles the policy's blocker markers. An invalid expression is a
// *model.ConfigError.
func New(statusEng *status.Engine, stats *todo.StatsEngine, policy model.Policy, opts ...Option) (*Engine, error) {
	policy.ApplyDefaults()
	e := &Engine{
		status: statusEng,
		stats:  stats,
		policy: policy,
		now:    time.Now,
	}
	for i, expr := range policy.BlockerMarkers {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, &model.ConfigError{Path: fmt.Sprintf("policy.blocker_markers[%d]", i), Msg: "invalid regular expression", Err: err}
		}
		e.blockers = append(e.blockers, re)
	}
	e.rules = []rule{
		{name: RuleEmpty, eval: ruleEmpty},
		{name: RuleNoProgress, eval: e.ruleNoProgress},
		{name: RuleNearTransition, eval: e.ruleNearTransition},
		{name: RuleReadyForTransition, eval: e.ruleReadyForTransition},
		{name: RuleOutOfOrder, eval: e.ruleOutOfOrder},
		{name: RuleFocusSection, eval: e.ruleFocusSection},
		{name: RuleBlockerMarker, eval: e.ruleBlockerMarker},
		{name: RuleParentRollup, hierarchy: true, eval: ruleParentRollup},
		{name: RuleOrderedChildren, hierarchy: true, eval: e.ruleOrderedChildren},
		{name: RuleDepth, hierarchy: true, eval: ruleDepth},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Analyze evaluates every rule against task. includeHierarchy enables the
// parent/child rules only; Stats are identical either way.
func (e *Engine) Analyze(task *model.Task, includeHierarchy bool) model.TodoAnalysisResult {
	result := model.TodoAnalysisResult{
		TaskID:          task.ID,
		Stats:           e.stats.Compute(task.Sections),
		Insights:        []string{},
		Recommendations: []string{},
		Blockers:        []string{},
	}
	ctx := &evalContext{task: task, stats: result.Stats, now: e.now()}
	for _, r := range e.rules {
		if r.hierarchy && !includeHierarchy {
			continue
		}
		r.eval(ctx, &result)
	}
	return result
}

type evalContext struct {
	task  *model.Task
	stats model.TodoStats
	now   time.Time
}

func (e *Engine) ruleNoProgress(c *evalContext, r *model.TodoAnalysisResult) {
	if c.stats.Total == 0 || c.stats.Completed > 0 || c.task.CreatedAt.IsZero() {
		return
	}
	age := c.now.Sub(c.task.CreatedAt)
	if age < e.policy.StaleAfter.Std() {
		return
	}
	r.Insights = append(r.Insights, fmt.Sprintf("No progress recorded in %s", age.Truncate(time.Hour)))
	if len(c.stats.NextTodos) > 0 {
		r.Recommendations = append(r.Recommendations, fmt.Sprintf("Start with %q", c.stats.NextTodos[0]))
	}
}

func (e *Engine) ruleNearTransition(c *evalContext, r *model.TodoAnalysisResult) {
	if c.stats.Total == 0 {
		return
	}
	th, ok := e.status.NextThreshold(c.stats.Percentage, c.task.Status)
	if !ok || th.Min-c.stats.Percentage > e.policy.NearTransitionWindow {
		return
	}
	needed := todosToReach(th.Min, c.stats.Completed, c.stats.Total)
	if needed == 0 {
		return
	}
	r.Insights = append(r.Insights, fmt.Sprintf("Task is near a status transition: %d%% of %d%% needed for %q", c.stats.Percentage, th.Min, th.Status))
	r.Recommendations = append(r.Recommendations, fmt.Sprintf("Complete %d more todo(s) to reach %q", needed, th.Status))
}

// todosToReach returns the fewest extra completions that lift the rounded
// percentage to at least target, or 0 when it cannot be reached.
func todosToReach(target, completed, total int) int {
	for n := 1; completed+n <= total; n++ {
		if todo.Percentage(completed+n, total) >= target {
			return n
		}
	}
	return 0
}

func (e *Engine) ruleReadyForTransition(c *evalContext, r *model.TodoAnalysisResult) {
	next, ok := e.status.Recommend(c.stats.Percentage, c.task.Status)
	if !ok {
		return
	}
	r.Insights = append(r.Insights, fmt.Sprintf("Progress of %d%% qualifies for status %q", c.stats.Percentage, next))
	r.Recommendations = append(r.Recommendations, fmt.Sprintf("Move task status from %q to %q", c.task.Status, next))
}

func (e *Engine) ruleBlockerMarker(c *evalContext, r *model.TodoAnalysisResult) {
	if len(e.blockers) == 0 {
		return
	}
	todo.Walk(c.task.Sections, func(ref model.TodoRef, t *model.Todo, _ int) bool {
		if t.Completed {
			return true
		}
		for _, re := range e.blockers {
			if re.MatchString(t.Text) {
				r.Blockers = append(r.Blockers, fmt.Sprintf("Todo %q (%s) is marked as blocked", t.Text, ref))
				break
			}
		}
		return true
	})
}

func (e *Engine) ruleOrderedChildren(c *evalContext, r *model.TodoAnalysisResult) {
	if !e.policy.OrderedCompletion {
		return
	}
	todo.Walk(c.task.Sections, func(ref model.TodoRef, t *model.Todo, _ int) bool {
		if t.Completed {
			return true
		}
		if child, ok := todo.FirstOpenChild(t); ok {
			r.Blockers = append(r.Blockers, fmt.Sprintf("%q (%s) is blocked by %q", t.Text, ref, child.Text))
		}
		return true
	})
}
