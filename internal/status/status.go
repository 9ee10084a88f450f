// Package status implements the workflow status engine: which statuses are
// reachable from a given one, and which status a task's completion percentage
// recommends.
package status

import (
	"fmt"
	"sort"

	"github.com/vibeflow/taskvibe/internal/model"
)

// Engine indexes a WorkflowConfig's transition graph and thresholds. It never
// mutates the config and is safe for concurrent use.
type Engine struct {
	statuses []model.Status
	order    map[model.Status]int
	graph    map[model.Status]map[model.Status]bool
	bands    []model.Threshold
}

// New builds an Engine. A graph or threshold naming a status outside
// cfg.Statuses is a *model.ConfigError.
func New(cfg *model.WorkflowConfig) (*Engine, error) {
	if cfg == nil {
		return nil, &model.ConfigError{Msg: "workflow config is nil"}
	}
	if len(cfg.Statuses) == 0 {
		return nil, &model.ConfigError{Path: "statuses", Msg: "at least one status is required"}
	}

	e := &Engine{
		statuses: append([]model.Status(nil), cfg.Statuses...),
		order:    make(map[model.Status]int, len(cfg.Statuses)),
		graph:    make(map[model.Status]map[model.Status]bool, len(cfg.Transitions)),
	}
	for i, s := range cfg.Statuses {
		if _, dup := e.order[s]; dup {
			return nil, &model.ConfigError{Path: fmt.Sprintf("statuses[%d]", i), Msg: fmt.Sprintf("duplicate status %q", s)}
		}
		e.order[s] = i
	}

	for from, targets := range cfg.Transitions {
		if _, ok := e.order[from]; !ok {
			return nil, &model.ConfigError{Path: "transitions." + string(from), Msg: fmt.Sprintf("unknown status %q", from)}
		}
		allowed := make(map[model.Status]bool, len(targets))
		for i, to := range targets {
			if _, ok := e.order[to]; !ok {
				return nil, &model.ConfigError{
					Path: fmt.Sprintf("transitions.%s[%d]", from, i),
					Msg:  fmt.Sprintf("unknown status %q", to),
				}
			}
			allowed[to] = true
		}
		e.graph[from] = allowed
	}

	for i, th := range cfg.Thresholds {
		path := fmt.Sprintf("thresholds[%d]", i)
		if th.Min < 0 || th.Min > 100 {
			return nil, &model.ConfigError{Path: path + ".min", Msg: fmt.Sprintf("must be within 0..100, got %d", th.Min)}
		}
		if _, ok := e.order[th.Status]; !ok {
			return nil, &model.ConfigError{Path: path + ".status", Msg: fmt.Sprintf("unknown status %q", th.Status)}
		}
		e.bands = append(e.bands, th)
	}
	// Highest band first, so a percentage on a boundary lands in the
	// higher band.
	sort.SliceStable(e.bands, func(i, j int) bool { return e.bands[i].Min > e.bands[j].Min })

	return e, nil
}

// Known reports whether s is one of the configured statuses.
func (e *Engine) Known(s model.Status) bool {
	_, ok := e.order[s]
	return ok
}

// Statuses returns the configured statuses in declaration order.
func (e *Engine) Statuses() []model.Status {
	return append([]model.Status(nil), e.statuses...)
}

// AvailableTransitions returns the statuses reachable from current, in the
// order they are declared in the config.
func (e *Engine) AvailableTransitions(current model.Status) ([]model.Status, error) {
	if !e.Known(current) {
		return nil, &model.ConfigError{Path: "statuses", Msg: fmt.Sprintf("unknown current status %q", current)}
	}
	allowed := e.graph[current]
	out := make([]model.Status, 0, len(allowed))
	for _, s := range e.statuses {
		if allowed[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

// ValidateTransition reports whether requested is directly reachable from
// current.
func (e *Engine) ValidateTransition(current, requested model.Status) bool {
	return e.graph[current][requested]
}

// Recommend returns the status whose threshold band contains percentage. The
// recommendation is dropped when it equals current or is not reachable from it.
func (e *Engine) Recommend(percentage int, current model.Status) (model.Status, bool) {
	target, ok := e.band(percentage)
	if !ok || target == current {
		return "", false
	}
	if !e.ValidateTransition(current, target) {
		return "", false
	}
	return target, true
}

func (e *Engine) band(percentage int) (model.Status, bool) {
	for _, th := range e.bands {
		if percentage >= th.Min {
			return th.Status, true
		}
	}
	return "", false
}

// NextThreshold returns the lowest threshold strictly above percentage whose
// status is reachable from current.
func (e *Engine) NextThreshold(percentage int, current model.Status) (model.Threshold, bool) {
	for i := len(e.bands) - 1; i >= 0; i-- {
		th := e.bands[i]
		if th.Min <= percentage || th.Status == current {
			continue
		}
		if e.ValidateTransition(current, th.Status) {
			return th, true
		}
	}
	return model.Threshold{}, false
}

// Info summarises current's position in the graph. An unknown current status
// yields no available transitions.
func (e *Engine) Info(current model.Status, percentage int) model.StatusInfo {
	available, _ := e.AvailableTransitions(current)
	if available == nil {
		available = []model.Status{}
	}
	info := model.StatusInfo{Current: current, Available: available}
	if rec, ok := e.Recommend(percentage, current); ok {
		info.Recommended = rec
	}
	return info
}
