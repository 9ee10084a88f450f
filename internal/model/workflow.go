package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowConfig is the user-supplied workflow document. It is loaded once at
// startup and shared read-only by every engine.
type WorkflowConfig struct {
	Statuses      []Status            `json:"statuses"`
	DefaultStatus Status              `json:"default_status"`
	Transitions   map[Status][]Status `json:"transitions"`
	Thresholds    []Threshold         `json:"thresholds"`
	Templates     map[string]string   `json:"templates"`
	Policy        Policy              `json:"policy"`
}

// Threshold maps completion percentages >= Min to a recommended status.
type Threshold struct {
	Min    int    `json:"min"`
	Status Status `json:"status"`
}

type Policy struct {
	PreviewSize                 int      `json:"preview_size"`
	FailureRatio                float64  `json:"failure_ratio"`
	IndependentParentCompletion bool     `json:"independent_parent_completion"`
	OrderedCompletion           bool     `json:"ordered_completion"`
	BlockerMarkers              []string `json:"blocker_markers"`
	StaleAfter                  Duration `json:"stale_after"`
	NearTransitionWindow        int      `json:"near_transition_window"`
}

const (
	DefaultPreviewSize          = 3
	DefaultFailureRatio         = 0.5
	DefaultStaleAfter           = 72 * time.Hour
	DefaultNearTransitionWindow = 10
)

// ApplyDefaults fills zero-valued policy knobs.
func (p *Policy) ApplyDefaults() {
	if p.PreviewSize == 0 {
		p.PreviewSize = DefaultPreviewSize
	}
	if p.FailureRatio == 0 {
		p.FailureRatio = DefaultFailureRatio
	}
	if p.StaleAfter == 0 {
		p.StaleAfter = Duration(DefaultStaleAfter)
	}
	if p.NearTransitionWindow == 0 {
		p.NearTransitionWindow = DefaultNearTransitionWindow
	}
}

// HasStatus reports whether s is declared in the config.
func (c *WorkflowConfig) HasStatus(s Status) bool {
	for _, st := range c.Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Template returns the template text for a task type.
func (c *WorkflowConfig) Template(taskType string) (string, bool) {
	t, ok := c.Templates[taskType]
	return t, ok
}

// Duration is a time.Duration that reads and writes as a Go duration string
// ("72h") and also accepts a number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
		return nil
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}
