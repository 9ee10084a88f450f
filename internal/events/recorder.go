package events

import (
	"time"

	"github.com/vibeflow/taskvibe/internal/model"
)

// Recorder publishes execution progress on a bus. It satisfies
// execution.Observer.
type Recorder struct {
	bus *Bus
}

func NewRecorder(bus *Bus) *Recorder {
	return &Recorder{bus: bus}
}

func (r *Recorder) StepRecorded(taskID string, step model.ProgressionStep) {
	data := map[string]any{
		"type":      string(step.Type),
		"completed": step.Completed,
		"message":   step.Message,
	}
	if step.SectionName != "" {
		data["section"] = step.SectionName
	}
	if step.Ref != nil {
		data["ref"] = step.Ref.String()
	}
	if step.Error != "" {
		data["error"] = step.Error
	}
	r.bus.Publish(EventExecutionStep, taskID, data)
}

func (r *Recorder) StatusChanged(taskID string, from, to model.Status) {
	r.bus.Publish(EventStatusChanged, taskID, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
}

func (r *Recorder) ExecutionFinished(result *model.ExecutionResult, elapsed time.Duration) {
	r.bus.Publish(EventExecutionFinished, result.TaskID, map[string]any{
		"run_id":      result.RunID,
		"mode":        string(result.Mode),
		"state":       string(result.State),
		"success":     result.Success,
		"completed":   result.TodosCompleted,
		"failures":    len(result.Failures),
		"percentage":  result.FinalStats.Percentage,
		"duration_ms": elapsed.Milliseconds(),
	})
}
