package model

type ModeType string

const (
	ModeAuto   ModeType = "auto"
	ModeManual ModeType = "manual"
)

type ExecutionMode struct {
	Type             ModeType `json:"type"`
	ShowProgress     bool     `json:"showProgress"`
	AutoUpdateStatus bool     `json:"autoUpdateStatus"`
}

// DefaultExecutionMode is what the execute_task tool runs with.
func DefaultExecutionMode() ExecutionMode {
	return ExecutionMode{Type: ModeAuto, ShowProgress: true, AutoUpdateStatus: true}
}

type ExecutionState string

const (
	StateIdle               ExecutionState = "idle"
	StateRunning            ExecutionState = "running"
	StateCompleted          ExecutionState = "completed"
	StatePartiallyCompleted ExecutionState = "partially_completed"
	StateFailed             ExecutionState = "failed"
)

var terminalExecutionStates = map[ExecutionState]bool{
	StateCompleted:          true,
	StatePartiallyCompleted: true,
	StateFailed:             true,
}

// Execution state machine: idle → running → terminal.
var validExecutionTransitions = map[ExecutionState]map[ExecutionState]bool{
	StateIdle: {
		StateRunning: true,
	},
	StateRunning: {
		StateCompleted:          true,
		StatePartiallyCompleted: true,
		StateFailed:             true,
	},
}

func IsExecutionTerminal(s ExecutionState) bool {
	return terminalExecutionStates[s]
}

func ValidateExecutionTransition(from, to ExecutionState) error {
	if IsExecutionTerminal(from) {
		return &InvalidTransitionError{From: Status(from), To: Status(to), Msg: "execution already finished"}
	}
	allowed, ok := validExecutionTransitions[from]
	if !ok {
		return &InvalidTransitionError{From: Status(from), To: Status(to), Msg: "unknown execution state"}
	}
	if !allowed[to] {
		return &InvalidTransitionError{From: Status(from), To: Status(to), Msg: "invalid execution transition"}
	}
	return nil
}

type StepType string

const (
	StepSection StepType = "section"
	StepTodo    StepType = "todo"
)

type ProgressionStep struct {
	Completed   bool     `json:"completed"`
	Message     string   `json:"message"`
	Type        StepType `json:"type"`
	SectionName string   `json:"sectionName,omitempty"`
	TodoText    string   `json:"todoText,omitempty"`
	Ref         *TodoRef `json:"ref,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// StepFailure records one failed write during a run or batch update.
type StepFailure struct {
	Ref   string `json:"ref,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error"`
}

type StatusUpdate struct {
	From    Status `json:"from"`
	To      Status `json:"to"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

type ExecutionResult struct {
	TaskID            string            `json:"taskId"`
	RunID             string            `json:"runId,omitempty"`
	Mode              ModeType          `json:"mode"`
	State             ExecutionState    `json:"state"`
	Success           bool              `json:"success"`
	FinalStats        TodoStats         `json:"finalStats"`
	Progression       []ProgressionStep `json:"progression"`
	SectionsProcessed int               `json:"sectionsProcessed,omitempty"`
	TotalSections     int               `json:"totalSections,omitempty"`
	TodosCompleted    int               `json:"todosCompleted,omitempty"`
	TotalTodos        int               `json:"totalTodos,omitempty"`
	StatusUpdate      *StatusUpdate     `json:"statusUpdate,omitempty"`
	Failures          []StepFailure     `json:"failures,omitempty"`
	Message           string            `json:"message"`
}

// Err reports the run's recorded failures as a *PartialExecutionFailure, or
// nil when every write succeeded.
func (r *ExecutionResult) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	return &PartialExecutionFailure{TaskID: r.TaskID, Failures: r.Failures}
}
