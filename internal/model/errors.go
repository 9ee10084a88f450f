package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfig            = errors.New("config error")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrPartialExecution  = errors.New("partial execution failure")
)

// Error codes shared by the socket and MCP transports.
const (
	CodeConfig            = "CONFIG_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotFound          = "NOT_FOUND"
	CodePartialExecution  = "PARTIAL_EXECUTION_FAILURE"
	CodeInternal          = "INTERNAL_ERROR"
)

// ConfigError is a malformed or missing workflow configuration entry. It is
// fatal at startup.
type ConfigError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("config")
	if e.Path != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Path)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

type FieldError struct {
	FieldPath string
	Message   string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.FieldPath, e.Message)
}

// InvalidInputError collects every field problem found in one request.
type InvalidInputError struct {
	Errors []FieldError
}

func (e *InvalidInputError) Add(fieldPath, message string) {
	e.Errors = append(e.Errors, FieldError{FieldPath: fieldPath, Message: message})
}

func (e *InvalidInputError) HasErrors() bool {
	return e != nil && len(e.Errors) > 0
}

func (e *InvalidInputError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Error())
	}
	return "invalid input: " + strings.Join(msgs, "; ")
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// OrNil returns nil when nothing was collected, so callers can
// `return errs.OrNil()` without a typed-nil interface.
func (e *InvalidInputError) OrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

type InvalidTransitionError struct {
	From      Status
	To        Status
	Available []Status
	Msg       string
}

func (e *InvalidTransitionError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "status not reachable"
	}
	s := fmt.Sprintf("invalid transition %q → %q: %s", e.From, e.To, msg)
	if len(e.Available) > 0 {
		s += fmt.Sprintf(" (available: %s)", JoinStatuses(e.Available))
	}
	return s
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type NotFoundKind string

const (
	NotFoundTask NotFoundKind = "task"
	NotFoundTodo NotFoundKind = "todo"
)

type NotFoundError struct {
	Kind NotFoundKind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IsTaskNotFound reports whether err means the task itself is gone, as
// opposed to a stale todo reference.
func IsTaskNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Kind == NotFoundTask
}

// PartialExecutionFailure lists the writes that failed during a run that may
// still count as a success overall.
type PartialExecutionFailure struct {
	TaskID   string
	Failures []StepFailure
}

func (e *PartialExecutionFailure) Error() string {
	return fmt.Sprintf("task %q: %d update(s) failed during execution", e.TaskID, len(e.Failures))
}

func (e *PartialExecutionFailure) Is(target error) bool { return target == ErrPartialExecution }

// ErrorCode maps an error onto a transport error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrConfig):
		return CodeConfig
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrPartialExecution):
		return CodePartialExecution
	default:
		return CodeInternal
	}
}
