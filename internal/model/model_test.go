package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodoRef_StringAndParse(t *testing.T) {
	tests := []struct {
		text string
		ref  TodoRef
	}{
		{"0:0", TodoRef{Section: 0, Path: []int{0}}},
		{"1:0.2", TodoRef{Section: 1, Path: []int{0, 2}}},
		{"3:4.0.1", TodoRef{Section: 3, Path: []int{4, 0, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			parsed, err := ParseTodoRef(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.ref, parsed)
			assert.Equal(t, tt.text, tt.ref.String())
		})
	}
}

func TestParseTodoRef_Invalid(t *testing.T) {
	for _, s := range []string{"", "1", "a:0", "1:", "1:x", "-1:0", "1:0.-2"} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseTodoRef(s)
			assert.Error(t, err)
		})
	}
}

func TestTodoRef_ChildAndDepth(t *testing.T) {
	parent := TodoRef{Section: 2, Path: []int{1}}
	child := parent.Child(3)

	assert.Equal(t, "2:1.3", child.String())
	assert.Equal(t, 0, parent.Depth())
	assert.Equal(t, 1, child.Depth())
	// Child must not alias the parent's path.
	child.Path[0] = 9
	assert.Equal(t, []int{1}, parent.Path)
}

func TestTodoRef_JSONAsString(t *testing.T) {
	data, err := json.Marshal(TodoUpdate{Ref: TodoRef{Section: 1, Path: []int{2}}, Completed: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ref":"1:2","completed":true}`, string(data))

	var u TodoUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"ref":"0:1.1","completed":false}`), &u))
	assert.Equal(t, TodoRef{Section: 0, Path: []int{1, 1}}, u.Ref)

	// Only the string form is accepted.
	err = json.Unmarshal([]byte(`{"ref":{"Section":0,"Path":[1]},"completed":true}`), &u)
	assert.Error(t, err)

	data, err = json.Marshal(ProgressionStep{Type: StepTodo, Ref: &TodoRef{Section: 2, Path: []int{0, 3}}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ref":"2:0.3"`)
}

func TestUpdateFields(t *testing.T) {
	f := UpdateFields{FieldTitle: "x", FieldStatus: "done"}
	s, ok := f.Status()
	assert.True(t, ok)
	assert.Equal(t, Status("done"), s)

	rest := f.Without(FieldStatus)
	_, ok = rest.Status()
	assert.False(t, ok)
	assert.Len(t, f, 2, "Without must not mutate the receiver")
}

func TestPolicy_ApplyDefaults(t *testing.T) {
	var p Policy
	p.ApplyDefaults()
	assert.Equal(t, DefaultPreviewSize, p.PreviewSize)
	assert.Equal(t, DefaultFailureRatio, p.FailureRatio)
	assert.Equal(t, DefaultStaleAfter, p.StaleAfter.Std())
	assert.Equal(t, DefaultNearTransitionWindow, p.NearTransitionWindow)

	custom := Policy{PreviewSize: 5, FailureRatio: 0.2}
	custom.ApplyDefaults()
	assert.Equal(t, 5, custom.PreviewSize)
	assert.Equal(t, 0.2, custom.FailureRatio)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"36h"`), &d))
	assert.Equal(t, 36*time.Hour, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`90`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))

	out, err := json.Marshal(Duration(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, `"2h0m0s"`, string(out))
}

func TestValidateExecutionTransition(t *testing.T) {
	valid := []struct{ from, to ExecutionState }{
		{StateIdle, StateRunning},
		{StateRunning, StateCompleted},
		{StateRunning, StatePartiallyCompleted},
		{StateRunning, StateFailed},
	}
	for _, tt := range valid {
		t.Run(string(tt.from)+"→"+string(tt.to), func(t *testing.T) {
			assert.NoError(t, ValidateExecutionTransition(tt.from, tt.to))
		})
	}

	invalid := []struct{ from, to ExecutionState }{
		{StateIdle, StateCompleted},
		{StateCompleted, StateRunning},
		{StateFailed, StateRunning},
		{StateRunning, StateIdle},
	}
	for _, tt := range invalid {
		t.Run("invalid_"+string(tt.from)+"→"+string(tt.to), func(t *testing.T) {
			assert.ErrorIs(t, ValidateExecutionTransition(tt.from, tt.to), ErrInvalidTransition)
		})
	}
}

func TestErrorCode(t *testing.T) {
	inv := &InvalidInputError{}
	inv.Add("title", "required")

	tests := []struct {
		err  error
		code string
	}{
		{&ConfigError{Path: "statuses", Msg: "empty"}, CodeConfig},
		{inv, CodeInvalidInput},
		{&InvalidTransitionError{From: "todo", To: "done"}, CodeInvalidTransition},
		{&NotFoundError{Kind: NotFoundTask, ID: "t1"}, CodeNotFound},
		{&PartialExecutionFailure{TaskID: "t1"}, CodePartialExecution},
		{fmt.Errorf("fetch task: %w", &NotFoundError{Kind: NotFoundTask, ID: "t1"}), CodeNotFound},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))
		})
	}
}

func TestInvalidInputError_OrNil(t *testing.T) {
	errs := &InvalidInputError{}
	assert.NoError(t, errs.OrNil())

	errs.Add("title", "title is required")
	errs.Add("description", "description is required")
	err := errs.OrNil()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title: title is required; description: description is required")
}

func TestIsTaskNotFound(t *testing.T) {
	assert.True(t, IsTaskNotFound(fmt.Errorf("wrap: %w", &NotFoundError{Kind: NotFoundTask, ID: "a"})))
	assert.False(t, IsTaskNotFound(&NotFoundError{Kind: NotFoundTodo, ID: "0:1"}))
	assert.False(t, IsTaskNotFound(errors.New("other")))
}

func TestExecutionResult_Err(t *testing.T) {
	var r *ExecutionResult
	assert.NoError(t, r.Err())

	r = &ExecutionResult{TaskID: "t1"}
	assert.NoError(t, r.Err())

	r.Failures = []StepFailure{{Ref: "0:1", Error: "boom"}}
	err := r.Err()
	assert.ErrorIs(t, err, ErrPartialExecution)
	var pf *PartialExecutionFailure
	require.ErrorAs(t, err, &pf)
	assert.Len(t, pf.Failures, 1)
}
