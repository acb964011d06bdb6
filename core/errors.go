package core

import (
	"errors"
	"fmt"
)

var (
	// ErrScript marks failures raised while evaluating a hook script
	// (before_all, data, output, after_all).
	ErrScript = errors.New("script error")

	// ErrProtocol marks malformed or illegal control directives returned by a script.
	ErrProtocol = errors.New("protocol error")

	// ErrChat marks failures of the AI backend call (network, auth, model).
	ErrChat = errors.New("chat error")

	// ErrTask marks a per-input task that could not be joined (panic, abort).
	ErrTask = errors.New("task error")
)

// Stage names a point in the run where a script is evaluated or a directive parsed.
type Stage string

const (
	StageBeforeAll   Stage = "before_all"
	StageData        Stage = "data"
	StageInstruction Stage = "instruction"
	StageAI          Stage = "ai"
	StageOutput      Stage = "output"
	StageAfterAll    Stage = "after_all"
)

// ScriptError wraps an evaluation failure of a hook script.
type ScriptError struct {
	Stage Stage
	Err   error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s script failed: %v", e.Stage, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Is reports ErrScript so callers can branch on the category.
func (e *ScriptError) Is(target error) bool { return target == ErrScript }

// ProtocolError reports a directive that is malformed or not legal at Stage.
type ProtocolError struct {
	Stage Stage
	Msg   string
}

// NewProtocolError formats a ProtocolError for the given stage.
func NewProtocolError(stage Stage, format string, args ...any) *ProtocolError {
	return &ProtocolError{Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("protocol error: %s", e.Msg)
	}
	return fmt.Sprintf("protocol error at %s: %s", e.Stage, e.Msg)
}

// Is reports ErrProtocol so callers can branch on the category.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// ChatError wraps a failed AI backend call.
type ChatError struct {
	Model string
	Err   error
}

func (e *ChatError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("chat failed: %v", e.Err)
	}
	return fmt.Sprintf("chat with model %q failed: %v", e.Model, e.Err)
}

func (e *ChatError) Unwrap() error { return e.Err }

// Is reports ErrChat so callers can branch on the category.
func (e *ChatError) Is(target error) bool { return target == ErrChat }

// TaskError reports a per-input task that terminated abnormally.
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task for input %d failed: %v", e.Index, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Is reports ErrTask so callers can branch on the category.
func (e *TaskError) Is(target error) bool { return target == ErrTask }
