package event

import (
	"time"

	"github.com/google/uuid"
)

// Type categorizes a progress event.
type Type string

const (
	TypeRunStarted    Type = "run_started"
	TypeRunFinished   Type = "run_finished"
	TypeRunSkipped    Type = "run_skipped"
	TypeBeforeAll     Type = "before_all"
	TypeAfterAll      Type = "after_all"
	TypeTaskStarted   Type = "task_started"
	TypeTaskSkipped   Type = "task_skipped"
	TypeTaskCompleted Type = "task_completed"
	TypeTaskFailed    Type = "task_failed"
	TypeInstruction   Type = "instruction"
	TypeAIResponse    Type = "ai_response"
	TypeScriptLog     Type = "script_log"
)

// Event is a progress record emitted during a run. After emission it should be
// treated as immutable.
//
// InputIndex is nil for run-level events (before_all, after_all, run boundaries).
type Event struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Type       Type      `json:"type"`
	Agent      string    `json:"agent,omitempty"`
	InputIndex *int      `json:"input_index,omitempty"`
	Message    string    `json:"message,omitempty"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// New creates a bare event of the given type bound to a run.
func New(runID string, typ Type) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
}

// NewTaskEvent creates an event scoped to the input at index.
func NewTaskEvent(runID string, typ Type, index int) Event {
	e := New(runID, typ)
	e.InputIndex = &index
	return e
}

// WithMessage returns a copy of e carrying msg.
func (e Event) WithMessage(msg string) Event {
	e.Message = msg
	return e
}

// WithData returns a copy of e carrying data.
func (e Event) WithData(data any) Event {
	e.Data = data
	return e
}

// IsTaskEvent reports whether the event belongs to a single input.
func (e Event) IsTaskEvent() bool { return e.InputIndex != nil }

// NewID generates a new unique identifier for events and runs.
func NewID() string { return uuid.NewString() }
