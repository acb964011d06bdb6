package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentpack/core"
	"github.com/hupe1980/agentpack/model"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Callbacks run synchronously on the goroutine of the stage that triggers them.
// A callback returning an error fails the task (or the run) like any other
// stage error.
type CallbackType string

const (
	// CallbackBeforeTask is triggered before the data stage of an input.
	CallbackBeforeTask CallbackType = "before_task"

	// CallbackAfterTask is triggered after an input completed or was skipped.
	CallbackAfterTask CallbackType = "after_task"

	// CallbackBeforeModel is triggered before the AI call. Request may be
	// modified in place.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel is triggered after a successful AI call.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackOnError is triggered when a task fails. Errors returned by
	// OnError callbacks are ignored.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the information available at a lifecycle point.
// Fields that do not apply to a callback type are left zero.
type CallbackContext struct {
	RunID        string
	Agent        *core.Agent
	InputIndex   int
	Input        any
	CallbackType CallbackType

	// Request is set for before_model and after_model.
	Request *model.Request
	// Response is set for after_model.
	Response *model.Response
	// Result is set for after_task.
	Result *StageResult
	// Err is set for on_error.
	Err error
}

// Callback is an execution lifecycle hook.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic. Returning an error fails the task.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackBeforeModel, func(ctx context.Context, cc *CallbackContext) error {
//	    cc.Request.Temperature = core.Ptr(0.0)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes lifecycle points to registered callbacks.
//
// Callbacks are executed in registration order; the first error stops the
// chain. The manager is safe for concurrent use, tasks of one run execute
// callbacks in parallel.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
// A nil manager executes nothing.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle points to a logging function.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackAfterModel, func(msg string) {
//	    log.Printf("[ENGINE] %s", msg)
//	})
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle point. A nil logger function is a no-op.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	agentName := ""
	if callbackCtx.Agent != nil {
		agentName = callbackCtx.Agent.Name
	}
	message := fmt.Sprintf("[%s] Agent: %s, Input: %d", c.callbackType, agentName, callbackCtx.InputIndex)
	if callbackCtx.Err != nil {
		message += fmt.Sprintf(", Error: %v", callbackCtx.Err)
	}
	c.logger(message)
	return nil
}
