// Package script evaluates agent hook scripts (before_all, data, output,
// after_all) in a sandboxed JavaScript runtime backed by goja.
//
// Every evaluation runs in a fresh VM. The script body is wrapped in a function
// so it may `return` its result; the returned value is exported to plain Go
// values (nil, bool, int64, float64, string, []any, map[string]any).
//
// Scripts see their scope as globals plus these helpers:
//
//	agentpack.skip(reason?)          // Skip directive
//	agentpack.beforeAllResponse(obj) // BeforeAllResponse directive
//	utils.file.load(path)            // read a workspace relative file
//	utils.file.save(path, content)   // write a workspace relative file
//	utils.file.exists(path)
//	console.log/info/debug/warn/error
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/hupe1980/agentpack/logging"
)

// Evaluator runs a script body against a flat scope of global variables.
type Evaluator interface {
	Evaluate(ctx context.Context, name, code string, scope map[string]any) (any, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, name, code string, scope map[string]any) (any, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, name, code string, scope map[string]any) (any, error) {
	return f(ctx, name, code, scope)
}

// Options configures the JavaScript engine.
type Options struct {
	// WorkspaceDir anchors relative paths used by utils.file helpers.
	WorkspaceDir string
	// Strict replaces eval with a function that throws.
	Strict bool
	// Logger receives console output when no console hook is attached to the context.
	Logger logging.Logger
}

// Engine is the goja backed Evaluator.
type Engine struct {
	opts Options
}

// New creates a JavaScript Engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{opts: opts}
}

// Evaluate implements Evaluator. The context interrupts a running script when it is done.
func (e *Engine) Evaluate(ctx context.Context, name, code string, scope map[string]any) (result any, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = &Error{Script: name, Message: fmt.Sprintf("panic during execution: %v", r)}
		}
	}()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if err := e.prepare(ctx, vm, name); err != nil {
		return nil, fmt.Errorf("prepare runtime: %w", err)
	}
	for k, v := range scope {
		if err := vm.Set(k, cloneValue(v)); err != nil {
			return nil, fmt.Errorf("set %s: %w", k, err)
		}
	}

	done := make(chan struct{})
	var (
		mu          sync.Mutex
		interrupted bool
	)
	go func() {
		select {
		case <-ctx.Done():
			mu.Lock()
			interrupted = true
			mu.Unlock()
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	defer close(done)

	value, err := vm.RunScript(name, wrap(code))
	if err != nil {
		mu.Lock()
		wasInterrupted := interrupted
		mu.Unlock()
		if wasInterrupted {
			return nil, ctx.Err()
		}
		return nil, newError(name, err)
	}
	return export(value), nil
}

func (e *Engine) prepare(ctx context.Context, vm *goja.Runtime, name string) error {
	if err := applySandbox(vm, e.opts.Strict); err != nil {
		return err
	}
	if err := registerProtocol(vm); err != nil {
		return err
	}
	if err := registerFiles(vm, e.opts.WorkspaceDir); err != nil {
		return err
	}
	return registerConsole(vm, consoleFor(ctx, e.opts.Logger, name))
}

func wrap(code string) string {
	return "(function() {\n" + code + "\n})()"
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// cloneValue copies maps and slices so scripts cannot mutate values shared
// between concurrent evaluations.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return nil
		}
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		if t == nil {
			return nil
		}
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = item
		}
		return out
	default:
		return v
	}
}

// Error is a JavaScript failure raised while evaluating a script.
type Error struct {
	Script  string
	Message string
	Stack   string
}

func (e *Error) Error() string {
	if e.Script == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Script, e.Message)
}

func newError(name string, err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return &Error{
			Script:  name,
			Message: exc.Error(),
			Stack:   strings.TrimSpace(exc.String()),
		}
	}
	return &Error{Script: name, Message: err.Error()}
}
