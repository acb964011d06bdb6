package script

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dop251/goja"
	"github.com/hupe1980/agentpack/logging"
)

// ConsoleFunc receives one formatted console line from a script.
type ConsoleFunc func(level, msg string)

type consoleKey struct{}

// WithConsole attaches fn to ctx; scripts evaluated with the returned context
// send their console output to fn.
func WithConsole(ctx context.Context, fn ConsoleFunc) context.Context {
	return context.WithValue(ctx, consoleKey{}, fn)
}

func consoleFor(ctx context.Context, logger logging.Logger, name string) ConsoleFunc {
	if fn, ok := ctx.Value(consoleKey{}).(ConsoleFunc); ok && fn != nil {
		return fn
	}
	return func(level, msg string) {
		switch level {
		case "error":
			logger.Error(msg, "script", name)
		case "warn":
			logger.Warn(msg, "script", name)
		default:
			logger.Debug(msg, "script", name)
		}
	}
}

func registerConsole(vm *goja.Runtime, fn ConsoleFunc) error {
	console := vm.NewObject()
	for name, level := range map[string]string{
		"log":   "info",
		"info":  "info",
		"debug": "debug",
		"warn":  "warn",
		"error": "error",
	} {
		if err := console.Set(name, func(call goja.FunctionCall) goja.Value {
			fn(level, formatArgs(call.Arguments))
			return goja.Undefined()
		}); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatValue(arg))
	}
	return strings.Join(parts, " ")
}

func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	switch exported := v.Export().(type) {
	case string:
		return exported
	case map[string]any, []any:
		if b, err := json.Marshal(exported); err == nil {
			return string(b)
		}
	}
	return v.String()
}
