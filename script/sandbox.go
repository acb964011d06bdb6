package script

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// ErrEvalDisabled is thrown into scripts calling eval on a strict Engine.
var ErrEvalDisabled = errors.New("eval is not allowed in strict mode")

// hostGlobals are names scripts written for Node or browsers tend to probe.
var hostGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

func applySandbox(vm *goja.Runtime, strict bool) error {
	for _, name := range hostGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	if strict {
		return vm.Set("eval", func(goja.FunctionCall) goja.Value {
			panic(vm.NewGoError(ErrEvalDisabled))
		})
	}
	return nil
}
