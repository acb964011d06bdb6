package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/hupe1980/agentpack/protocol"
)

// registerProtocol installs the `agentpack` global with directive builders.
func registerProtocol(vm *goja.Runtime) error {
	obj := vm.NewObject()

	if err := obj.Set("skip", func(call goja.FunctionCall) goja.Value {
		var reason *string
		if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			s := arg.String()
			reason = &s
		}
		return vm.ToValue(protocol.SkipValue(reason))
	}); err != nil {
		return err
	}

	if err := obj.Set("beforeAllResponse", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) || goja.IsNull(arg) {
			return vm.ToValue(protocol.BeforeAllResponseValue(map[string]any{}))
		}
		data, ok := arg.Export().(map[string]any)
		if !ok {
			panic(vm.NewTypeError("beforeAllResponse expects an object, got %s", arg.ExportType()))
		}
		return vm.ToValue(protocol.BeforeAllResponseValue(data))
	}); err != nil {
		return err
	}

	return vm.Set("agentpack", obj)
}

// ErrOutsideWorkspace is raised by the file helpers for paths that leave the
// workspace directory.
var ErrOutsideWorkspace = errors.New("path escapes workspace")

// resolveInside joins p onto root and rejects results outside root. Absolute
// paths are accepted when they point into root.
func resolveInside(root, p string) (string, error) {
	if root == "" {
		root = "."
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(base, full)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(base, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
	}
	return full, nil
}

// registerFiles installs `utils.file` helpers resolving paths against root.
func registerFiles(vm *goja.Runtime, root string) error {
	throw := func(err error) {
		panic(vm.NewGoError(err))
	}
	resolve := func(p string) string {
		full, err := resolveInside(root, p)
		if err != nil {
			throw(err)
		}
		return full
	}

	file := vm.NewObject()
	if err := file.Set("load", func(path string) string {
		b, err := os.ReadFile(resolve(path))
		if err != nil {
			throw(fmt.Errorf("load %s: %w", path, err))
		}
		return string(b)
	}); err != nil {
		return err
	}
	if err := file.Set("save", func(path, content string) {
		full := resolve(path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			throw(fmt.Errorf("save %s: %w", path, err))
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			throw(fmt.Errorf("save %s: %w", path, err))
		}
	}); err != nil {
		return err
	}
	if err := file.Set("exists", func(path string) bool {
		_, err := os.Stat(resolve(path))
		return err == nil
	}); err != nil {
		return err
	}

	utils := vm.NewObject()
	if err := utils.Set("file", file); err != nil {
		return err
	}
	return vm.Set("utils", utils)
}
