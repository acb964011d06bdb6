package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/agentpack/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Evaluate(t *testing.T) {
	e := New()

	t.Run("returns exported value", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), "data", `return { n: 1 + 1, s: "x" + input }`, map[string]any{"input": "y"})
		require.NoError(t, err)
		m, ok := v.(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 2, m["n"])
		assert.Equal(t, "xy", m["s"])
	})

	t.Run("no return yields nil", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), "data", `var a = 1;`, nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("null yields nil", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), "data", `return null`, nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("arrays export as slices", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), "before_all", `return inputs.map(function (x) { return x + "!" })`,
			map[string]any{"inputs": []any{"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t, []any{"a!", "b!"}, v)
	})

	t.Run("CTX literals are visible", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), "data", `return CTX.AGENT_NAME`,
			map[string]any{"CTX": map[string]any{"AGENT_NAME": "demo"}})
		require.NoError(t, err)
		assert.Equal(t, "demo", v)
	})
}

func TestEngine_Errors(t *testing.T) {
	e := New()

	t.Run("thrown error", func(t *testing.T) {
		_, err := e.Evaluate(context.Background(), "output", `throw new Error("boom")`, nil)
		require.Error(t, err)
		var jsErr *Error
		require.ErrorAs(t, err, &jsErr)
		assert.Equal(t, "output", jsErr.Script)
		assert.Contains(t, jsErr.Message, "boom")
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := e.Evaluate(context.Background(), "data", `return {`, nil)
		var jsErr *Error
		require.ErrorAs(t, err, &jsErr)
	})

	t.Run("reference error", func(t *testing.T) {
		_, err := e.Evaluate(context.Background(), "data", `return missing.field`, nil)
		var jsErr *Error
		require.ErrorAs(t, err, &jsErr)
		assert.Contains(t, jsErr.Message, "missing")
	})
}

func TestEngine_ContextInterrupt(t *testing.T) {
	e := New()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Evaluate(ctx, "data", `while (true) {}`, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestEngine_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Evaluate(ctx, "data", `return 1`, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_FreshRuntimePerEvaluation(t *testing.T) {
	e := New()

	_, err := e.Evaluate(context.Background(), "data", `counter = 41; return counter`, nil)
	require.NoError(t, err)

	v, err := e.Evaluate(context.Background(), "data", `return typeof counter`, nil)
	require.NoError(t, err)
	assert.Equal(t, "undefined", v)
}

func TestEngine_ScopeIsNotMutated(t *testing.T) {
	shared := map[string]any{"items": []any{"a"}}

	_, err := New().Evaluate(context.Background(), "data", `shared.items[0] = "z"; shared.extra = true; return null`,
		map[string]any{"shared": shared})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"items": []any{"a"}}, shared)
}

func TestEngine_ProtocolHelpers(t *testing.T) {
	e := New()

	t.Run("skip with reason", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), "data", `return agentpack.skip("not needed")`, nil)
		require.NoError(t, err)

		sv, err := protocol.Parse(v)
		require.NoError(t, err)
		skip, ok := sv.(protocol.Skip)
		require.True(t, ok)
		require.NotNil(t, skip.Reason)
		assert.Equal(t, "not needed", *skip.Reason)
	})

	t.Run("skip without reason", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), "data", `return agentpack.skip()`, nil)
		require.NoError(t, err)

		sv, err := protocol.Parse(v)
		require.NoError(t, err)
		skip, ok := sv.(protocol.Skip)
		require.True(t, ok)
		assert.Nil(t, skip.Reason)
	})

	t.Run("before all response", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), "before_all",
			`return agentpack.beforeAllResponse({ inputs: ["x", "y"], shared: { k: 1 }, options: { temperature: 0.1 } })`, nil)
		require.NoError(t, err)

		sv, err := protocol.Parse(v)
		require.NoError(t, err)
		resp, ok := sv.(protocol.BeforeAllResponse)
		require.True(t, ok)
		assert.Equal(t, []any{"x", "y"}, resp.Inputs)
		assert.Equal(t, 0.1, resp.Options["temperature"])
	})

	t.Run("before all response rejects non objects", func(t *testing.T) {
		_, err := e.Evaluate(context.Background(), "before_all", `return agentpack.beforeAllResponse("nope")`, nil)
		var jsErr *Error
		require.ErrorAs(t, err, &jsErr)
	})
}

func TestEngine_FileHelpers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("hello"), 0o600))

	e := New(func(o *Options) { o.WorkspaceDir = dir })

	v, err := e.Evaluate(context.Background(), "output", `
		var text = utils.file.load("in.txt");
		utils.file.save("out/result.txt", text.toUpperCase());
		return [utils.file.exists("out/result.txt"), utils.file.exists("nope.txt")];
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{true, false}, v)

	b, err := os.ReadFile(filepath.Join(dir, "out", "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(b))

	_, err = e.Evaluate(context.Background(), "output", `return utils.file.load("missing.txt")`, nil)
	var jsErr *Error
	require.ErrorAs(t, err, &jsErr)
}

func TestEngine_FileHelpersStayInWorkspace(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "ws")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	outside := filepath.Join(parent, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	e := New(func(o *Options) { o.WorkspaceDir = dir })

	tests := map[string]string{
		"relative load":  `return utils.file.load("../secret.txt")`,
		"absolute load":  `return utils.file.load(outside)`,
		"relative save":  `utils.file.save("a/../../escaped.txt", "x")`,
		"absolute exist": `return utils.file.exists(outside)`,
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := e.Evaluate(context.Background(), "output", code, map[string]any{"outside": outside})
			var jsErr *Error
			require.ErrorAs(t, err, &jsErr)
			assert.Contains(t, jsErr.Message, "escapes workspace")
		})
	}
	assert.NoFileExists(t, filepath.Join(parent, "escaped.txt"))

	v, err := e.Evaluate(context.Background(), "output", `
		utils.file.save(inside, "ok");
		return utils.file.load(inside);
	`, map[string]any{"inside": filepath.Join(dir, "abs.txt")})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestResolveInside(t *testing.T) {
	root := t.TempDir()

	got, err := resolveInside(root, "a/../b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "b.txt"), got)

	got, err = resolveInside(root, "..data")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "..data"), got)

	_, err = resolveInside(root, "..")
	assert.ErrorIs(t, err, ErrOutsideWorkspace)
}

func TestEngine_Console(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	ctx := WithConsole(context.Background(), func(level, msg string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, level+":"+msg)
	})

	_, err := New().Evaluate(ctx, "data", `console.log("value", 1, { a: 1 }); console.error("bad"); return null`, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{`info:value 1 {"a":1}`, "error:bad"}, lines)
}

func TestEngine_Sandbox(t *testing.T) {
	v, err := New().Evaluate(context.Background(), "data", `return [typeof require, typeof process]`, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"undefined", "undefined"}, v)

	strict := New(func(o *Options) { o.Strict = true })
	_, err = strict.Evaluate(context.Background(), "data", `return eval("1 + 1")`, nil)
	require.Error(t, err)

	v, err = New().Evaluate(context.Background(), "data", `return eval("1 + 1")`, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestEvaluatorFunc(t *testing.T) {
	var ev Evaluator = EvaluatorFunc(func(_ context.Context, name, _ string, _ map[string]any) (any, error) {
		return name, nil
	})
	v, err := ev.Evaluate(context.Background(), "x", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
