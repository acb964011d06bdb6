package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentpack/core"
	"github.com/hupe1980/agentpack/event"
	"github.com/hupe1980/agentpack/internal/testutil"
	"github.com/hupe1980/agentpack/model"
	"github.com/hupe1980/agentpack/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, m model.Model, optFns ...func(o *Options)) (*Engine, *testutil.Recorder) {
	t.Helper()
	rec := testutil.NewRecorder()
	fns := append([]func(o *Options){func(o *Options) {
		o.Model = m
		o.Publisher = rec
		o.WorkspaceDir = t.TempDir()
	}}, optFns...)
	return New(fns...), rec
}

func inputsOf(vals ...string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func TestRun_DataSkipScenario(t *testing.T) {
	m := model.NewMockModel("mock")
	eng, rec := newTestEngine(t, m)

	agent := testutil.NewAgentBuilder("scenario").
		User("Process {{ .input }}").
		Data(`if (input === "one") { return agentpack.skip("not this one"); } return input;`).
		Output(`return "output for: " + input;`).
		Build()

	resp, err := eng.Run(context.Background(), agent, inputsOf("one", "two", "three"), RunOptions{CollectOutputs: true})
	require.NoError(t, err)

	assert.Equal(t, []any{nil, "output for: two", "output for: three"}, resp.Outputs)
	assert.Nil(t, resp.AfterAll)
	assert.Equal(t, 2, m.Calls())

	skips := rec.OfType(event.TypeTaskSkipped)
	require.Len(t, skips, 1)
	assert.Equal(t, 0, *skips[0].InputIndex)
	assert.Equal(t, "not this one", skips[0].Message)
}

func TestRun_OrderingIndependentOfCompletion(t *testing.T) {
	const n = 5
	inputs := make([]any, n)
	want := make([]any, n)
	for i := range inputs {
		inputs[i] = strconv.Itoa(i)
		want[i] = "done " + strconv.Itoa(i)
	}

	var baseline []any
	for k := 1; k <= n; k++ {
		t.Run(fmt.Sprintf("concurrency=%d", k), func(t *testing.T) {
			m := model.NewMockModel("mock")
			// later inputs answer faster so completion order differs from input order
			m.Delay = func(req model.Request) time.Duration {
				i, _ := strconv.Atoi(req.Messages[0].Content)
				return time.Duration(n-i) * 3 * time.Millisecond
			}
			eng, _ := newTestEngine(t, m)

			agent := testutil.NewAgentBuilder("order").
				User("{{ .input }}").
				Output(`return "done " + input;`).
				Concurrency(k).
				Build()

			resp, err := eng.Run(context.Background(), agent, inputs, RunOptions{CollectOutputs: true})
			require.NoError(t, err)
			assert.Equal(t, want, resp.Outputs)
			assert.Equal(t, n, m.Calls())

			if baseline == nil {
				baseline = resp.Outputs
			}
			assert.Equal(t, baseline, resp.Outputs)
		})
	}
}

// gaugeModel records the highest number of concurrent Generate calls.
type gaugeModel struct {
	inFlight atomic.Int64
	max      atomic.Int64
}

func (g *gaugeModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		cur := g.inFlight.Add(1)
		defer g.inFlight.Add(-1)
		for {
			prev := g.max.Load()
			if cur <= prev || g.max.CompareAndSwap(prev, cur) {
				break
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case <-time.After(10 * time.Millisecond):
		}
		out <- model.Response{Content: req.Messages[0].Content}
	}()
	return out, errCh
}

func (g *gaugeModel) Info() model.Info { return model.Info{Name: "gauge", Provider: "test"} }

func TestRun_ConcurrencyBound(t *testing.T) {
	for _, k := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("bound=%d", k), func(t *testing.T) {
			g := &gaugeModel{}
			eng, _ := newTestEngine(t, g)

			agent := testutil.NewAgentBuilder("bound").User("{{ .input }}").Concurrency(k).Build()

			resp, err := eng.Run(context.Background(), agent, inputsOf("a", "b", "c", "d", "e", "f", "g", "h"), RunOptions{CollectOutputs: true})
			require.NoError(t, err)
			assert.Equal(t, inputsOf("a", "b", "c", "d", "e", "f", "g", "h"), resp.Outputs)
			assert.LessOrEqual(t, g.max.Load(), int64(k))
			assert.GreaterOrEqual(t, g.max.Load(), int64(1))
		})
	}
}

func TestRun_ConcurrencyClampedToOne(t *testing.T) {
	g := &gaugeModel{}
	eng, _ := newTestEngine(t, g)

	agent := testutil.NewAgentBuilder("clamp").User("{{ .input }}").Concurrency(0).Build()

	_, err := eng.Run(context.Background(), agent, inputsOf("a", "b", "c"), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.max.Load())
}

func TestRun_EmptyInputsRunOnce(t *testing.T) {
	m := model.NewMockModel("mock")
	eng, _ := newTestEngine(t, m)

	agent := testutil.NewAgentBuilder("once").
		User("hello").
		Data(`return { seen: input === null };`).
		Output(`return data.seen;`).
		Build()

	resp, err := eng.Run(context.Background(), agent, nil, RunOptions{CollectOutputs: true})
	require.NoError(t, err)
	assert.Equal(t, []any{true}, resp.Outputs)
	assert.Equal(t, 1, m.Calls())
}

func TestRun_EmptyInputsRenderEmptyPrompt(t *testing.T) {
	m := model.NewMockModel("mock")
	eng, _ := newTestEngine(t, m)

	agent := testutil.NewAgentBuilder("nil-input").
		User("Summarize {{ .input }}{{ .data.title }}{{ .shared.x.y }}").
		Build()

	_, err := eng.Run(context.Background(), agent, nil, RunOptions{})
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 1)
	assert.Equal(t, "Summarize", reqs[0].Messages[0].Content)
}

func TestRun_BeforeAllSkip(t *testing.T) {
	m := model.NewMockModel("mock")
	eng, rec := newTestEngine(t, m)

	agent := testutil.NewAgentBuilder("skip-all").
		User("{{ .input }}").
		BeforeAll(`return agentpack.skip("nothing to do");`).
		Data(`throw new Error("must not run");`).
		AfterAll(`throw new Error("must not run");`).
		Build()

	resp, err := eng.Run(context.Background(), agent, inputsOf("a", "b"), RunOptions{CollectOutputs: true})
	require.NoError(t, err)
	assert.Empty(t, resp.Outputs)
	assert.Nil(t, resp.AfterAll)
	assert.Equal(t, 0, m.Calls())
	assert.Equal(t, 0, rec.Count(event.TypeTaskStarted))

	skipped := rec.OfType(event.TypeRunSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, "nothing to do", skipped[0].Message)
}

func TestRun_BeforeAllResponse(t *testing.T) {
	t.Run("inputs replace the supplied list", func(t *testing.T) {
		m := model.NewMockModel("mock")
		eng, _ := newTestEngine(t, m)

		agent := testutil.NewAgentBuilder("replace").
			BeforeAll(`return agentpack.beforeAllResponse({ inputs: ["x", "y", "z"] });`).
			Output(`return input + "!";`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{CollectOutputs: true})
		require.NoError(t, err)
		assert.Equal(t, inputsOf("x!", "y!", "z!"), resp.Outputs)
	})

	t.Run("null inputs keep the supplied list", func(t *testing.T) {
		eng, _ := newTestEngine(t, model.NewMockModel("mock"))

		agent := testutil.NewAgentBuilder("keep").
			BeforeAll(`return agentpack.beforeAllResponse({ inputs: null, shared: { prefix: ">" } });`).
			Output(`return shared.prefix + input;`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a", "b"), RunOptions{CollectOutputs: true})
		require.NoError(t, err)
		assert.Equal(t, inputsOf(">a", ">b"), resp.Outputs)
	})

	t.Run("empty inputs normalize to one nil input", func(t *testing.T) {
		eng, _ := newTestEngine(t, model.NewMockModel("mock"))

		agent := testutil.NewAgentBuilder("empty").
			BeforeAll(`return agentpack.beforeAllResponse({ inputs: [] });`).
			Output(`return input === null ? "nil" : "value";`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a", "b"), RunOptions{CollectOutputs: true})
		require.NoError(t, err)
		assert.Equal(t, inputsOf("nil"), resp.Outputs)
	})

	t.Run("options override resolves aliases", func(t *testing.T) {
		m := model.NewMockModel("mock")
		eng, _ := newTestEngine(t, m, func(o *Options) {
			o.Config.DefaultOptions = core.AgentOptions{ModelAliases: map[string]string{"fast": "gpt-4o-mini"}}
		})

		agent := testutil.NewAgentBuilder("override").
			User("{{ .input }}").
			Model("slow-model").
			BeforeAll(`return agentpack.beforeAllResponse({ options: { model: "fast", temperature: 0.25 } });`).
			Build()

		_, err := eng.Run(context.Background(), agent, inputsOf("a", "b"), RunOptions{})
		require.NoError(t, err)

		reqs := m.Requests()
		require.Len(t, reqs, 2)
		for _, req := range reqs {
			assert.Equal(t, "gpt-4o-mini", req.Model)
			require.NotNil(t, req.Temperature)
			assert.Equal(t, 0.25, *req.Temperature)
		}
		assert.Equal(t, "slow-model", *agent.Options.Model)
	})

	t.Run("plain value becomes shared", func(t *testing.T) {
		eng, _ := newTestEngine(t, model.NewMockModel("mock"))

		agent := testutil.NewAgentBuilder("shared").
			BeforeAll(`return { count: inputs.length };`).
			Output(`return shared.count;`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a", "b"), RunOptions{CollectOutputs: true})
		require.NoError(t, err)
		assert.EqualValues(t, []any{int64(2), int64(2)}, resp.Outputs)
	})

	t.Run("unexpected field fails before any input", func(t *testing.T) {
		m := model.NewMockModel("mock")
		eng, rec := newTestEngine(t, m)

		agent := testutil.NewAgentBuilder("invalid").
			User("{{ .input }}").
			BeforeAll(`return { _agentpack_: { kind: "BeforeAllResponse", data: { inputs: [], extra: 1 } } };`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{CollectOutputs: true})
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, core.ErrProtocol)

		var perr *core.ProtocolError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, core.StageBeforeAll, perr.Stage)
		assert.Equal(t, 0, m.Calls())
		assert.Equal(t, 0, rec.Count(event.TypeTaskStarted))
	})

	t.Run("invalid options payload", func(t *testing.T) {
		eng, _ := newTestEngine(t, model.NewMockModel("mock"))

		agent := testutil.NewAgentBuilder("bad-options").
			BeforeAll(`return agentpack.beforeAllResponse({ options: { unknown: true } });`).
			Build()

		_, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{})
		assert.ErrorIs(t, err, core.ErrProtocol)
	})
}

func TestRun_DryModes(t *testing.T) {
	t.Run("request only never chats", func(t *testing.T) {
		m := model.NewMockModel("mock")
		eng, rec := newTestEngine(t, m)

		agent := testutil.NewAgentBuilder("dry-req").
			System("You are terse.").
			User("Summarize {{ .input }}").
			Output(`throw new Error("must not run");`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a", "b"), RunOptions{DryMode: DryModeRequestOnly, CollectOutputs: true})
		require.NoError(t, err)
		assert.Equal(t, []any{nil, nil}, resp.Outputs)
		assert.Equal(t, 0, m.Calls())

		instructions := rec.OfType(event.TypeInstruction)
		require.Len(t, instructions, 2)
		msgs, ok := instructions[0].Data.([]model.Message)
		require.True(t, ok)
		require.Len(t, msgs, 2)
		assert.Equal(t, core.RoleSystem, msgs[0].Role)
	})

	t.Run("response only skips output", func(t *testing.T) {
		m := model.NewMockModel("mock")
		eng, rec := newTestEngine(t, m)

		agent := testutil.NewAgentBuilder("dry-res").
			User("{{ .input }}").
			Output(`throw new Error("must not run");`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a", "b"), RunOptions{DryMode: DryModeResponseOnly, CollectOutputs: true})
		require.NoError(t, err)
		assert.Equal(t, []any{nil, nil}, resp.Outputs)
		assert.Equal(t, 2, m.Calls())
		assert.Equal(t, 2, rec.Count(event.TypeAIResponse))
	})
}

func TestRun_OutputDefaults(t *testing.T) {
	t.Run("ai content without output script", func(t *testing.T) {
		m := model.NewMockModel("mock")
		m.AddResponse("hi", "hello back")
		eng, _ := newTestEngine(t, m)

		agent := testutil.NewAgentBuilder("content").User("{{ .input }}").Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("hi"), RunOptions{CollectOutputs: true})
		require.NoError(t, err)
		assert.Equal(t, inputsOf("hello back"), resp.Outputs)
	})

	t.Run("blank parts skip the ai call", func(t *testing.T) {
		m := model.NewMockModel("mock")
		eng, _ := newTestEngine(t, m)

		agent := testutil.NewAgentBuilder("blank").
			User("{{ .data.missing }}   ").
			Output(`return ai_result === null ? "no call" : "called";`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{CollectOutputs: true})
		require.NoError(t, err)
		assert.Equal(t, inputsOf("no call"), resp.Outputs)
		assert.Equal(t, 0, m.Calls())
	})

	t.Run("ai_result is visible to output", func(t *testing.T) {
		m := model.NewMockModel("mock")
		eng, _ := newTestEngine(t, m)

		agent := testutil.NewAgentBuilder("ai").
			User("one two").
			Model("gpt-test").
			Output(`return [ai_result.content, ai_result.model_name, ai_result.usage.prompt_tokens];`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{CollectOutputs: true})
		require.NoError(t, err)
		require.Len(t, resp.Outputs, 1)
		assert.EqualValues(t, []any{"Mock response to: one two", "gpt-test", int64(2)}, resp.Outputs[0])
	})

	t.Run("output skip keeps the slot", func(t *testing.T) {
		eng, _ := newTestEngine(t, model.NewMockModel("mock"))

		agent := testutil.NewAgentBuilder("out-skip").
			Output(`return input === "b" ? agentpack.skip() : input;`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a", "b", "c"), RunOptions{CollectOutputs: true})
		require.NoError(t, err)
		assert.Equal(t, []any{"a", nil, "c"}, resp.Outputs)
	})
}

func TestRun_Collection(t *testing.T) {
	t.Run("outputs not collected by default", func(t *testing.T) {
		eng, _ := newTestEngine(t, model.NewMockModel("mock"))

		agent := testutil.NewAgentBuilder("nocollect").Output(`return input;`).Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{})
		require.NoError(t, err)
		assert.Nil(t, resp.Outputs)
	})

	t.Run("after_all forces collection", func(t *testing.T) {
		eng, rec := newTestEngine(t, model.NewMockModel("mock"))

		agent := testutil.NewAgentBuilder("afterall").
			BeforeAll(`return agentpack.beforeAllResponse({ shared: { sep: "," } });`).
			Output(`return input.toUpperCase();`).
			AfterAll(`return { joined: outputs.join(shared.sep), count: inputs.length, agent: CTX.AGENT_NAME };`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("a", "b"), RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, inputsOf("A", "B"), resp.Outputs)
		assert.EqualValues(t, map[string]any{"joined": "A,B", "count": int64(2), "agent": "afterall"}, resp.AfterAll)
		assert.Equal(t, 1, rec.Count(event.TypeAfterAll))
	})
}

func TestRun_FailFast(t *testing.T) {
	t.Run("script error", func(t *testing.T) {
		m := model.NewMockModel("mock")
		eng, rec := newTestEngine(t, m)

		agent := testutil.NewAgentBuilder("fail").
			User("{{ .input }}").
			Output(`if (input === "bad") { throw new Error("boom"); } return input;`).
			AfterAll(`throw new Error("must not run");`).
			Build()

		resp, err := eng.Run(context.Background(), agent, inputsOf("ok", "bad", "ok2"), RunOptions{CollectOutputs: true})
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, core.ErrScript)

		var serr *core.ScriptError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, core.StageOutput, serr.Stage)

		var jsErr *script.Error
		require.ErrorAs(t, err, &jsErr)
		assert.Contains(t, jsErr.Message, "boom")
		assert.Equal(t, 1, rec.Count(event.TypeTaskFailed))
		assert.Equal(t, 0, rec.Count(event.TypeAfterAll))
	})

	t.Run("no further inputs start after a failure", func(t *testing.T) {
		var started atomic.Int64
		eval := script.EvaluatorFunc(func(_ context.Context, _, code string, scope map[string]any) (any, error) {
			started.Add(1)
			if scope["input"] == "bad" {
				return nil, errors.New("data failed")
			}
			return scope["input"], nil
		})
		eng, _ := newTestEngine(t, model.NewMockModel("mock"), func(o *Options) { o.Evaluator = eval })

		inputs := inputsOf("bad", "a", "b", "c", "d", "e")
		agent := testutil.NewAgentBuilder("stop").Data("x").Concurrency(1).Build()

		_, err := eng.Run(context.Background(), agent, inputs, RunOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrScript)
		assert.Less(t, started.Load(), int64(len(inputs)))
	})

	t.Run("running tasks are interrupted and joined", func(t *testing.T) {
		m := model.NewMockModel("mock")
		m.Delay = func(req model.Request) time.Duration {
			if req.Messages[0].Content == "slow" {
				return time.Minute
			}
			return 0
		}
		m.Err = func(req model.Request) error {
			if req.Messages[0].Content == "bad" {
				return errors.New("rate limited")
			}
			return nil
		}
		eng, _ := newTestEngine(t, m)

		agent := testutil.NewAgentBuilder("join").User("{{ .input }}").Concurrency(2).Build()

		done := make(chan error, 1)
		go func() {
			_, err := eng.Run(context.Background(), agent, inputsOf("slow", "bad"), RunOptions{})
			done <- err
		}()

		select {
		case err := <-done:
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrChat)
			var cerr *core.ChatError
			require.ErrorAs(t, err, &cerr)
		case <-time.After(5 * time.Second):
			t.Fatal("run did not return after the first failure")
		}
	})

	t.Run("panic becomes task error", func(t *testing.T) {
		eval := script.EvaluatorFunc(func(context.Context, string, string, map[string]any) (any, error) {
			panic("kaboom")
		})
		eng, _ := newTestEngine(t, model.NewMockModel("mock"), func(o *Options) { o.Evaluator = eval })

		agent := testutil.NewAgentBuilder("panic").Data("x").Build()

		_, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrTask)

		var terr *core.TaskError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, 0, terr.Index)
	})

	t.Run("missing model", func(t *testing.T) {
		eng, _ := newTestEngine(t, nil)

		agent := testutil.NewAgentBuilder("nomodel").User("{{ .input }}").Build()

		_, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{})
		assert.ErrorIs(t, err, ErrNoModel)
		assert.ErrorIs(t, err, core.ErrChat)
	})

	t.Run("before_all directive at data stage", func(t *testing.T) {
		eng, _ := newTestEngine(t, model.NewMockModel("mock"))

		agent := testutil.NewAgentBuilder("illegal").
			Data(`return agentpack.beforeAllResponse({ inputs: [] });`).
			Build()

		_, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{})
		var perr *core.ProtocolError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, core.StageData, perr.Stage)
	})
}

func TestRun_Literals(t *testing.T) {
	eng, _ := newTestEngine(t, model.NewMockModel("mock"))

	agent := testutil.NewAgentBuilder("").
		FilePath("agents/summarize.md").
		Data(`return CTX.AGENT_FILE_STEM;`).
		Output(`return [data, CTX.AGENT_NAME, CTX.AGENT_FILE_NAME];`).
		Build()

	resp, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{CollectOutputs: true})
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"summarize", "summarize", "summarize.md"}}, resp.Outputs)
}

func TestRun_ScriptLogsArePublished(t *testing.T) {
	eng, rec := newTestEngine(t, model.NewMockModel("mock"))

	agent := testutil.NewAgentBuilder("logs").Data(`console.log("processing", input); return input;`).Build()

	_, err := eng.Run(context.Background(), agent, inputsOf("a", "b"), RunOptions{})
	require.NoError(t, err)

	logs := rec.OfType(event.TypeScriptLog)
	require.Len(t, logs, 2)
	msgs := []string{logs[0].Message, logs[1].Message}
	assert.ElementsMatch(t, []string{"processing a", "processing b"}, msgs)
}

func TestRun_EventsCarryRunID(t *testing.T) {
	eng, rec := newTestEngine(t, model.NewMockModel("mock"))

	agent := testutil.NewAgentBuilder("ids").User("{{ .input }}").Build()

	_, err := eng.Run(context.Background(), agent, inputsOf("a"), RunOptions{Verbose: true})
	require.NoError(t, err)

	events := rec.Events()
	require.NotEmpty(t, events)
	runID := events[0].RunID
	assert.NotEmpty(t, runID)
	for _, e := range events {
		assert.Equal(t, runID, e.RunID)
		assert.Equal(t, "ids", e.Agent)
	}
	assert.Equal(t, event.TypeRunStarted, events[0].Type)
	assert.Equal(t, event.TypeRunFinished, events[len(events)-1].Type)
	assert.Equal(t, 1, rec.Count(event.TypeInstruction))
	assert.Equal(t, 1, rec.Count(event.TypeAIResponse))
}

func TestRun_Callbacks(t *testing.T) {
	m := model.NewMockModel("mock")
	cbs := NewCallbackManager()

	var (
		mu         sync.Mutex
		afterTasks []int
	)
	cbs.RegisterCallback(NewFunctionCallback(CallbackBeforeModel, func(_ context.Context, cc *CallbackContext) error {
		cc.Request.Temperature = core.Ptr(0.0)
		return nil
	}))
	cbs.RegisterCallback(NewFunctionCallback(CallbackAfterTask, func(_ context.Context, cc *CallbackContext) error {
		mu.Lock()
		defer mu.Unlock()
		afterTasks = append(afterTasks, cc.InputIndex)
		return nil
	}))

	eng, _ := newTestEngine(t, m, func(o *Options) { o.Callbacks = cbs })

	agent := testutil.NewAgentBuilder("cb").User("{{ .input }}").Concurrency(2).Build()

	_, err := eng.Run(context.Background(), agent, inputsOf("a", "b", "c"), RunOptions{})
	require.NoError(t, err)

	for _, req := range m.Requests() {
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 0.0, *req.Temperature)
	}
	assert.ElementsMatch(t, []int{0, 1, 2}, afterTasks)
}

func TestRun_CallbackErrorFailsTask(t *testing.T) {
	cbs := NewCallbackManager()
	cbs.RegisterCallback(NewFunctionCallback(CallbackBeforeTask, func(context.Context, *CallbackContext) error {
		return errors.New("denied")
	}))

	var onError atomic.Int64
	cbs.RegisterCallback(NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
		onError.Add(1)
		assert.Error(t, cc.Err)
		return nil
	}))

	eng, _ := newTestEngine(t, model.NewMockModel("mock"), func(o *Options) { o.Callbacks = cbs })

	_, err := eng.Run(context.Background(), testutil.NewAgentBuilder("deny").Build(), inputsOf("a"), RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	assert.Equal(t, int64(1), onError.Load())
}

func TestRun_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng, _ := newTestEngine(t, model.NewMockModel("mock"))

	_, err := eng.Run(ctx, testutil.NewAgentBuilder("canceled").User("x").Build(), inputsOf("a"), RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_NilAgent(t *testing.T) {
	eng, _ := newTestEngine(t, model.NewMockModel("mock"))
	_, err := eng.Run(context.Background(), nil, nil, RunOptions{})
	assert.Error(t, err)
}

func TestParseDryMode(t *testing.T) {
	tests := map[string]DryMode{
		"":         DryModeNone,
		"none":     DryModeNone,
		"req":      DryModeRequestOnly,
		"request":  DryModeRequestOnly,
		"RES":      DryModeResponseOnly,
		"response": DryModeResponseOnly,
	}
	for in, want := range tests {
		got, err := ParseDryMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDryMode("later")
	assert.Error(t, err)
	assert.Equal(t, "req", DryModeRequestOnly.String())
}
