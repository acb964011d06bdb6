package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/agentpack/core"
	"github.com/hupe1980/agentpack/event"
	"github.com/hupe1980/agentpack/internal/util"
	"github.com/hupe1980/agentpack/logging"
	"github.com/hupe1980/agentpack/model"
	"github.com/hupe1980/agentpack/protocol"
	"github.com/hupe1980/agentpack/script"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrNoModel is returned as the cause of a ChatError when a run needs an AI
// call but the engine has no model configured.
var ErrNoModel = errors.New("no model configured")

// DryMode short-circuits the per-input pipeline around the AI call.
type DryMode int

const (
	// DryModeNone runs every stage.
	DryModeNone DryMode = iota
	// DryModeRequestOnly stops after rendering the instruction; no AI call is made.
	DryModeRequestOnly
	// DryModeResponseOnly stops after the AI call; the output script is not run.
	DryModeResponseOnly
)

// String returns the CLI spelling of the mode.
func (m DryMode) String() string {
	switch m {
	case DryModeRequestOnly:
		return "req"
	case DryModeResponseOnly:
		return "res"
	default:
		return "none"
	}
}

// ParseDryMode parses "req"/"request", "res"/"response" or "" / "none".
func ParseDryMode(s string) (DryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return DryModeNone, nil
	case "req", "request":
		return DryModeRequestOnly, nil
	case "res", "response":
		return DryModeResponseOnly, nil
	default:
		return DryModeNone, fmt.Errorf("unknown dry mode %q", s)
	}
}

// RunOptions are the per-invocation switches of Run.
type RunOptions struct {
	// Verbose publishes the rendered instruction and the AI response of every input.
	Verbose bool
	// DryMode short-circuits every input before or after the AI call.
	DryMode DryMode
	// CollectOutputs returns the ordered outputs even without an after_all script.
	CollectOutputs bool
}

// Response is the result of a run.
type Response struct {
	// Outputs holds one value per normalized input in input order; skipped
	// inputs are nil. It is nil when outputs were not collected.
	Outputs []any `json:"outputs,omitempty"`
	// AfterAll is the value returned by the after_all script.
	AfterAll any `json:"after_all,omitempty"`
}

// Renderer renders one prompt part against the per-input template data.
type Renderer interface {
	Render(text string, data map[string]any) (string, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(text string, data map[string]any) (string, error)

// Render implements Renderer.
func (f RendererFunc) Render(text string, data map[string]any) (string, error) { return f(text, data) }

// Config holds run defaults that sit between the built-in defaults and the
// agent file.
type Config struct {
	// DefaultOptions is the config file options layer.
	DefaultOptions core.AgentOptions
}

// Options configures an Engine instance using the functional options pattern.
//
// Example:
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Model = openai.NewModel()
//	    o.WorkspaceDir = "."
//	    o.Publisher = hub
//	})
type Options struct {
	// Config contains the config file options layer.
	Config Config

	// WorkspaceDir is the root used for literals and script file helpers.
	WorkspaceDir string

	// Model answers the AI call of every input.
	Model model.Model

	// Evaluator runs hook scripts. Defaults to the goja engine.
	Evaluator script.Evaluator

	// Renderer renders prompt parts. Defaults to text/template.
	Renderer Renderer

	// Publisher receives progress events. Defaults to a no-op publisher.
	Publisher event.Publisher

	// Callbacks are executed at task and model lifecycle points.
	Callbacks *CallbackManager

	// Tracer creates spans for the run, hooks and tasks. Defaults to the
	// global otel tracer provider.
	Tracer trace.Tracer

	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
}

// Engine runs agents against input lists.
//
// An Engine is stateless between runs and safe for concurrent use; every Run
// builds its own literals, options and shared value.
type Engine struct {
	config    Config
	workspace string
	model     model.Model
	evaluator script.Evaluator
	renderer  Renderer
	publisher event.Publisher
	callbacks *CallbackManager
	tracer    trace.Tracer
	logger    logging.Logger
}

// New creates a new Engine instance with sensible defaults.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Publisher: event.NopPublisher{},
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Evaluator == nil {
		opts.Evaluator = script.New(func(o *script.Options) {
			o.WorkspaceDir = opts.WorkspaceDir
			o.Logger = opts.Logger
		})
	}
	if opts.Renderer == nil {
		opts.Renderer = RendererFunc(util.RenderTemplate)
	}
	if opts.Tracer == nil {
		opts.Tracer = defaultTracer()
	}

	return &Engine{
		config:    opts.Config,
		workspace: opts.WorkspaceDir,
		model:     opts.Model,
		evaluator: opts.Evaluator,
		renderer:  opts.Renderer,
		publisher: opts.Publisher,
		callbacks: opts.Callbacks,
		tracer:    opts.Tracer,
		logger:    opts.Logger,
	}
}

// run is the immutable per-invocation state shared by every task.
type run struct {
	id       string
	agent    *core.Agent
	literals map[string]any
	shared   any
	opts     RunOptions
}

func (r *run) event(typ event.Type) event.Event {
	e := event.New(r.id, typ)
	e.Agent = r.agent.Name
	return e
}

func (r *run) taskEvent(typ event.Type, index int) event.Event {
	e := event.NewTaskEvent(r.id, typ, index)
	e.Agent = r.agent.Name
	return e
}

// Run executes a Before-All hook, every input through the stage pipeline with
// bounded concurrency, and an After-All hook.
//
// The first failing input cancels the run: no further inputs are started,
// running inputs are interrupted and awaited, and the error is returned without
// partial outputs. A Skip from before_all ends the run with an empty Response.
func (e *Engine) Run(ctx context.Context, agent *core.Agent, inputs []any, runOpts RunOptions) (resp *Response, err error) {
	if agent == nil {
		return nil, errors.New("agent is nil")
	}

	r := &run{
		id:    event.NewID(),
		agent: agent.WithOptions(core.MergeAll(core.DefaultOptions(), e.config.DefaultOptions, agent.Options)),
		opts:  runOpts,
	}
	r.literals = core.NewLiterals(e.workspace, agent).Map()

	ctx, span := e.tracer.Start(ctx, "agentpack.run", trace.WithAttributes(
		attribute.String("agentpack.run_id", r.id),
		attribute.String("agentpack.agent", agent.Name),
		attribute.Int("agentpack.inputs", len(inputs)),
	))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	e.logger.Info("run started", "run_id", r.id, "agent", agent.Name, "inputs", len(inputs), "dry_mode", runOpts.DryMode.String())
	e.publisher.Publish(r.event(event.TypeRunStarted).WithData(map[string]any{"inputs": len(inputs)}))

	if r.agent.HasBeforeAll() {
		var skipped bool
		inputs, skipped, err = e.beforeAll(ctx, r, inputs)
		if err != nil {
			e.logger.Error("before_all failed", "run_id", r.id, "error", err)
			return nil, err
		}
		if skipped {
			e.logger.Info("run skipped by before_all", "run_id", r.id)
			return &Response{}, nil
		}
	}

	inputs = normalizeInputs(inputs)
	span.SetAttributes(attribute.Int("agentpack.concurrency", r.agent.Options.Concurrency()))

	outputs, err := e.runTasks(ctx, r, inputs)
	if err != nil {
		e.logger.Error("run failed", "run_id", r.id, "error", err)
		return nil, err
	}

	resp = &Response{}
	if r.collecting() {
		resp.Outputs = outputs
	}

	if r.agent.HasAfterAll() {
		resp.AfterAll, err = e.afterAll(ctx, r, inputs, outputs)
		if err != nil {
			e.logger.Error("after_all failed", "run_id", r.id, "error", err)
			return nil, err
		}
	}

	e.logger.Info("run finished", "run_id", r.id, "agent", agent.Name, "inputs", len(inputs), "duration", time.Since(start))
	e.publisher.Publish(r.event(event.TypeRunFinished).WithData(map[string]any{"inputs": len(inputs)}))

	return resp, nil
}

func (r *run) collecting() bool {
	return r.opts.CollectOutputs || r.agent.HasAfterAll()
}

// beforeAll evaluates the before_all hook and applies its directive. The
// returned inputs replace the supplied ones; skipped reports a Skip directive.
func (e *Engine) beforeAll(ctx context.Context, r *run, inputs []any) ([]any, bool, error) {
	ctx, span := e.tracer.Start(ctx, "agentpack.before_all")
	defer span.End()

	value, err := e.evaluate(ctx, core.StageBeforeAll, r.agent.BeforeAll, map[string]any{
		"inputs": listOrEmpty(inputs),
		"CTX":    r.literals,
	})
	if err != nil {
		return nil, false, err
	}

	sv, err := protocol.Parse(value)
	if err != nil {
		return nil, false, err
	}

	switch v := sv.(type) {
	case protocol.Skip:
		e.publisher.Publish(r.event(event.TypeRunSkipped).WithMessage(v.ReasonOr("skipped by before_all")))
		return nil, true, nil
	case protocol.BeforeAllResponse:
		if v.Inputs != nil {
			inputs = v.Inputs
		}
		r.shared = v.Shared
		if v.Options != nil {
			override, err := core.OptionsFromValue(v.Options)
			if err != nil {
				return nil, false, err
			}
			r.agent = r.agent.WithOptions(core.Merge(r.agent.Options, override))
		}
	case protocol.Data:
		r.shared = v.Value
	default:
		return nil, false, core.NewProtocolError(core.StageBeforeAll, "unexpected directive %T", sv)
	}

	e.publisher.Publish(r.event(event.TypeBeforeAll).WithData(map[string]any{"inputs": len(inputs)}))
	return inputs, false, nil
}

func (e *Engine) afterAll(ctx context.Context, r *run, inputs, outputs []any) (any, error) {
	ctx, span := e.tracer.Start(ctx, "agentpack.after_all")
	defer span.End()

	value, err := e.evaluate(ctx, core.StageAfterAll, r.agent.AfterAll, map[string]any{
		"inputs":  inputs,
		"outputs": outputs,
		"shared":  r.shared,
		"CTX":     r.literals,
	})
	if err != nil {
		return nil, err
	}
	e.publisher.Publish(r.event(event.TypeAfterAll))
	return value, nil
}

// runTasks spawns one task per input in input order, never more than the
// effective concurrency at a time. Results are collected by the orchestrator
// only and re-sorted by index.
func (e *Engine) runTasks(ctx context.Context, r *run, inputs []any) ([]any, error) {
	results := make(chan StageResult, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.agent.Options.Concurrency())

	for i, input := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = &core.TaskError{Index: i, Err: fmt.Errorf("panic: %v", rec)}
				}
				if err != nil {
					e.taskFailed(ctx, r, i, input, err)
				}
			}()

			res, err := e.runStages(gctx, r, i, input)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			results <- res
			return nil
		})
	}

	err := g.Wait()
	close(results)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !r.collecting() {
		return nil, nil
	}

	acc := make([]StageResult, 0, len(inputs))
	for res := range results {
		acc = append(acc, res)
	}
	sort.Slice(acc, func(a, b int) bool { return acc[a].Index < acc[b].Index })

	outputs := make([]any, len(inputs))
	for _, res := range acc {
		if !res.Skipped {
			outputs[res.Index] = res.Value
		}
	}
	return outputs, nil
}

func (e *Engine) taskFailed(ctx context.Context, r *run, index int, input any, err error) {
	if errors.Is(err, context.Canceled) {
		// interrupted by another failing task
		return
	}
	e.logger.Error("task failed", "run_id", r.id, "input_index", index, "error", err)
	e.publisher.Publish(r.taskEvent(event.TypeTaskFailed, index).WithMessage(err.Error()))
	_ = e.callbacks.ExecuteCallbacks(ctx, CallbackOnError, &CallbackContext{
		RunID:      r.id,
		Agent:      r.agent,
		InputIndex: index,
		Input:      input,
		Err:        err,
	})
}

func (e *Engine) evaluate(ctx context.Context, stage core.Stage, code string, scope map[string]any) (any, error) {
	value, err := e.evaluator.Evaluate(ctx, string(stage), code, scope)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &core.ScriptError{Stage: stage, Err: err}
	}
	return value, nil
}

// normalizeInputs turns an empty input list into a single nil input so the
// pipeline runs exactly once.
func normalizeInputs(inputs []any) []any {
	if len(inputs) == 0 {
		return []any{nil}
	}
	return inputs
}

func listOrEmpty(inputs []any) []any {
	if inputs == nil {
		return []any{}
	}
	return inputs
}
