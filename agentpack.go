// Package agentpack provides a high-level façade over the engine: it wires the
// workspace configuration, the model providers, the script runtime and the
// event publisher so that applications can run agent files with a few lines:
//
//	p := agentpack.New(func(o *agentpack.Options) { o.WorkspaceDir = "." })
//	resp, err := p.RunFile(ctx, ".agentpack/agents/summarize.md", inputs, engine.RunOptions{CollectOutputs: true})
//
// All defaults are safe for local development; API keys are read from the
// environment by the provider SDKs.
package agentpack

import (
	"context"
	"path/filepath"

	"github.com/hupe1980/agentpack/agent"
	"github.com/hupe1980/agentpack/config"
	"github.com/hupe1980/agentpack/core"
	"github.com/hupe1980/agentpack/engine"
	"github.com/hupe1980/agentpack/event"
	"github.com/hupe1980/agentpack/logging"
	"github.com/hupe1980/agentpack/model"
	"github.com/hupe1980/agentpack/model/anthropic"
	"github.com/hupe1980/agentpack/model/openai"
	"github.com/hupe1980/agentpack/script"
)

// Version is the agentpack release.
const Version = "0.1.0"

// Options configures the AgentPack instance.
type Options struct {
	// WorkspaceDir anchors relative agent paths, literals and script file
	// helpers. Defaults to the current directory.
	WorkspaceDir string

	// Config is the workspace configuration (defaults to config.Default()).
	Config *config.Config

	// Model answers AI calls (defaults to a router over OpenAI and Anthropic).
	Model model.Model

	// Evaluator runs hook scripts (defaults to the goja runtime).
	Evaluator script.Evaluator

	// Publisher receives progress events (defaults to a no-op publisher).
	Publisher event.Publisher

	// Callbacks are executed at task and model lifecycle points.
	Callbacks *engine.CallbackManager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentPack is the high-level façade around engine.Engine.
type AgentPack struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new AgentPack instance with optional overrides.
func New(optFns ...func(o *Options)) *AgentPack {
	opts := Options{
		WorkspaceDir: ".",
		Publisher:    event.NopPublisher{},
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Model == nil {
		opts.Model = NewDefaultModel(opts.Config.Providers)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = engine.Config{DefaultOptions: opts.Config.DefaultOptions}
		o.WorkspaceDir = opts.WorkspaceDir
		o.Model = opts.Model
		o.Evaluator = opts.Evaluator
		o.Publisher = opts.Publisher
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})

	return &AgentPack{opts: opts, engine: e}
}

// NewDefaultModel builds a router that sends claude* models to Anthropic and
// everything else to the OpenAI compatible endpoint.
func NewDefaultModel(cfg config.ProvidersConfig) model.Model {
	oa := openai.NewModel(func(o *openai.Options) {
		o.BaseURL = cfg.OpenAIBaseURL
		if cfg.MaxTokens > 0 {
			o.MaxCompletionTokens = cfg.MaxTokens
		}
	})
	an := anthropic.NewModel(func(o *anthropic.Options) {
		if cfg.MaxTokens > 0 {
			o.MaxTokens = cfg.MaxTokens
		}
	})
	return model.NewRouter(func(o *model.RouterOptions) {
		o.Providers[model.ProviderOpenAI] = oa
		o.Providers[model.ProviderAnthropic] = an
	})
}

// Run executes an agent against inputs.
func (p *AgentPack) Run(ctx context.Context, a *core.Agent, inputs []any, runOpts engine.RunOptions) (*engine.Response, error) {
	return p.engine.Run(ctx, a, inputs, runOpts)
}

// RunFile loads the agent file at path (relative to the workspace) and runs it.
func (p *AgentPack) RunFile(ctx context.Context, path string, inputs []any, runOpts engine.RunOptions) (*engine.Response, error) {
	a, err := p.LoadAgent(path)
	if err != nil {
		return nil, err
	}
	return p.engine.Run(ctx, a, inputs, runOpts)
}

// LoadAgent loads an agent file, resolving relative paths against the workspace.
func (p *AgentPack) LoadAgent(path string) (*core.Agent, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.opts.WorkspaceDir, path)
	}
	return agent.Load(path)
}

// Engine returns the underlying engine.
func (p *AgentPack) Engine() *engine.Engine { return p.engine }
