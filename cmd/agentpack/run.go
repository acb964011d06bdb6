package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hupe1980/agentpack"
	"github.com/hupe1980/agentpack/agent"
	"github.com/hupe1980/agentpack/config"
	"github.com/hupe1980/agentpack/core"
	"github.com/hupe1980/agentpack/engine"
	"github.com/hupe1980/agentpack/event"
	"github.com/hupe1980/agentpack/logging"
)

const watchDebounce = 150 * time.Millisecond

// Run implements RunCmd.
func (c *RunCmd) Run(g *globals) error {
	ws, cfg, err := g.workspace()
	if err != nil {
		return err
	}
	c.applyOverrides(cfg)

	logger, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	path, err := resolveAgentPath(ws, c.Agent)
	if err != nil {
		return err
	}

	inputs, err := c.inputs(ws)
	if err != nil {
		return err
	}

	hub := event.NewHub(cfg.Events.BufferSize)
	sinks := []event.Sink{event.NewLogSink(logger), newPrinter(os.Stderr, c.Verbose)}
	if cfg.Events.NATSURL != "" {
		natsSink, closeNATS, err := event.ConnectNATS(event.NATSConfig{
			URL:     cfg.Events.NATSURL,
			Subject: cfg.Events.NATSSubject,
		})
		if err != nil {
			return err
		}
		defer closeNATS()
		sinks = append(sinks, natsSink)
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		event.Drain(context.Background(), hub.Events(), func(e event.Event, err error) {
			logger.Warn("event sink failed", "type", string(e.Type), "error", err)
		}, sinks...)
	}()
	defer func() {
		hub.Close()
		<-drained
		if n := hub.Dropped(); n > 0 {
			logger.Warn("progress events dropped", "count", n)
		}
	}()

	pack := agentpack.New(func(o *agentpack.Options) {
		o.WorkspaceDir = ws
		o.Config = cfg
		o.Publisher = hub
		o.Logger = logger
	})

	dry, err := engine.ParseDryMode(c.Dry)
	if err != nil {
		return err
	}
	runOpts := engine.RunOptions{
		Verbose:        c.Verbose,
		DryMode:        dry,
		CollectOutputs: true,
	}

	once := func() error {
		resp, err := pack.RunFile(g.ctx, path, inputs, runOpts)
		if err != nil {
			return err
		}
		return c.writeResponse(os.Stdout, resp)
	}

	if !c.Watch {
		return once()
	}
	return watch(g.ctx, path, logger, once)
}

func (c *RunCmd) applyOverrides(cfg *config.Config) {
	if c.Model != "" {
		cfg.DefaultOptions.Model = core.Ptr(c.Model)
	}
	if c.Concurrency > 0 {
		cfg.DefaultOptions.InputConcurrency = core.Ptr(c.Concurrency)
	}
}

// inputs assembles the input list: inputs file first, then literal values,
// then file references.
func (c *RunCmd) inputs(ws string) ([]any, error) {
	var inputs []any
	if c.InputsFile != "" {
		loaded, err := config.LoadInputs(c.InputsFile)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, loaded...)
	}
	for _, v := range c.Input {
		inputs = append(inputs, v)
	}
	if len(c.Files) > 0 {
		refs, err := config.FileInputs(ws, c.Files)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, refs...)
	}
	return inputs, nil
}

func (c *RunCmd) writeResponse(w io.Writer, resp *engine.Response) error {
	var out any = resp.Outputs
	if resp.AfterAll != nil {
		out = resp.AfterAll
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	if c.Output != "" {
		return os.WriteFile(c.Output, append(data, '\n'), 0o644)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// resolveAgentPath accepts a file path or a bare agent name looked up in the
// workspace agents directory.
func resolveAgentPath(ws, ref string) (string, error) {
	if _, err := os.Stat(ref); err == nil {
		return filepath.Abs(ref)
	}
	name := ref
	if !strings.HasSuffix(name, agent.Extension) {
		name += agent.Extension
	}
	candidate := filepath.Join(agentsDir(ws), name)
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("agent %q not found", ref)
	}
	return candidate, nil
}

func agentsDir(ws string) string {
	return filepath.Join(config.Dir(ws), "agents")
}

// watch runs fn once and again after every write to path until ctx is done.
func watch(ctx context.Context, path string, logger logging.Logger, fn func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched instead.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	rerun := func() {
		if err := fn(); err != nil {
			logger.Error("run failed", "agent", path, "error", err)
		}
	}
	rerun()

	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case <-timer:
			timer = nil
			logger.Info("agent changed, re-running", "agent", path)
			rerun()
		}
	}
}
