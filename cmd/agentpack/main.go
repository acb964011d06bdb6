// Command agentpack runs markdown agent files over lists of inputs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/hupe1980/agentpack"
	"github.com/hupe1980/agentpack/config"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("agentpack"),
		kong.Description("Run markdown defined AI agents over batches of inputs."),
		kong.UsageOnError(),
		kongVars(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := kctx.Run(&globals{cli: &cli, ctx: ctx})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globals is bound into every command's Run method.
type globals struct {
	cli *CLI
	ctx context.Context
}

// workspace resolves the workspace directory and loads its configuration.
func (g *globals) workspace() (string, *config.Config, error) {
	if g.cli.Env != "" {
		if _, err := os.Stat(g.cli.Env); err == nil {
			if err := godotenv.Load(g.cli.Env); err != nil {
				return "", nil, fmt.Errorf("load %s: %w", g.cli.Env, err)
			}
		}
	}

	start := g.cli.Workspace
	if start == "" {
		start = "."
	}
	ws, err := config.FindWorkspace(start)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(ws)
	if err != nil {
		return "", nil, err
	}
	return ws, cfg, nil
}

// Run implements VersionCmd.
func (c *VersionCmd) Run(_ *globals) error {
	fmt.Printf("agentpack %s\n", agentpack.Version)
	fmt.Printf("  commit: %s\n", commit)
	fmt.Printf("  built:  %s\n", buildTime)
	return nil
}
