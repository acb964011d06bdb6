package main

import (
	"github.com/alecthomas/kong"
	"github.com/hupe1980/agentpack"
)

// CLI defines the command-line interface.
type CLI struct {
	Workspace string `short:"w" help:"Workspace directory (defaults to the nearest directory holding .agentpack)"`
	Env       string `default:".env" help:"Dotenv file loaded before running"`

	Run     RunCmd     `cmd:"" help:"Run an agent over inputs"`
	New     NewCmd     `cmd:"" help:"Scaffold a new agent file"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// RunCmd runs an agent file.
type RunCmd struct {
	Agent       string   `arg:"" help:"Agent file path or agent name under .agentpack/agents"`
	Input       []string `short:"i" help:"Literal input value (repeatable)"`
	Files       []string `short:"f" help:"Glob of files passed as inputs (repeatable)"`
	InputsFile  string   `name:"inputs-file" help:"YAML or JSON file holding the input list"`
	Concurrency int      `short:"c" help:"Override input_concurrency"`
	Model       string   `short:"m" help:"Override the model"`
	Dry         string   `enum:"none,req,res" default:"none" help:"Dry mode: req prints requests without calling the model, res prints responses"`
	Verbose     bool     `short:"v" help:"Print instructions and AI responses"`
	Watch       bool     `help:"Re-run whenever the agent file changes"`
	Output      string   `short:"o" help:"Write the collected outputs as JSON to this file"`
}

// NewCmd scaffolds an agent file.
type NewCmd struct {
	Name        string `arg:"" help:"Agent name"`
	Description string `short:"d" help:"Agent description"`
	Model       string `short:"m" help:"Model written into the options block"`
	Force       bool   `help:"Overwrite an existing file"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": agentpack.Version,
	}
}
