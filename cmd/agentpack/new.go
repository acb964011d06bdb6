package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/agentpack/agent"
)

// Run implements NewCmd.
func (c *NewCmd) Run(g *globals) error {
	ws, _, err := g.workspace()
	if err != nil {
		return err
	}

	content, err := agent.Scaffold(func(o *agent.ScaffoldOptions) {
		o.Name = c.Name
		o.Description = c.Description
		o.Model = c.Model
	})
	if err != nil {
		return err
	}

	dir := agentsDir(ws)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, c.Name+agent.Extension)
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
