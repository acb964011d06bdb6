package core

import (
	"path/filepath"
	"strings"
)

// ConfigDirName is the per-workspace directory holding config and agents.
const ConfigDirName = ".agentpack"

// Literals is the read-only path and name context handed to every script
// evaluation of a run. It is built once per run and shared by value.
type Literals struct {
	WorkspaceDir  string
	ConfigDir     string
	AgentName     string
	AgentFilePath string
	AgentFileDir  string
	AgentFileName string
	AgentFileStem string
}

// NewLiterals derives the literals for agent running inside workspaceDir.
// Relative agent paths are resolved against the workspace.
func NewLiterals(workspaceDir string, agent *Agent) Literals {
	ws := filepath.Clean(workspaceDir)
	lits := Literals{
		WorkspaceDir: ws,
		ConfigDir:    filepath.Join(ws, ConfigDirName),
	}
	if agent == nil {
		return lits
	}

	lits.AgentName = agent.Name
	if agent.FilePath == "" {
		return lits
	}

	path := agent.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(ws, path)
	}
	lits.AgentFilePath = path
	lits.AgentFileDir = filepath.Dir(path)
	lits.AgentFileName = filepath.Base(path)
	lits.AgentFileStem = strings.TrimSuffix(lits.AgentFileName, filepath.Ext(lits.AgentFileName))
	if lits.AgentName == "" {
		lits.AgentName = lits.AgentFileStem
	}
	return lits
}

// Map exposes the literals under the upper-snake keys scripts see as CTX.
func (l Literals) Map() map[string]any {
	return map[string]any{
		"WORKSPACE_DIR":   l.WorkspaceDir,
		"CONFIG_DIR":      l.ConfigDir,
		"AGENT_NAME":      l.AgentName,
		"AGENT_FILE_PATH": l.AgentFilePath,
		"AGENT_FILE_DIR":  l.AgentFileDir,
		"AGENT_FILE_NAME": l.AgentFileName,
		"AGENT_FILE_STEM": l.AgentFileStem,
	}
}
