package testutil

import (
	"github.com/hupe1980/agentpack/core"
)

// AgentBuilder provides a fluent helper for constructing agents in tests.
// Example:
//
//	a := NewAgentBuilder("demo").User("Summarize {{ .input }}").Output(`return ai_result.content`).Build()
//
// Chain only the parts you need.
type AgentBuilder struct {
	agent core.Agent
}

// NewAgentBuilder creates a builder for an agent with the given name.
func NewAgentBuilder(name string) *AgentBuilder {
	return &AgentBuilder{agent: core.Agent{Name: name}}
}

// FilePath sets the agent file path (chainable).
func (b *AgentBuilder) FilePath(p string) *AgentBuilder { b.agent.FilePath = p; return b }

// System appends a system prompt part (chainable).
func (b *AgentBuilder) System(t string) *AgentBuilder { return b.part(core.RoleSystem, t) }

// User appends a user prompt part (chainable).
func (b *AgentBuilder) User(t string) *AgentBuilder { return b.part(core.RoleUser, t) }

// Assistant appends an assistant prompt part (chainable).
func (b *AgentBuilder) Assistant(t string) *AgentBuilder { return b.part(core.RoleAssistant, t) }

// BeforeAll sets the before_all script (chainable).
func (b *AgentBuilder) BeforeAll(code string) *AgentBuilder { b.agent.BeforeAll = code; return b }

// Data sets the data script (chainable).
func (b *AgentBuilder) Data(code string) *AgentBuilder { b.agent.Data = code; return b }

// Output sets the output script (chainable).
func (b *AgentBuilder) Output(code string) *AgentBuilder { b.agent.Output = code; return b }

// AfterAll sets the after_all script (chainable).
func (b *AgentBuilder) AfterAll(code string) *AgentBuilder { b.agent.AfterAll = code; return b }

// Model sets the agent file model option (chainable).
func (b *AgentBuilder) Model(name string) *AgentBuilder { b.agent.Options.Model = core.Ptr(name); return b }

// Concurrency sets the agent file input_concurrency option (chainable).
func (b *AgentBuilder) Concurrency(n int) *AgentBuilder {
	b.agent.Options.InputConcurrency = core.Ptr(n)
	return b
}

// Build returns the constructed agent.
func (b *AgentBuilder) Build() *core.Agent {
	a := b.agent
	a.Parts = append([]core.PromptPart(nil), b.agent.Parts...)
	a.Options = b.agent.Options.Clone()
	return &a
}

func (b *AgentBuilder) part(role core.Role, content string) *AgentBuilder {
	b.agent.Parts = append(b.agent.Parts, core.PromptPart{Role: role, Content: content})
	return b
}
