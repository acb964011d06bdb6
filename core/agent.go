package core

import "strings"

// Role tags a prompt part with the chat role it is sent as.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PromptPart is one instruction template segment. Content is rendered per input
// before being sent to the model.
type PromptPart struct {
	Role    Role
	Content string
}

// Agent is the immutable definition executed against a list of inputs.
//
// Script fields hold hook script bodies; an empty string means the hook is
// absent. Agents are shared by pointer across concurrent tasks and must never
// be mutated after construction; use WithOptions to derive a variant.
type Agent struct {
	Name     string
	FilePath string
	Parts    []PromptPart

	BeforeAll string
	Data      string
	Output    string
	AfterAll  string

	Options AgentOptions
}

// WithOptions returns a copy of the agent carrying opts. The receiver is left untouched.
func (a *Agent) WithOptions(opts AgentOptions) *Agent {
	na := *a
	na.Parts = append([]PromptPart(nil), a.Parts...)
	na.Options = opts.Clone()
	return &na
}

// HasBeforeAll reports whether a before_all script is defined.
func (a *Agent) HasBeforeAll() bool { return strings.TrimSpace(a.BeforeAll) != "" }

// HasData reports whether a data script is defined.
func (a *Agent) HasData() bool { return strings.TrimSpace(a.Data) != "" }

// HasOutput reports whether an output script is defined.
func (a *Agent) HasOutput() bool { return strings.TrimSpace(a.Output) != "" }

// HasAfterAll reports whether an after_all script is defined.
func (a *Agent) HasAfterAll() bool { return strings.TrimSpace(a.AfterAll) != "" }
