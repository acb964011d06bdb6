package agent

import (
	"bytes"
	"fmt"
	"text/template"
)

var scaffoldTemplate = template.Must(template.New("agent").Parse("---\nname: {{ .Name }}\ndescription: {{ .Description }}\n---\n\n" +
	"# Options\n```toml\nmodel = \"{{ .Model }}\"\ninput_concurrency = 1\n```\n\n" +
	"# Data\n```js\nreturn { input: input };\n```\n\n" +
	"# System\nYou are a helpful assistant.\n\n" +
	"# Instruction\n{{ \"{{\" }} .data.input {{ \"}}\" }}\n\n" +
	"# Output\n```js\nreturn ai_result.content;\n```\n"))

// ScaffoldOptions describes a new agent file.
type ScaffoldOptions struct {
	Name        string
	Description string
	Model       string
}

// Scaffold renders the content of a new agent file.
func Scaffold(optFns ...func(o *ScaffoldOptions)) (string, error) {
	opts := ScaffoldOptions{
		Name:        "agent",
		Description: "A new agentpack agent",
		Model:       "gpt-4o-mini",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var buf bytes.Buffer
	if err := scaffoldTemplate.Execute(&buf, opts); err != nil {
		return "", fmt.Errorf("render scaffold: %w", err)
	}
	return buf.String(), nil
}
