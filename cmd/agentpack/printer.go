package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/hupe1980/agentpack/event"
	"github.com/hupe1980/agentpack/model"
)

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - indices, metadata

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	modelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // Blue

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")) // Magenta
)

// printer renders progress events for a terminal.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

func newPrinter(w io.Writer, verbose bool) *printer {
	return &printer{w: w, verbose: verbose}
}

// Handle implements event.Sink.
func (p *printer) Handle(e event.Event) error {
	line := p.format(e)
	if line == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func (p *printer) format(e event.Event) string {
	prefix := dimStyle.Render("[run]")
	if e.InputIndex != nil {
		prefix = dimStyle.Render(fmt.Sprintf("[%d]", *e.InputIndex))
	}

	switch e.Type {
	case event.TypeRunStarted:
		return titleStyle.Render("▶ "+e.Agent) + " " + dimStyle.Render(inputCount(e.Data))
	case event.TypeRunFinished:
		return successStyle.Render("✓ finished") + " " + dimStyle.Render(inputCount(e.Data))
	case event.TypeRunSkipped:
		return warnStyle.Render("⊘ run skipped") + reason(e.Message)
	case event.TypeTaskSkipped:
		return prefix + " " + warnStyle.Render("skipped") + reason(e.Message)
	case event.TypeTaskCompleted:
		return prefix + " " + successStyle.Render("done")
	case event.TypeTaskFailed:
		return prefix + " " + errorStyle.Render("failed: "+e.Message)
	case event.TypeInstruction:
		return prefix + " " + modelStyle.Render("instruction") + "\n" + indent(formatMessages(e.Data))
	case event.TypeAIResponse:
		return prefix + " " + modelStyle.Render("response") + "\n" + indent(e.Message)
	case event.TypeScriptLog:
		return prefix + " " + logStyle.Render(e.Message)
	case event.TypeTaskStarted:
		if p.verbose {
			return prefix + " " + dimStyle.Render("started")
		}
	}
	return ""
}

func inputCount(data any) string {
	if m, ok := data.(map[string]any); ok {
		return fmt.Sprintf("%v inputs", m["inputs"])
	}
	return ""
}

func formatMessages(data any) string {
	msgs, ok := data.([]model.Message)
	if !ok {
		return fmt.Sprint(data)
	}
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(string(m.Role) + ": " + m.Content)
	}
	return b.String()
}

func reason(msg string) string {
	if msg == "" {
		return ""
	}
	return " " + dimStyle.Render("("+msg+")")
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
