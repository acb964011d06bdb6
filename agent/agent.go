package agent

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hupe1980/agentpack/core"
	"gopkg.in/yaml.v3"
)

// Extension is the file extension of agent files.
const Extension = ".md"

// ErrUnclosedFrontmatter is returned when the leading --- block never ends.
var ErrUnclosedFrontmatter = errors.New("unclosed frontmatter")

// Meta is the optional YAML frontmatter of an agent file.
type Meta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

type sectionKind int

const (
	sectionIgnored sectionKind = iota
	sectionOptions
	sectionBeforeAll
	sectionData
	sectionOutput
	sectionAfterAll
	sectionSystem
	sectionUser
	sectionAssistant
)

var headings = map[string]sectionKind{
	"options":     sectionOptions,
	"beforeall":   sectionBeforeAll,
	"data":        sectionData,
	"output":      sectionOutput,
	"afterall":    sectionAfterAll,
	"system":      sectionSystem,
	"instruction": sectionUser,
	"user":        sectionUser,
	"assistant":   sectionAssistant,
}

// Load reads and parses the agent file at path. The agent is named after the
// frontmatter name, falling back to the file stem.
func Load(path string) (*core.Agent, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent file: %w", err)
	}

	a, err := Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	a.FilePath = path
	if a.Name == "" {
		a.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return a, nil
}

// Parse parses agent file content.
func Parse(content string) (*core.Agent, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	frontmatter, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	var meta Meta
	if frontmatter != "" {
		if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
			return nil, fmt.Errorf("invalid frontmatter: %w", err)
		}
	}

	a := &core.Agent{Name: meta.Name}
	for _, s := range splitSections(body) {
		if err := apply(a, s); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// ParseMeta returns only the frontmatter of an agent file.
func ParseMeta(content string) (Meta, error) {
	var meta Meta
	frontmatter, _, err := splitFrontmatter(strings.ReplaceAll(content, "\r\n", "\n"))
	if err != nil || frontmatter == "" {
		return meta, err
	}
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return meta, fmt.Errorf("invalid frontmatter: %w", err)
	}
	return meta, nil
}

type section struct {
	kind    sectionKind
	title   string
	content string
}

func apply(a *core.Agent, s section) error {
	setScript := func(dst *string) error {
		if *dst != "" {
			return fmt.Errorf("duplicate %q section", s.title)
		}
		*dst = codeBlock(s.content)
		return nil
	}

	switch s.kind {
	case sectionOptions:
		opts, err := decodeOptions(codeBlock(s.content))
		if err != nil {
			return err
		}
		a.Options = core.Merge(a.Options, opts)
	case sectionBeforeAll:
		return setScript(&a.BeforeAll)
	case sectionData:
		return setScript(&a.Data)
	case sectionOutput:
		return setScript(&a.Output)
	case sectionAfterAll:
		return setScript(&a.AfterAll)
	case sectionSystem:
		a.Parts = append(a.Parts, core.PromptPart{Role: core.RoleSystem, Content: s.content})
	case sectionUser:
		a.Parts = append(a.Parts, core.PromptPart{Role: core.RoleUser, Content: s.content})
	case sectionAssistant:
		a.Parts = append(a.Parts, core.PromptPart{Role: core.RoleAssistant, Content: s.content})
	}
	return nil
}

func decodeOptions(text string) (core.AgentOptions, error) {
	var opts core.AgentOptions
	md, err := toml.Decode(text, &opts)
	if err != nil {
		return opts, fmt.Errorf("invalid options: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return opts, fmt.Errorf("invalid options: unknown key %q", undecoded[0].String())
	}
	return opts, nil
}

// splitFrontmatter extracts YAML frontmatter from markdown. Content without a
// leading --- line has no frontmatter.
func splitFrontmatter(content string) (frontmatter, body string, err error) {
	lines := strings.Split(content, "\n")

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", content, nil
	}

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}
	return "", "", ErrUnclosedFrontmatter
}

// splitSections cuts body at level one headings outside of code fences.
func splitSections(body string) []section {
	var (
		sections []section
		current  *section
		buf      bytes.Buffer
		inFence  bool
	)

	flush := func() {
		if current != nil {
			current.content = strings.TrimSpace(buf.String())
			sections = append(sections, *current)
		}
		buf.Reset()
	}

	for _, line := range strings.Split(body, "\n") {
		if isFence(line) {
			inFence = !inFence
		}
		if !inFence && strings.HasPrefix(line, "# ") {
			flush()
			title := strings.TrimSpace(strings.TrimPrefix(line, "# "))
			current = &section{kind: headings[normalizeHeading(title)], title: title}
			continue
		}
		if current != nil {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	flush()

	return sections
}

// codeBlock returns the body of the first fenced code block, or text itself
// when it contains none.
func codeBlock(text string) string {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if !isFence(line) {
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		return strings.Join(lines[start+1:i], "\n")
	}
	return text
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func normalizeHeading(title string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(title))
}
