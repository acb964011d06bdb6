package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"
)

// RenderTemplate renders a prompt part with Go's text/template. Unknown keys
// and nil values render as the empty string at any depth, so
// {{ .data.a.b }} is empty when data, a or b is missing.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(funcMap).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	for _, t := range tmpl.Templates() {
		if t.Tree != nil {
			emptyMissing(t.Tree.Root)
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, emptyNils(data)); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

// emptyValue stands in for nil values. It is an empty map so field lookups on
// it resolve to nothing instead of failing, and it prints as "".
type emptyValue map[string]emptyValue

func (emptyValue) String() string { return "" }

func (emptyValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(emptyValue)
	return ok
}

// emptyNils copies maps and lists, replacing nil values with emptyValue.
func emptyNils(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = emptyNil(v)
	}
	return out
}

func emptyNil(v any) any {
	switch t := v.(type) {
	case nil:
		return emptyValue(nil)
	case map[string]any:
		return emptyNils(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = emptyNil(item)
		}
		return out
	default:
		return v
	}
}

// emptyMissing pipes every printing action through orEmpty, so a missing key
// renders "" instead of "<no value>".
func emptyMissing(node parse.Node) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			emptyMissing(c)
		}
	case *parse.ActionNode:
		if len(n.Pipe.Decl) == 0 {
			n.Pipe.Cmds = append(n.Pipe.Cmds, &parse.CommandNode{
				NodeType: parse.NodeCommand,
				Pos:      n.Pos,
				Args:     []parse.Node{parse.NewIdentifier("orEmpty").SetPos(n.Pos)},
			})
		}
	case *parse.IfNode:
		emptyMissing(n.List)
		emptyMissing(n.ElseList)
	case *parse.RangeNode:
		emptyMissing(n.List)
		emptyMissing(n.ElseList)
	case *parse.WithNode:
		emptyMissing(n.List)
		emptyMissing(n.ElseList)
	}
}

var funcMap = template.FuncMap{
	"orEmpty": func(v any) any {
		if isEmpty(v) {
			return ""
		}
		return v
	},
	"default": func(defaultVal any, val any) any {
		if isEmpty(val) || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"title": func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items []any) string {
		strItems := make([]string, len(items))
		for i, item := range items {
			strItems[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(strItems, sep)
	},
	"json": func(v any) (string, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
}
