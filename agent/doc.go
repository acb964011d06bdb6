// Package agent loads agent definitions from markdown files.
//
// An agent file has optional YAML frontmatter followed by level one headings.
// Each heading starts a section:
//
//	---
//	name: summarize
//	description: Summarize documents
//	---
//
//	# Options
//	```toml
//	model = "gpt-4o-mini"
//	input_concurrency = 4
//	```
//
//	# Data
//	```js
//	return { text: utils.file.load(input.path) };
//	```
//
//	# System
//	You are a precise technical writer.
//
//	# Instruction
//	Summarize:
//	{{ .data.text }}
//
//	# Output
//	```js
//	return ai_result.content.trim();
//	```
//
// Script sections (Before All, Data, Output, After All) take the body of their
// first fenced code block, or the whole section when it has none. Prompt
// sections (System, Instruction/User, Assistant) may repeat and keep their
// order. Unknown headings are ignored.
package agent
