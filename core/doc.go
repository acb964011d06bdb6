// Package core provides the foundational domain types shared by the engine,
// the control protocol and the loaders:
//
//   - Agent and PromptPart (the immutable agent definition)
//   - AgentOptions with layered Merge and model alias resolution
//   - Literals (read-only path context exposed to scripts as CTX)
//   - The error taxonomy (ScriptError, ProtocolError, ChatError, TaskError)
//
// The package has no dependencies on execution concerns so that every other
// package can import it without cycles.
package core
