// Package model defines the provider‑agnostic Chat capability used by the
// engine's AI stage, plus helpers for interacting with it.
//
// Core goals:
//   - Keep request/response shapes minimal and transport independent
//   - Surface token usage uniformly across vendors (TokenUsage)
//   - Route a request to a vendor adapter by model name (Router)
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (model/openai, model/anthropic) implement the Model interface so
// the engine stays decoupled from vendor SDKs.
package model
