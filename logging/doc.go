// Package logging provides a minimal logging interface and adapters for agentpack.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, the script runtime and the CLI use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping go.uber.org/zap for production JSON logs
//   - ConsoleAdapter wrapping charmbracelet/log for interactive terminals
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(func(o *engine.Options) { o.Logger = logger })
package logging
