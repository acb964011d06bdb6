package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// ConsoleAdapter renders colorful, human readable log lines via charmbracelet/log.
type ConsoleAdapter struct {
	logger *log.Logger
}

// NewConsoleLogger creates a console Logger writing to w (stderr when nil).
func NewConsoleLogger(w io.Writer, level LogLevel, prefix string) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleAdapter{logger: log.NewWithOptions(w, log.Options{
		Level:           consoleLevel(level),
		Formatter:       log.TextFormatter,
		ReportTimestamp: level == LogLevelDebug,
		Prefix:          prefix,
	})}
}

// Debug logs a debug message.
func (c *ConsoleAdapter) Debug(msg string, args ...any) { c.logger.Debug(msg, args...) }

// Info logs an informational message.
func (c *ConsoleAdapter) Info(msg string, args ...any) { c.logger.Info(msg, args...) }

// Warn logs a warning message.
func (c *ConsoleAdapter) Warn(msg string, args ...any) { c.logger.Warn(msg, args...) }

// Error logs an error message.
func (c *ConsoleAdapter) Error(msg string, args ...any) { c.logger.Error(msg, args...) }

func consoleLevel(l LogLevel) log.Level {
	switch l {
	case LogLevelDebug:
		return log.DebugLevel
	case LogLevelWarn:
		return log.WarnLevel
	case LogLevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
