// Package logging provides the small leveled logger used throughout the
// watcher. It wraps the standard library's log.Logger with a component
// prefix and status icons rather than pulling in a structured-logging
// framework.
package logging

import (
	"io"
	"log"
	"os"
)

// Logger is a component-scoped wrapper around *log.Logger.
type Logger struct {
	std *log.Logger
}

// New creates a Logger that writes to w, prefixed with [component].
func New(w io.Writer, component string) *Logger {
	return &Logger{std: log.New(w, "["+component+"] ", log.LstdFlags)}
}

// Default creates a Logger writing to stderr.
func Default(component string) *Logger {
	return New(os.Stderr, component)
}

// Info logs a routine informational message.
func (l *Logger) Info(format string, args ...any) {
	l.std.Printf(format, args...)
}

// Warn logs a recoverable problem: swallowed errors, retried operations.
func (l *Logger) Warn(format string, args ...any) {
	l.std.Printf("⚠ "+format, args...)
}

// Error logs a problem that could not be worked around this cycle.
func (l *Logger) Error(format string, args ...any) {
	l.std.Printf("✗ "+format, args...)
}

// Ok logs a successful completion of a notable operation.
func (l *Logger) Ok(format string, args ...any) {
	l.std.Printf("✓ "+format, args...)
}
