// Package log provides structured logging for fleetver.
//
// It defines a small Logger interface backed by stdlib slog so that
// subsystems can log without caring about handler setup, and tests can
// swap in a noop or recording logger. Diagnostic output goes to stderr;
// command results go to stdout and never through this package.
//
// Verbosity levels:
//   - ERROR (--quiet): errors only
//   - INFO (default): operational context such as cache refreshes
//   - DEBUG (--verbose): internal state, cache hits, resolution details
package log

import (
	"log/slog"
	"sync"
)

// Logger is the interface for structured logging. Method signatures
// match slog for easy integration.
type Logger interface {
	// Debug logs internal detail: cache hits, snapshot ages,
	// per-request resolution steps.
	Debug(msg string, args ...any)

	// Info logs operational context such as "refreshed release snapshot".
	Info(msg string, args ...any)

	// Warn logs recoverable conditions such as "serving stale snapshot"
	// or "malformed hash file".
	Warn(msg string, args ...any)

	// Error logs failures that prevent an operation from completing.
	Error(msg string, args ...any)

	// With returns a Logger that includes the given key-value pairs
	// in all subsequent entries.
	With(args ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// New creates a Logger backed by slog with the given handler.
func New(h slog.Handler) Logger {
	return &slogLogger{l: slog.New(h)}
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

// noopLogger discards all output.
type noopLogger struct{}

// NewNoop returns a logger that discards everything. Used as the
// fallback when a subsystem is constructed without a logger, and in
// tests that don't assert on log output.
func NewNoop() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) With(...any) Logger   { return noopLogger{} }

var (
	defaultLogger Logger = noopLogger{}
	defaultMu     sync.RWMutex
)

// Default returns the global logger configured at startup.
// Returns a noop logger if SetDefault has not been called.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the global logger. Called once from main() after
// parsing verbosity flags.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}
