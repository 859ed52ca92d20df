// Package log provides the logging interface shared by every o11y package.
//
// Overview:
//   - Responsibility: Define a stable, backend-neutral structured logging interface
//   - Key Types: Logger interface, key-value helpers, Nop logger
//   - Concurrency Model: Logger implementations must be safe for concurrent use
//   - Error Semantics: Error method accepts error as first parameter for structured logging
//
// Usage:
//
//	logger.Info("pool registered", log.Str("pool", "cp.main"), log.Int("fields", 17))
//	logger.Error(err, "lookup failed", log.Str("name", "jdbc/main"))
package log

import "time"

// Logger defines a structured logging interface.
// Implementations must be safe for concurrent use.
type Logger interface {
	// With returns a new Logger with the given key-value pairs attached.
	With(kv ...any) Logger

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, kv ...any)

	// Info logs an informational message with optional key-value pairs.
	Info(msg string, kv ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, kv ...any)

	// Error logs an error message with the error and optional key-value pairs.
	// The error should be the first parameter for structured error handling.
	Error(err error, msg string, kv ...any)
}

// Str creates a string key-value pair for structured logging.
func Str(k, v string) any {
	return []any{k, v}
}

// Int creates an integer key-value pair for structured logging.
func Int(k string, v int) any {
	return []any{k, v}
}

// Int64 creates an int64 key-value pair for structured logging.
func Int64(k string, v int64) any {
	return []any{k, v}
}

// Dur creates a duration key-value pair for structured logging.
func Dur(k string, v time.Duration) any {
	return []any{k, v}
}

// Any creates a key-value pair holding an arbitrary value.
func Any(k string, v any) any {
	return []any{k, v}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nop{}
}

type nop struct{}

func (n nop) With(...any) Logger        { return n }
func (nop) Debug(string, ...any)        {}
func (nop) Info(string, ...any)         {}
func (nop) Warn(string, ...any)         {}
func (nop) Error(error, string, ...any) {}
