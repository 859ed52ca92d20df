// Package logx provides a structured logging implementation based on zap.
//
// Overview:
//   - Responsibility: Unified logging with JSON/console output, field redaction, and trace correlation
//   - Key Types: Logger implementation, Options for configuration
//   - Concurrency Model: All loggers are safe for concurrent use
//   - Error Semantics: No errors returned; logging failures are silently handled
//   - Performance Notes: Level is an atomic handle and can be changed without rebuilding the logger
//
// Usage:
//
//	logger := logx.New(logx.WithFormat(logx.FormatJSON), logx.WithLevel("debug"))
//	logger.Info("pool registered", log.Str("pool", "cp.main"))
//	logx.FromContext(ctx, logger).Warn("field write dropped")
package logx

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/logx/internal"
)

// Format specifies the output format for logs.
type Format string

const (
	// FormatJSON outputs logs as one JSON object per line.
	FormatJSON Format = "json"
	// FormatConsole outputs human-readable tab separated lines.
	FormatConsole Format = "console"
)

// Options configures the logger behavior.
type Options struct {
	Format          Format       // Output format: json or console
	Level           string       // Minimum log level (debug, info, warn, error)
	Writer          io.Writer    // Output writer (default: os.Stderr)
	SensitiveFields []string     // Field names to mask (e.g., "password", "token")
	DisableCaller   bool         // Disable caller information
	Core            zapcore.Core // Replaces the encoder/writer core when set
}

// Option configures logger behavior.
type Option func(*Options)

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(o *Options) {
		o.Format = format
	}
}

// WithLevel sets the minimum log level.
func WithLevel(level string) Option {
	return func(o *Options) {
		o.Level = level
	}
}

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(o *Options) {
		o.Writer = w
	}
}

// WithSensitiveFields sets field names to mask in logs.
func WithSensitiveFields(fields ...string) Option {
	return func(o *Options) {
		o.SensitiveFields = fields
	}
}

// WithoutCaller disables caller annotation.
func WithoutCaller() Option {
	return func(o *Options) {
		o.DisableCaller = true
	}
}

// WithCore routes log entries to the given core instead of the configured writer.
func WithCore(core zapcore.Core) Option {
	return func(o *Options) {
		o.Core = core
	}
}

// Logger implements the core/log.Logger interface using zap.
type Logger struct {
	z      *zap.Logger
	level  zap.AtomicLevel
	redact internal.Redactor
}

var _ log.Logger = (*Logger)(nil)

// New creates a new Logger with the given options.
// An unparsable level falls back to info.
func New(opts ...Option) *Logger {
	options := Options{
		Format: FormatJSON,
		Level:  "info",
		Writer: os.Stderr,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Writer == nil {
		options.Writer = os.Stderr
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(options.Level)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	core := options.Core
	if core == nil {
		core = zapcore.NewCore(encoder(options.Format), zapcore.AddSync(options.Writer), level)
	}

	var zopts []zap.Option
	if !options.DisableCaller {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	return &Logger{
		z:      zap.New(core, zopts...),
		level:  level,
		redact: internal.NewRedactor(options.SensitiveFields),
	}
}

func encoder(format Format) zapcore.Encoder {
	if format == FormatConsole {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// SetLevel changes the minimum level of this logger and every logger derived from it.
func (l *Logger) SetLevel(level string) error {
	return l.level.UnmarshalText([]byte(level))
}

// Zap returns the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// With returns a new Logger with the given key-value pairs attached.
func (l *Logger) With(kv ...any) log.Logger {
	return &Logger{
		z:      l.z.With(l.redact.Fields(kv)...),
		level:  l.level,
		redact: l.redact,
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, kv ...any) {
	l.z.Debug(msg, l.redact.Fields(kv)...)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, kv ...any) {
	l.z.Info(msg, l.redact.Fields(kv)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, kv ...any) {
	l.z.Warn(msg, l.redact.Fields(kv)...)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string, kv ...any) {
	fields := l.redact.Fields(kv)
	if err != nil {
		fields = append([]zap.Field{zap.Error(err)}, fields...)
	}
	l.z.Error(msg, fields...)
}

// FromContext returns base enriched with trace_id and span_id when ctx carries a valid span.
func FromContext(ctx context.Context, base log.Logger) log.Logger {
	if ctx == nil || base == nil {
		return base
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return base
	}
	return base.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}
