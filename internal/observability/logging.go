// Package observability provides structured logging with request
// correlation and Prometheus metrics for the protocol server.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog with automatic call-ID correlation from context.
//
// Every log record emitted while handling a tool call carries the call's
// correlation identifier, so one request can be traced end to end across
// pipeline stages.
type Logger struct {
	logger *slog.Logger
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format specifies output format: "json" or "text".
	Format string `yaml:"format"`

	// Output is the writer for log output (defaults to os.Stderr; stdout
	// carries protocol frames when serving over stdio).
	Output io.Writer `yaml:"-"`
}

type contextKey string

const callIDKey contextKey = "call_id"

// WithCallID attaches a call correlation ID to the context.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey, callID)
}

// CallID retrieves the call correlation ID from the context, if any.
func CallID(ctx context.Context) string {
	if id, ok := ctx.Value(callIDKey).(string); ok {
		return id
	}
	return ""
}

// NewLogger creates a structured logger with the given configuration.
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	level := LevelFromString(config.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	return &Logger{logger: slog.New(handler)}
}

// LevelFromString converts a string to a slog.Level, defaulting to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info-level message with optional key-value pairs.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning-level message with optional key-value pairs.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error-level message with optional key-value pairs.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if callID := CallID(ctx); callID != "" {
		args = append([]any{"call_id", callID}, args...)
	}
	l.logger.Log(ctx, level, msg, args...)
}

// WithFields returns a logger with the given fields added to all records.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// Discard returns a logger that drops all records. Useful in tests.
func Discard() *Logger {
	return NewLogger(LogConfig{Output: io.Discard, Level: "error"})
}
