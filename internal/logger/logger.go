package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	// default logger instance
	defaultLogger atomic.Pointer[slog.Logger]
)

// initializes the logger based on environment
func init() {
	Setup(os.Getenv("ENVIRONMENT"), os.Getenv("LOG_LEVEL"))
}

// rebuilds the default logger for the given environment and level.
// production writes JSON to stdout, anything else writes text to stderr.
func Setup(environment, level string) {
	var out io.Writer = os.Stderr
	if environment == "production" {
		out = os.Stdout
	}

	SetOutput(out, environment, level)
}

// rebuilds the default logger writing to w
func SetOutput(w io.Writer, environment, level string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level, environment)}

	var handler slog.Handler
	if environment == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger.Store(slog.New(handler))
}

// maps a LOG_LEVEL string to a slog level. unknown values fall back to
// INFO in production and DEBUG elsewhere.
func ParseLevel(level, environment string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	if environment == "production" {
		return slog.LevelInfo
	}

	return slog.LevelDebug
}

// returns the default logger instance
func Default() *slog.Logger {
	return defaultLogger.Load()
}

// creates a logger with additional context fields
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

// returns a logger scoped to one chat session
func ForSession(sessionID string) *slog.Logger {
	return Default().With("session_id", sessionID)
}

// creates a logger with context
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return Default()
	}

	// extract any logger from context if present
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}

	return Default()
}

// adds logger to context
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// helper type for context key
type loggerKey struct{}

// convenience functions for common log levels

// logs a debug message
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// logs an info message
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// logs a warning message
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// logs an error message
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// logs an error with context
func ErrorErr(err error, msg string, args ...any) {
	args = append(args, "error", err)
	Default().Error(msg, args...)
}

// logs a fatal error and exits
func Fatal(msg string, args ...any) {
	Default().Error(msg, args...)
	os.Exit(1)
}

// logs a fatal error with error and exits
func FatalErr(err error, msg string, args ...any) {
	args = append(args, "error", err)
	Default().Error(msg, args...)
	os.Exit(1)
}
