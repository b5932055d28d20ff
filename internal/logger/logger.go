// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context plus helpers for
// tagging log lines with the subscription target being streamed.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const targetKey ctxKey = "target"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTarget stores the streamed target (symbol/interval) in the context for
// downstream log tagging.
func WithTarget(ctx context.Context, target string) context.Context {
	return context.WithValue(ctx, targetKey, target)
}

// Target extracts the streamed target from context. Returns "" if not set.
func Target(ctx context.Context) string {
	if v, ok := ctx.Value(targetKey).(string); ok {
		return v
	}
	return ""
}

// LogWithTarget returns slog attributes including the target from context.
// Usage: slog.Info("msg", logger.LogWithTarget(ctx)...)
func LogWithTarget(ctx context.Context) []any {
	t := Target(ctx)
	if t == "" {
		return nil
	}
	return []any{slog.String("target", t)}
}
