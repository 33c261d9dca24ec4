package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

var (
	defaultLevel  slog.LevelVar
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: &defaultLevel,
	}))
)

func init() {
	defaultLevel.Set(slog.LevelInfo)
}

type contextKey struct{}

var loggerKey = contextKey{}

// Ctx returns the logger from the context. If no logger is found, it returns
// the default logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a new context with the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// SetLevel sets the default log level from a config string. Unrecognized
// names keep the info level.
func SetLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		defaultLevel.Set(slog.LevelDebug)
	case "warn", "warning":
		defaultLevel.Set(slog.LevelWarn)
	case "error":
		defaultLevel.Set(slog.LevelError)
	default:
		defaultLevel.Set(slog.LevelInfo)
	}
}
