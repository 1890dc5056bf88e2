package retrieval

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger returns a context whose retrieval and assembly logs go to logger,
// typically slog.Default() with run-scoped attributes attached
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the logger carried by ctx, or slog.Default()
func Logger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
