package logging

import (
	"context"
	"log/slog"
)

type ctxLoggerKey struct{}

// With binds a logger to the context. Handlers use it to attach
// request or connection scoped attributes once instead of repeating
// them at every call site.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, logger)
}

// From returns the logger bound to the context, or the process-wide
// default when none is bound.
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return Default()
}
