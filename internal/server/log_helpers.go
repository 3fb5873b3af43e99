package server

import (
	"context"
	"log/slog"

	"streamtube/internal/observability/logging"
)

// loggerWithRequestContext prefers the request-scoped logger placed on the
// context by the request ID middleware, falling back to annotating the base
// logger with whatever IDs the context carries.
func loggerWithRequestContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctxLogger := logging.LoggerFromContext(ctx); ctxLogger != nil {
		return ctxLogger
	}
	return logging.WithContext(ctx, logger)
}
