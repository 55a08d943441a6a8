package logging

import "context"

type ctxKey struct{}

// WithLogger stores a request-scoped logger in ctx. The HTTP middleware
// uses it to carry the request ID into handler logs.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, falling back to the
// global logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return logger
	}
	return Global()
}
