package audit

import (
	"context"
)

// Logger is the interface grant mutation events are reported through. The
// grant store treats logging as best-effort: a failed Log never rolls back
// the mutation it describes.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger.
	Close() error
}

// contextKey is the type for context keys.
type contextKey string

const (
	// loggerKey is the context key for the audit logger.
	loggerKey contextKey = "audit_logger"

	// actorKey is the context key for the acting identity.
	actorKey contextKey = "audit_actor"
)

// WithLogger adds an audit logger to the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
// if none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return NewNopLogger()
}

// WithActor records the acting identity in the context so emitted events
// carry it.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the acting identity, or "".
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok {
		return actor
	}
	return ""
}

// NopLogger discards every event.
type NopLogger struct{}

// NewNopLogger creates a logger that does nothing.
func NewNopLogger() *NopLogger { return &NopLogger{} }

func (l *NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (l *NopLogger) Close() error                                { return nil }
