// Package requestctx carries per-request values across package boundaries
// without importing the HTTP layer.
package requestctx

import (
	"context"
	"log/slog"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	actorIDKey   ctxKey = "actor_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey).(string); ok {
		return value
	}
	return ""
}

func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

func GetActorID(ctx context.Context) string {
	if value, ok := ctx.Value(actorIDKey).(string); ok {
		return value
	}
	return ""
}

// Logger returns the default logger annotated with whatever request values ctx holds.
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id := GetRequestID(ctx); id != "" {
		logger = logger.With("requestId", id)
	}
	if actor := GetActorID(ctx); actor != "" {
		logger = logger.With("callerId", actor)
	}
	return logger
}
