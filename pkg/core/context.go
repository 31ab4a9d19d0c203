package core

import (
	"context"

	"github.com/google/uuid"
)

type traceIDKey struct{}

// WithTraceID attaches a mission trace id to the context. Every call a
// coordinator makes on behalf of a mission carries this id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

// TraceID returns the mission trace id if present.
func TraceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceIDKey{}).(string)
	return id, ok
}

// EnsureTraceID ensures a trace id exists in the context.
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if id, ok := TraceID(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return WithTraceID(ctx, id), id
}
