package logging

import (
	"context"

	"github.com/google/uuid"
)

// GenerateRequestID generates a unique request ID for a sync run or a
// directory operation.
func GenerateRequestID() string {
	return uuid.NewString()
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger carried by ctx, or a no-op logger.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(Logger); ok && l != nil {
			return l
		}
	}
	return NewNop()
}

// WithRequestID returns a context whose logger is tagged with a new request
// ID, and the ID itself.
func WithRequestID(ctx context.Context) (context.Context, string) {
	id := GenerateRequestID()
	return NewContext(ctx, FromContext(ctx).WithRequestID(id)), id
}
