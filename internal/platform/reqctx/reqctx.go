// Package reqctx threads a request-scoped correlation id through explicit
// context values rather than any form of thread-local or goroutine-local
// storage.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID returns a child context carrying id. Call sites that submit
// work to the worker pool must propagate this into the task closure
// explicitly — the pool does not inherit anything implicitly.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the correlation id, or "" if none was set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// NewRequestID synthesizes a fresh correlation id for requests that arrive
// without X-Request-ID.
func NewRequestID() string {
	return uuid.NewString()
}
