package utils

import (
	"context"
	"time"
)

// DefaultTimeout bounds operations whose callers don't pick their own.
const DefaultTimeout = 30 * time.Second

// ContextWithTimeout derives a context with DefaultTimeout.
func ContextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, DefaultTimeout)
}

// ContextWithCustomTimeout derives a context with the given timeout.
func ContextWithCustomTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}
