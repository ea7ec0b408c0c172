package ctxutil

import (
	"context"
	"time"
)

// Default returns context.Background() when ctx is nil so callers can pass
// a possibly-nil context straight through to WithContext-style APIs.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// Sleep blocks for d or until ctx is done, whichever comes first.
// Retry loops use this instead of time.Sleep so cancellation is
// observed between attempts.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
