// Package clock resolves the current time through the context so
// tests can pin it.
package clock

import (
	"context"
	"time"
)

// Clock returns the current time. Tests inject a fixed one via With.
type Clock func() time.Time

type ctxClockKey struct{}

func With(ctx context.Context, clock Clock) context.Context {
	return context.WithValue(ctx, ctxClockKey{}, clock)
}

func Now(ctx context.Context) time.Time {
	if clock, ok := ctx.Value(ctxClockKey{}).(Clock); ok {
		return clock()
	}
	return time.Now()
}
