package ctxutil

import (
	"context"
	"time"
)

// private keys to avoid collisions
type key int

const (
	keyEvent key = iota
	keySource
)

// WithEvent/Event carry the event channel name being handled.
func WithEvent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyEvent, name)
}

func Event(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(keyEvent).(string)
	return s, ok
}

// WithSource/Source name the transport an event arrived on (http, postgres, redis, replay).
func WithSource(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keySource, name)
}

func Source(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(keySource).(string)
	return s, ok
}

var DefaultDBTimeout = 5 * time.Second

// WithTimeout is context.WithTimeout that treats d <= 0 as no timeout.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// WithDBTimeout bounds a DB call by DefaultDBTimeout or the parent's remaining time.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		remain := time.Until(dl)
		if remain < DefaultDBTimeout {
			return WithTimeout(parent, remain)
		}
	}
	return WithTimeout(parent, DefaultDBTimeout)
}
