package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestEventAndSource(t *testing.T) {
	ctx := context.Background()
	if _, ok := Event(ctx); ok {
		t.Fatal("empty context has an event")
	}
	ctx = WithSource(WithEvent(ctx, "perform.active_job"), "redis")
	if ev, _ := Event(ctx); ev != "perform.active_job" {
		t.Fatalf("event = %q", ev)
	}
	if src, _ := Source(ctx); src != "redis" {
		t.Fatalf("source = %q", src)
	}
}

func TestWithDBTimeout_UsesShorterParentDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ctx, cancel2 := WithDBTimeout(parent)
	defer cancel2()

	dl, ok := ctx.Deadline()
	if !ok || time.Until(dl) > time.Second {
		t.Fatalf("deadline %v not bounded by parent", dl)
	}
}

func TestWithTimeout_NonPositiveMeansNone(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatal("unexpected deadline")
	}
}
