// Package notify delivers job lifecycle events to subscribers by kind.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
)

// Subscriber receives events of the kind it subscribed to.
type Subscriber func(ctx context.Context, ev jobmetrics.Event) error

type subscription struct {
	id int
	fn Subscriber
}

// Bus is a synchronous in-process dispatcher. Publish calls every subscriber
// of the event's kind in subscription order on the caller's goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[jobmetrics.Kind][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[jobmetrics.Kind][]subscription)}
}

// Subscribe registers fn for kind and returns a function that removes it.
func (b *Bus) Subscribe(kind jobmetrics.Kind, fn Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[kind]
			for i, s := range list {
				if s.id == id {
					b.subs[kind] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev and joins the subscribers' errors.
func (b *Bus) Publish(ctx context.Context, ev jobmetrics.Event) error {
	b.mu.RLock()
	list := b.subs[ev.Kind()]
	b.mu.RUnlock()

	var errs []error
	for _, s := range list {
		if err := s.fn(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribers reports how many subscribers kind has.
func (b *Bus) Subscribers(kind jobmetrics.Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
