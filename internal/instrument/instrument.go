// Package instrument subscribes the job metric handler to the five
// lifecycle channels and keeps hook failures away from the publisher.
package instrument

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Spok95/activejob-metrics/internal/ctxutil"
	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
	"github.com/Spok95/activejob-metrics/internal/metrics"
	"github.com/Spok95/activejob-metrics/internal/notify"
	"github.com/Spok95/activejob-metrics/internal/observability"
)

// EventHandler is satisfied by *jobmetrics.Handler.
type EventHandler interface {
	Handle(ctx context.Context, ev jobmetrics.Event) error
}

// Install subscribes h to every kind on bus and returns a function that
// removes the subscriptions.
//
// Hook errors and panics are logged, reported and dropped so a broken hook
// never fails the job that emitted the event. A panic in the handler itself
// is dropped the same way but counted as a handle error. Any other handler
// error (an unparseable timestamp) is returned to the publisher.
func Install(bus *notify.Bus, h EventHandler, log *zap.Logger) (uninstall func()) {
	if log == nil {
		log = zap.NewNop()
	}
	kinds := jobmetrics.Kinds()
	unsubs := make([]func(), 0, len(kinds))
	for _, k := range kinds {
		unsubs = append(unsubs, bus.Subscribe(k, subscriber(k, h, log)))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func subscriber(kind jobmetrics.Kind, h EventHandler, log *zap.Logger) notify.Subscriber {
	name := kind.EventName()
	return func(ctx context.Context, ev jobmetrics.Event) (err error) {
		ctx = ctxutil.WithEvent(ctx, name)
		source, _ := ctxutil.Source(ctx)

		defer func() {
			if r := recover(); r != nil {
				perr := fmt.Errorf("panic handling %s: %v", name, r)
				log.Error("event handler panic", zap.String("event", name), zap.String("source", source), zap.Error(perr))
				observability.CaptureErr(perr, name)
				metrics.EventErrors.WithLabelValues(name, metrics.StageHandle).Inc()
				err = nil
			}
		}()

		metrics.EventsHandled.WithLabelValues(name).Inc()
		err = h.Handle(ctx, ev)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, jobmetrics.ErrHook):
			log.Warn("after-event hook failed", zap.String("event", name), zap.String("source", source), zap.Error(err))
			observability.CaptureErr(err, name)
			metrics.HookFailures.WithLabelValues(name).Inc()
			return nil
		default:
			log.Error("job event not recorded", zap.String("event", name), zap.String("source", source), zap.Error(err))
			observability.CaptureErr(err, name)
			metrics.EventErrors.WithLabelValues(name, metrics.StageHandle).Inc()
			return err
		}
	}
}
