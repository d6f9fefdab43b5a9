// Package runner keeps long-lived event sources running.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/activejob-metrics/internal/observability"
)

// Source runs until ctx is done or it fails.
type Source func(ctx context.Context) error

type Runner struct {
	ctx          context.Context
	log          *zap.Logger
	restartDelay time.Duration
	wg           sync.WaitGroup
}

func New(ctx context.Context, log *zap.Logger, restartDelay time.Duration) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{ctx: ctx, log: log, restartDelay: restartDelay}
}

// Go runs fn in the background and restarts it after the restart delay
// whenever it returns or panics before the runner's context is done.
func (r *Runner) Go(name string, fn Source) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			start := time.Now()
			err := runOnce(r.ctx, fn)
			sourceRuns.WithLabelValues(name).Inc()
			sourceRunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

			if r.ctx.Err() != nil {
				return
			}
			if err != nil {
				sourceErrors.WithLabelValues(name).Inc()
				observability.CaptureErr(err, "")
				r.log.Error("event source stopped", zap.String("source", name), zap.Error(err),
					zap.Duration("restart_in", r.restartDelay))
			} else {
				r.log.Warn("event source returned", zap.String("source", name),
					zap.Duration("restart_in", r.restartDelay))
			}

			t := time.NewTimer(r.restartDelay)
			select {
			case <-r.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}()
}

// Wait blocks until every source has exited.
func (r *Runner) Wait() { r.wg.Wait() }

func runOnce(ctx context.Context, fn Source) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in event source: %v", rec)
		}
	}()
	return fn(ctx)
}
