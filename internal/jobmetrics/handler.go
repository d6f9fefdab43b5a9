package jobmetrics

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Handler records metrics for job events. It keeps no per-event state and
// may be called from any number of goroutines.
type Handler struct {
	metrics *Metrics
	hook    Hook
	log     *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithHook sets the hook run after every handled event.
func WithHook(h Hook) Option {
	return func(hd *Handler) {
		if h != nil {
			hd.hook = h
		}
	}
}

// WithLogger sets the logger used for diagnostics such as negative latency.
func WithLogger(log *zap.Logger) Option {
	return func(hd *Handler) {
		if log != nil {
			hd.log = log
		}
	}
}

func NewHandler(m *Metrics, opts ...Option) *Handler {
	h := &Handler{metrics: m, hook: NopHook, log: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle routes ev to the method for its kind.
func (h *Handler) Handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case Perform:
		return h.HandlePerform(ctx, e)
	case PerformStart:
		return h.HandlePerformStart(ctx, e)
	case Enqueue:
		return h.HandleEnqueue(ctx, e)
	case EnqueueAt:
		return h.HandleEnqueueAt(ctx, e)
	case EnqueueAll:
		return h.HandleEnqueueAll(ctx, e)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// HandlePerform counts the execution, its outcome and its runtime.
func (h *Handler) HandlePerform(ctx context.Context, e Perform) error {
	labels := h.metrics.Labels(e.Job, nil)

	if e.Exception != nil {
		h.metrics.Failed.With(h.metrics.Labels(e.Job, Labels{LabelFailureReason: e.Exception.Reason()})).Inc()
	} else {
		h.metrics.Success.With(labels).Inc()
	}
	h.metrics.Executed.With(labels).Inc()
	h.metrics.Runtime.With(labels).Observe(RuntimeSeconds(e.Duration))

	return h.afterEvent(ctx, e)
}

// HandlePerformStart observes the queueing latency when the job has an enqueue time.
func (h *Handler) HandlePerformStart(ctx context.Context, e PerformStart) error {
	labels := h.metrics.Labels(e.Job, nil)

	latency, ok, err := Latency(e.Job.EnqueuedAt, e.End)
	if err != nil {
		return fmt.Errorf("%s latency: %w", e.Job.ClassName, err)
	}
	if ok {
		if latency < 0 {
			h.log.Debug("negative job latency",
				zap.String("job", e.Job.ClassName),
				zap.String("queue", e.Job.QueueName),
				zap.Float64("latency_seconds", latency))
		}
		h.metrics.Latency.With(labels).Observe(latency)
	}

	return h.afterEvent(ctx, e)
}

func (h *Handler) HandleEnqueue(ctx context.Context, e Enqueue) error {
	h.metrics.Enqueued.With(h.metrics.Labels(e.Job, nil)).Inc()
	return h.afterEvent(ctx, e)
}

func (h *Handler) HandleEnqueueAt(ctx context.Context, e EnqueueAt) error {
	h.metrics.Scheduled.With(h.metrics.Labels(e.Job, nil)).Inc()
	return h.afterEvent(ctx, e)
}

// HandleEnqueueAll counts each job as scheduled or enqueued depending on
// whether it carries a scheduled time. The hook runs once for the batch.
func (h *Handler) HandleEnqueueAll(ctx context.Context, e EnqueueAll) error {
	for _, job := range e.Jobs {
		labels := h.metrics.Labels(job, nil)
		if job.ScheduledAt != nil {
			h.metrics.Scheduled.With(labels).Inc()
		} else {
			h.metrics.Enqueued.With(labels).Inc()
		}
	}
	return h.afterEvent(ctx, e)
}

// afterEvent runs the hook. Its errors and panics come back wrapped in ErrHook.
func (h *Handler) afterEvent(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrHook, ev.Kind(), r)
		}
	}()
	if err := h.hook(ctx, ev); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrHook, ev.Kind(), err)
	}
	return nil
}
