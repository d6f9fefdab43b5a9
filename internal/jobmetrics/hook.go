package jobmetrics

import (
	"context"

	"go.uber.org/zap"

	"github.com/Spok95/activejob-metrics/internal/ctxutil"
)

// Hook runs after the metrics for an event have been recorded. Its error is
// returned from Handle wrapped with ErrHook; isolating it from job execution
// is the caller's job.
type Hook func(ctx context.Context, ev Event) error

// NopHook does nothing.
func NopHook(context.Context, Event) error { return nil }

// LogHook logs every handled event at debug level.
func LogHook(log *zap.Logger) Hook {
	return func(ctx context.Context, ev Event) error {
		fields := []zap.Field{zap.Stringer("event", ev.Kind())}
		if src, ok := ctxutil.Source(ctx); ok {
			fields = append(fields, zap.String("source", src))
		}
		switch e := ev.(type) {
		case Perform:
			fields = append(fields, jobFields(e.Job)...)
			fields = append(fields, zap.Duration("duration", e.Duration))
			if e.Exception != nil {
				fields = append(fields, zap.String("failure_reason", e.Exception.Reason()),
					zap.String("message", e.Exception.Message))
			}
		case PerformStart:
			fields = append(fields, jobFields(e.Job)...)
		case Enqueue:
			fields = append(fields, jobFields(e.Job)...)
		case EnqueueAt:
			fields = append(fields, jobFields(e.Job)...)
		case EnqueueAll:
			fields = append(fields, zap.Int("jobs", len(e.Jobs)))
		}
		log.Debug("job event", fields...)
		return nil
	}
}

func jobFields(j JobDescriptor) []zap.Field {
	return []zap.Field{
		zap.String("job", j.ClassName),
		zap.String("queue", j.QueueName),
		zap.Int("executions", j.Executions),
	}
}
