package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/Spok95/activejob-metrics/internal/ctxutil"
	"github.com/Spok95/activejob-metrics/internal/eventtime"
	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
	"github.com/Spok95/activejob-metrics/internal/metrics"
	"github.com/Spok95/activejob-metrics/internal/notify"
)

type handlerFunc func(ctx context.Context, ev jobmetrics.Event) error

func (f handlerFunc) Handle(ctx context.Context, ev jobmetrics.Event) error { return f(ctx, ev) }

func TestInstall_SubscribesEveryKind(t *testing.T) {
	bus := notify.NewBus()
	var seen []string
	uninstall := Install(bus, handlerFunc(func(ctx context.Context, ev jobmetrics.Event) error {
		name, _ := ctxutil.Event(ctx)
		seen = append(seen, name)
		return nil
	}), zaptest.NewLogger(t))

	events := []jobmetrics.Event{
		jobmetrics.Perform{}, jobmetrics.PerformStart{}, jobmetrics.Enqueue{},
		jobmetrics.EnqueueAt{}, jobmetrics.EnqueueAll{},
	}
	for _, ev := range events {
		if err := bus.Publish(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"perform.active_job", "perform_start.active_job", "enqueue.active_job",
		"enqueue_at.active_job", "enqueue_all.active_job"}
	if len(seen) != len(want) {
		t.Fatalf("seen %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen %v, want %v", seen, want)
		}
	}

	uninstall()
	for _, k := range jobmetrics.Kinds() {
		if n := bus.Subscribers(k); n != 0 {
			t.Fatalf("%s still has %d subscribers", k, n)
		}
	}
}

func TestInstall_IsolatesHookFailures(t *testing.T) {
	m, err := jobmetrics.NewMetrics(prometheus.NewRegistry(), jobmetrics.MetricsOpts{})
	if err != nil {
		t.Fatal(err)
	}
	h := jobmetrics.NewHandler(m, jobmetrics.WithHook(func(context.Context, jobmetrics.Event) error {
		return errors.New("hook exploded")
	}))
	bus := notify.NewBus()
	defer Install(bus, h, zaptest.NewLogger(t))()

	name := jobmetrics.KindEnqueueAt.EventName()
	before := testutil.ToFloat64(metrics.HookFailures.WithLabelValues(name))

	job := jobmetrics.JobDescriptor{ClassName: "MailerJob", QueueName: "mailers"}
	if err := bus.Publish(context.Background(), jobmetrics.EnqueueAt{Job: job}); err != nil {
		t.Fatalf("hook failure leaked to publisher: %v", err)
	}
	if got := testutil.ToFloat64(m.Scheduled.With(m.Labels(job, nil))); got != 1 {
		t.Fatalf("scheduled_total = %v", got)
	}
	if got := testutil.ToFloat64(metrics.HookFailures.WithLabelValues(name)) - before; got != 1 {
		t.Fatalf("hook failures delta = %v", got)
	}
}

func TestInstall_HandlerPanicCountedAsHandleError(t *testing.T) {
	bus := notify.NewBus()
	defer Install(bus, handlerFunc(func(context.Context, jobmetrics.Event) error {
		panic("handler bug")
	}), zaptest.NewLogger(t))()

	name := jobmetrics.KindEnqueue.EventName()
	hook := testutil.ToFloat64(metrics.HookFailures.WithLabelValues(name))
	handle := testutil.ToFloat64(metrics.EventErrors.WithLabelValues(name, metrics.StageHandle))

	if err := bus.Publish(context.Background(), jobmetrics.Enqueue{}); err != nil {
		t.Fatalf("panic not isolated: %v", err)
	}
	if got := testutil.ToFloat64(metrics.EventErrors.WithLabelValues(name, metrics.StageHandle)) - handle; got != 1 {
		t.Fatalf("handle errors delta = %v", got)
	}
	if got := testutil.ToFloat64(metrics.HookFailures.WithLabelValues(name)) - hook; got != 0 {
		t.Fatalf("hook failures delta = %v", got)
	}
}

func TestInstall_HookPanicCountedAsHookFailure(t *testing.T) {
	m, err := jobmetrics.NewMetrics(prometheus.NewRegistry(), jobmetrics.MetricsOpts{})
	if err != nil {
		t.Fatal(err)
	}
	h := jobmetrics.NewHandler(m, jobmetrics.WithHook(func(context.Context, jobmetrics.Event) error {
		panic("hook bug")
	}))
	bus := notify.NewBus()
	defer Install(bus, h, zaptest.NewLogger(t))()

	name := jobmetrics.KindEnqueue.EventName()
	hook := testutil.ToFloat64(metrics.HookFailures.WithLabelValues(name))
	handle := testutil.ToFloat64(metrics.EventErrors.WithLabelValues(name, metrics.StageHandle))

	job := jobmetrics.JobDescriptor{ClassName: "MailerJob", QueueName: "mailers"}
	if err := bus.Publish(context.Background(), jobmetrics.Enqueue{Job: job}); err != nil {
		t.Fatalf("hook panic leaked to publisher: %v", err)
	}
	if got := testutil.ToFloat64(m.Enqueued.With(m.Labels(job, nil))); got != 1 {
		t.Fatalf("enqueued_total = %v", got)
	}
	if got := testutil.ToFloat64(metrics.HookFailures.WithLabelValues(name)) - hook; got != 1 {
		t.Fatalf("hook failures delta = %v", got)
	}
	if got := testutil.ToFloat64(metrics.EventErrors.WithLabelValues(name, metrics.StageHandle)) - handle; got != 0 {
		t.Fatalf("handle errors delta = %v", got)
	}
}

func TestInstall_ReturnsTimestampErrors(t *testing.T) {
	m, err := jobmetrics.NewMetrics(prometheus.NewRegistry(), jobmetrics.MetricsOpts{})
	if err != nil {
		t.Fatal(err)
	}
	bus := notify.NewBus()
	defer Install(bus, jobmetrics.NewHandler(m), zaptest.NewLogger(t))()

	name := jobmetrics.KindPerformStart.EventName()
	before := testutil.ToFloat64(metrics.EventErrors.WithLabelValues(name, metrics.StageHandle))

	ev := jobmetrics.PerformStart{
		Job: jobmetrics.JobDescriptor{ClassName: "MailerJob", EnqueuedAt: eventtime.ISO8601("garbage")},
		End: eventtime.FromNumber(1_700_000_000),
	}
	if err := bus.Publish(context.Background(), ev); !errors.Is(err, eventtime.ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.EventErrors.WithLabelValues(name, metrics.StageHandle)) - before; got != 1 {
		t.Fatalf("event errors delta = %v", got)
	}
}
