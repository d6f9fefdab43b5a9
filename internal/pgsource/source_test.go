package pgsource

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/Spok95/activejob-metrics/internal/ctxutil"
	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
	"github.com/Spok95/activejob-metrics/internal/metrics"
)

type recorder struct {
	events  []jobmetrics.Event
	sources []string
	err     error
}

func (r *recorder) Publish(ctx context.Context, ev jobmetrics.Event) error {
	src, _ := ctxutil.Source(ctx)
	r.events = append(r.events, ev)
	r.sources = append(r.sources, src)
	return r.err
}

func TestDeliver(t *testing.T) {
	rec := &recorder{}
	s := New("", rec, zaptest.NewLogger(t))
	ctx := ctxutil.WithSource(context.Background(), sourceName)

	s.deliver(ctx, "enqueue.active_job", []byte(`{"job": {"class": "MailerJob", "queue_name": "mailers"}}`))
	if len(rec.events) != 1 || rec.events[0].Kind() != jobmetrics.KindEnqueue || rec.sources[0] != "postgres" {
		t.Fatalf("events = %v sources = %v", rec.events, rec.sources)
	}

	s.deliver(ctx, "some_other_channel", []byte(`{}`))
	if len(rec.events) != 1 {
		t.Fatal("unknown channel published")
	}

	before := testutil.ToFloat64(metrics.EventErrors.WithLabelValues("perform.active_job", metrics.StageDecode))
	s.deliver(ctx, "perform.active_job", []byte(`not json`))
	if len(rec.events) != 1 {
		t.Fatal("malformed payload published")
	}
	if got := testutil.ToFloat64(metrics.EventErrors.WithLabelValues("perform.active_job", metrics.StageDecode)) - before; got != 1 {
		t.Fatalf("decode errors delta = %v", got)
	}
}

// Publish errors are counted by the subscriber that produced them, so
// deliver only logs.
func TestDeliver_PublishErrorNotCounted(t *testing.T) {
	rec := &recorder{err: errors.New("bad timestamp")}
	s := New("", rec, zaptest.NewLogger(t))

	name := "enqueue_at.active_job"
	handle := testutil.ToFloat64(metrics.EventErrors.WithLabelValues(name, metrics.StageHandle))
	decode := testutil.ToFloat64(metrics.EventErrors.WithLabelValues(name, metrics.StageDecode))
	s.deliver(context.Background(), name, []byte(`{"job": {"class": "A", "queue_name": "q"}}`))
	if len(rec.events) != 1 {
		t.Fatalf("events = %v", rec.events)
	}
	if got := testutil.ToFloat64(metrics.EventErrors.WithLabelValues(name, metrics.StageHandle)) - handle; got != 0 {
		t.Fatalf("handle errors delta = %v", got)
	}
	if got := testutil.ToFloat64(metrics.EventErrors.WithLabelValues(name, metrics.StageDecode)) - decode; got != 0 {
		t.Fatalf("decode errors delta = %v", got)
	}
}
