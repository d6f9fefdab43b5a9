package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/Spok95/activejob-metrics/internal/eventtime"
	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
)

func TestDecode_Perform(t *testing.T) {
	ev, err := Decode(jobmetrics.KindPerform, []byte(`{
		"job": {"class": "MailerJob", "queue_name": "mailers", "executions": 2},
		"exception": ["Net::ReadTimeout", "execution expired"],
		"duration": 1234.5
	}`))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := ev.(jobmetrics.Perform)
	if !ok {
		t.Fatalf("got %T", ev)
	}
	if p.Job.ClassName != "MailerJob" || p.Job.QueueName != "mailers" || p.Job.Executions != 2 {
		t.Fatalf("job = %+v", p.Job)
	}
	if p.Exception == nil || p.Exception.Kind != "Net::ReadTimeout" || p.Exception.Message != "execution expired" {
		t.Fatalf("exception = %+v", p.Exception)
	}
	if p.Duration != 1234500*time.Microsecond {
		t.Fatalf("duration = %v", p.Duration)
	}
}

func TestDecode_PerformWithoutException(t *testing.T) {
	ev, err := Decode(jobmetrics.KindPerform, []byte(`{"job": {"class": "A", "queue_name": "q"}, "exception": null, "duration": 5}`))
	if err != nil {
		t.Fatal(err)
	}
	if p := ev.(jobmetrics.Perform); p.Exception != nil {
		t.Fatalf("unexpected exception %+v", p.Exception)
	}
}

func TestDecode_PerformStartMixedTimestamps(t *testing.T) {
	ev, err := Decode(jobmetrics.KindPerformStart, []byte(`{
		"job": {"class": "MailerJob", "queue_name": "mailers", "executions": 1, "enqueued_at": "2023-11-14T22:13:20Z"},
		"end": 1700000010000
	}`))
	if err != nil {
		t.Fatal(err)
	}
	ps := ev.(jobmetrics.PerformStart)
	if ps.Job.EnqueuedAt != eventtime.ISO8601("2023-11-14T22:13:20Z") {
		t.Fatalf("enqueued_at = %#v", ps.Job.EnqueuedAt)
	}
	if ps.End != eventtime.EpochMillis(1_700_000_010_000) {
		t.Fatalf("end = %#v", ps.End)
	}
	sec, ok, err := jobmetrics.Latency(ps.Job.EnqueuedAt, ps.End)
	if err != nil || !ok || sec != 10 {
		t.Fatalf("latency = %v %v %v", sec, ok, err)
	}
}

func TestDecode_EnqueueAll(t *testing.T) {
	ev, err := Decode(jobmetrics.KindEnqueueAll, []byte(`{"jobs": [
		{"class": "A", "queue_name": "q", "scheduled_at": 1700003600},
		{"class": "B", "queue_name": "q"},
		{"class": "C", "queue_name": "q", "scheduled_at": "2023-11-14T23:13:20Z"}
	]}`))
	if err != nil {
		t.Fatal(err)
	}
	all := ev.(jobmetrics.EnqueueAll)
	if len(all.Jobs) != 3 {
		t.Fatalf("jobs = %d", len(all.Jobs))
	}
	if all.Jobs[0].ScheduledAt == nil || all.Jobs[1].ScheduledAt != nil || all.Jobs[2].ScheduledAt == nil {
		t.Fatalf("scheduled_at = %#v", all.Jobs)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	ev, err := DecodeEnvelope([]byte(`{"event": "enqueue_at.active_job", "payload": {"job": {"class": "A", "queue_name": "q"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind() != jobmetrics.KindEnqueueAt {
		t.Fatalf("kind = %v", ev.Kind())
	}

	if _, err := DecodeEnvelope([]byte(`{"event": "discard.active_job", "payload": {}}`)); !errors.Is(err, jobmetrics.ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []struct {
		name string
		kind jobmetrics.Kind
		data string
		want error
	}{
		{"not json", jobmetrics.KindEnqueue, `{`, ErrMalformed},
		{"no job", jobmetrics.KindEnqueue, `{}`, ErrMalformed},
		{"no class", jobmetrics.KindEnqueue, `{"job": {"queue_name": "q"}}`, ErrMalformed},
		{"negative executions", jobmetrics.KindEnqueue, `{"job": {"class": "A", "executions": -1}}`, ErrMalformed},
		{"no jobs", jobmetrics.KindEnqueueAll, `{"job": {"class": "A"}}`, ErrMalformed},
		{"no end", jobmetrics.KindPerformStart, `{"job": {"class": "A"}}`, ErrMalformed},
		{"bad enqueued_at", jobmetrics.KindEnqueue, `{"job": {"class": "A", "enqueued_at": true}}`, eventtime.ErrInvalidTimestamp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.kind, []byte(tc.data)); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
