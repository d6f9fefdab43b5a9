// Package wire decodes JSON job event payloads as published by the job
// framework over HTTP, PostgreSQL NOTIFY and Redis.
//
// A payload looks like
//
//	{"job": {"class": "MailerJob", "queue_name": "mailers", "executions": 1,
//	         "enqueued_at": "2023-11-14T22:13:20Z", "scheduled_at": null},
//	 "exception": ["Net::ReadTimeout", "execution expired"],
//	 "duration": 12.5,
//	 "end": 1700000010000}
//
// Timestamps may be ISO 8601 strings or epoch numbers in seconds or
// milliseconds. enqueue_all carries "jobs" instead of "job".
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Spok95/activejob-metrics/internal/eventtime"
	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
)

var ErrMalformed = errors.New("malformed event payload")

// Envelope names the event a payload belongs to. Used by replay files and
// the Redis transport.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type job struct {
	Class       string          `json:"class"`
	QueueName   string          `json:"queue_name"`
	Executions  *int            `json:"executions"`
	EnqueuedAt  json.RawMessage `json:"enqueued_at"`
	ScheduledAt json.RawMessage `json:"scheduled_at"`
}

type payload struct {
	Job       *job            `json:"job"`
	Jobs      []job           `json:"jobs"`
	Exception []string        `json:"exception"`
	Duration  *float64        `json:"duration"`
	End       json.RawMessage `json:"end"`
}

// DecodeEnvelope decodes an {"event": ..., "payload": ...} document.
func DecodeEnvelope(data []byte) (jobmetrics.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind, err := jobmetrics.ParseEventName(env.Event)
	if err != nil {
		return nil, err
	}
	return Decode(kind, env.Payload)
}

// Decode turns the payload of a kind event into a jobmetrics.Event.
func Decode(kind jobmetrics.Kind, data []byte) (jobmetrics.Event, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if kind == jobmetrics.KindEnqueueAll {
		if p.Jobs == nil {
			return nil, fmt.Errorf("%w: %s without jobs", ErrMalformed, kind)
		}
		jobs := make([]jobmetrics.JobDescriptor, 0, len(p.Jobs))
		for i, j := range p.Jobs {
			d, err := j.descriptor()
			if err != nil {
				return nil, fmt.Errorf("jobs[%d]: %w", i, err)
			}
			jobs = append(jobs, d)
		}
		return jobmetrics.EnqueueAll{Jobs: jobs}, nil
	}

	if p.Job == nil {
		return nil, fmt.Errorf("%w: %s without job", ErrMalformed, kind)
	}
	d, err := p.Job.descriptor()
	if err != nil {
		return nil, err
	}

	switch kind {
	case jobmetrics.KindPerform:
		ev := jobmetrics.Perform{Job: d}
		if p.Duration != nil {
			ev.Duration = time.Duration(*p.Duration * float64(time.Millisecond))
		}
		if len(p.Exception) > 0 {
			ev.Exception = &jobmetrics.Exception{Kind: p.Exception[0]}
			if len(p.Exception) > 1 {
				ev.Exception.Message = p.Exception[1]
			}
		}
		return ev, nil
	case jobmetrics.KindPerformStart:
		end, err := eventtime.FromJSON(p.End)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		if end == nil {
			return nil, fmt.Errorf("%w: %s without end", ErrMalformed, kind)
		}
		return jobmetrics.PerformStart{Job: d, End: end}, nil
	case jobmetrics.KindEnqueue:
		return jobmetrics.Enqueue{Job: d}, nil
	case jobmetrics.KindEnqueueAt:
		return jobmetrics.EnqueueAt{Job: d}, nil
	default:
		return nil, fmt.Errorf("%w: %s", jobmetrics.ErrUnknownEvent, kind)
	}
}

func (j job) descriptor() (jobmetrics.JobDescriptor, error) {
	d := jobmetrics.JobDescriptor{ClassName: j.Class, QueueName: j.QueueName}
	if j.Class == "" {
		return d, fmt.Errorf("%w: job without class", ErrMalformed)
	}
	if j.Executions != nil {
		if *j.Executions < 0 {
			return d, fmt.Errorf("%w: negative executions %d", ErrMalformed, *j.Executions)
		}
		d.Executions = *j.Executions
	}
	var err error
	if d.EnqueuedAt, err = eventtime.FromJSON(j.EnqueuedAt); err != nil {
		return d, fmt.Errorf("enqueued_at: %w", err)
	}
	if d.ScheduledAt, err = eventtime.FromJSON(j.ScheduledAt); err != nil {
		return d, fmt.Errorf("scheduled_at: %w", err)
	}
	return d, nil
}
