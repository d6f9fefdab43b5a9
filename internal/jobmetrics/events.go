package jobmetrics

import (
	"fmt"
	"time"

	"github.com/Spok95/activejob-metrics/internal/eventtime"
)

// Kind identifies one of the lifecycle notifications a job framework emits.
type Kind int

const (
	KindPerform Kind = iota + 1
	KindPerformStart
	KindEnqueue
	KindEnqueueAt
	KindEnqueueAll
)

const eventNamespace = ".active_job"

var kindNames = map[Kind]string{
	KindPerform:      "perform",
	KindPerformStart: "perform_start",
	KindEnqueue:      "enqueue",
	KindEnqueueAt:    "enqueue_at",
	KindEnqueueAll:   "enqueue_all",
}

// Kinds returns every kind in subscription order.
func Kinds() []Kind {
	return []Kind{KindPerform, KindPerformStart, KindEnqueue, KindEnqueueAt, KindEnqueueAll}
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// EventName is the channel name the framework publishes this kind under,
// e.g. "perform.active_job".
func (k Kind) EventName() string { return k.String() + eventNamespace }

// ParseEventName maps a channel name (or the bare kind, e.g. "enqueue") back to its Kind.
func ParseEventName(name string) (Kind, error) {
	for k, s := range kindNames {
		if name == s || name == s+eventNamespace {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// JobDescriptor is the read-only view of a job at event time.
type JobDescriptor struct {
	ClassName  string
	QueueName  string
	Executions int
	// EnqueuedAt is nil for jobs performed without being enqueued.
	EnqueuedAt eventtime.Timestamp
	// ScheduledAt is set only for jobs enqueued for future execution.
	ScheduledAt eventtime.Timestamp
}

// Exception is the (kind, message) pair attached to a failed perform.
type Exception struct {
	Kind    string
	Message string
}

// Reason is the failure_reason label value.
func (e Exception) Reason() string { return e.Kind }

// Event is implemented by Perform, PerformStart, Enqueue, EnqueueAt and EnqueueAll.
type Event interface {
	Kind() Kind
	isEvent()
}

// Perform is emitted when a job finishes, successfully or not.
type Perform struct {
	Job       JobDescriptor
	Exception *Exception
	Duration  time.Duration
}

// PerformStart is emitted when a worker picks up a job. End is the instant
// the notification was finished.
type PerformStart struct {
	Job JobDescriptor
	End eventtime.Timestamp
}

// Enqueue is emitted when a job is submitted for immediate execution.
type Enqueue struct {
	Job JobDescriptor
}

// EnqueueAt is emitted when a job is submitted for a future time.
type EnqueueAt struct {
	Job JobDescriptor
}

// EnqueueAll is emitted once for a bulk submission.
type EnqueueAll struct {
	Jobs []JobDescriptor
}

func (Perform) Kind() Kind      { return KindPerform }
func (PerformStart) Kind() Kind { return KindPerformStart }
func (Enqueue) Kind() Kind      { return KindEnqueue }
func (EnqueueAt) Kind() Kind    { return KindEnqueueAt }
func (EnqueueAll) Kind() Kind   { return KindEnqueueAll }

func (Perform) isEvent()      {}
func (PerformStart) isEvent() {}
func (Enqueue) isEvent()      {}
func (EnqueueAt) isEvent()    {}
func (EnqueueAll) isEvent()   {}
