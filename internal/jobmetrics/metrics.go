// Package jobmetrics translates job lifecycle events into Prometheus
// counters and histograms.
package jobmetrics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrHook         = errors.New("after-event hook failed")
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "activejob"

// Label names set from the job descriptor.
const (
	LabelQueue         = "queue"
	LabelActiveJob     = "activejob"
	LabelExecutions    = "executions"
	LabelFailureReason = "failure_reason"
)

// LongRunningJobBuckets are the Prometheus defaults extended for jobs that
// run for minutes or hours.
var LongRunningJobBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
	30, 60, 120, 300, 1800, 3600, 21600,
}

// MetricsOpts configures NewMetrics.
type MetricsOpts struct {
	// Namespace defaults to DefaultNamespace.
	Namespace string
	// DefaultTags are attached to every observation unless a job label of the
	// same name overrides them.
	DefaultTags map[string]string
}

// Metrics holds the registered instruments. It is safe for concurrent use.
type Metrics struct {
	defaultTags map[string]string

	Executed  *prometheus.CounterVec
	Enqueued  *prometheus.CounterVec
	Scheduled *prometheus.CounterVec
	Success   *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Runtime   *prometheus.HistogramVec
	Latency   *prometheus.HistogramVec
}

// NewMetrics creates the seven job instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer, opts MetricsOpts) (*Metrics, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	defaults := make(map[string]string, len(opts.DefaultTags))
	for k, v := range opts.DefaultTags {
		defaults[k] = v
	}

	base := labelNames(defaults, LabelQueue, LabelActiveJob, LabelExecutions)
	withReason := labelNames(defaults, LabelQueue, LabelActiveJob, LabelExecutions, LabelFailureReason)

	m := &Metrics{
		defaultTags: defaults,
		Executed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "executed_total",
			Help: "A counter of the total number of activejobs executed.",
		}, base),
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "enqueued_total",
			Help: "A counter of the total number of activejobs enqueued.",
		}, base),
		Scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "scheduled_total",
			Help: "A counter of the total number of activejobs scheduled for future execution.",
		}, base),
		Success: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "success_total",
			Help: "A counter of the total number of activejobs successfully processed.",
		}, base),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "failed_total",
			Help: "A counter of the total number of jobs failed for an activejob.",
		}, withReason),
		Runtime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "runtime_seconds",
			Help:    "A histogram of the activejob execution time.",
			Buckets: LongRunningJobBuckets,
		}, base),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "latency_seconds",
			Help:    "The job latency, the difference in seconds between enqueued and running time.",
			Buckets: LongRunningJobBuckets,
		}, base),
	}

	registered := make([]prometheus.Collector, 0, 7)
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			for _, r := range registered {
				reg.Unregister(r)
			}
			return nil, fmt.Errorf("register job metrics: %w", err)
		}
		registered = append(registered, c)
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Executed, m.Enqueued, m.Scheduled, m.Success, m.Failed, m.Runtime, m.Latency}
}

// labelNames returns the sorted union of the default tag keys and names.
func labelNames(defaults map[string]string, names ...string) []string {
	set := make(map[string]struct{}, len(defaults)+len(names))
	for k := range defaults {
		set[k] = struct{}{}
	}
	for _, n := range names {
		set[n] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
