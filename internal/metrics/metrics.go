// Package metrics holds the exporter's own metrics, served next to the job metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jobmetrics"

// Error stages.
const (
	StageDecode  = "decode"
	StageHandle = "handle"
)

var (
	EventsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "events_handled_total", Help: "Job events delivered to the metric handler",
	}, []string{"event"})
	EventErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "event_errors_total", Help: "Job events that could not be recorded",
	}, []string{"event", "stage"})
	HookFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "hook_failures_total", Help: "After-event hook errors and panics",
	}, []string{"event"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "db_ping_seconds", Help: "Event source DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(EventsHandled, EventErrors, HookFailures, DBPing)
}

// Handler serves the default registry, which also carries the job metrics.
func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
