package runner

import "github.com/prometheus/client_golang/prometheus"

var (
	sourceRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmetrics_source_runs_total",
			Help: "Total event source runs, including restarts",
		},
		[]string{"source"},
	)

	sourceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmetrics_source_errors_total",
			Help: "Total event source runs that ended in an error or panic",
		},
		[]string{"source"},
	)

	sourceRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobmetrics_source_run_seconds",
			Help:    "How long an event source ran before returning",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 21600, 86400},
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(sourceRuns, sourceErrors, sourceRunDuration)
}
