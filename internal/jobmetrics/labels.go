package jobmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Labels is the label set of a single observation.
type Labels = prometheus.Labels

// Labels builds the label set for job: default tags first, then the job
// fields, then extra. Later values win.
func (m *Metrics) Labels(job JobDescriptor, extra Labels) Labels {
	out := make(Labels, len(m.defaultTags)+3+len(extra))
	for k, v := range m.defaultTags {
		out[k] = v
	}
	out[LabelActiveJob] = job.ClassName
	out[LabelQueue] = job.QueueName
	out[LabelExecutions] = strconv.Itoa(max(job.Executions, 0))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
