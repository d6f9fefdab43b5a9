package jobmetrics

import (
	"fmt"
	"math"
	"time"

	"github.com/Spok95/activejob-metrics/internal/eventtime"
)

// Latency returns the seconds between enqueuedAt and end. ok is false when
// enqueuedAt is absent. Negative values (clock skew) are returned as is.
func Latency(enqueuedAt, end eventtime.Timestamp) (seconds float64, ok bool, err error) {
	if enqueuedAt == nil {
		return 0, false, nil
	}
	enq, err := eventtime.Normalize(enqueuedAt)
	if err != nil {
		return 0, false, fmt.Errorf("enqueued_at: %w", err)
	}
	fin, err := eventtime.Normalize(end)
	if err != nil {
		return 0, false, fmt.Errorf("event end: %w", err)
	}
	return fin.Sub(enq).Seconds(), true, nil
}

// RuntimeSeconds converts a perform duration to seconds with millisecond precision.
func RuntimeSeconds(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms) / 1000
}
