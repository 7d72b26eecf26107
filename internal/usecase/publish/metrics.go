package publish

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for publish outcomes.
var (
	// publishTotal tracks publish outcomes per platform
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_publish_total",
			Help: "Total number of publish requests by outcome",
		},
		[]string{"platform", "status"}, // status: published|scheduled|rejected|rate_limited|failed
	)

	// dispatchDuration tracks end-to-end dispatch duration including retries
	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publisher_dispatch_duration_seconds",
			Help:    "Dispatch duration in seconds, retries included",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"platform"},
	)

	// dispatchAttempts tracks delivery attempts consumed per dispatch
	dispatchAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publisher_dispatch_attempts",
			Help:    "Number of delivery attempts per dispatch",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"platform"},
	)
)

// RecordOutcome records the final status of a publish request.
//
// Parameters:
//   - platform: The target platform name
//   - status: The result status (published, scheduled, rejected, rate_limited, failed)
func RecordOutcome(platform string, status Status) {
	publishTotal.WithLabelValues(platform, string(status)).Inc()
}

// RecordDispatch records the duration and attempt count of a completed
// dispatch, successful or not.
func RecordDispatch(platform string, duration time.Duration, attempts int) {
	dispatchDuration.WithLabelValues(platform).Observe(duration.Seconds())
	dispatchAttempts.WithLabelValues(platform).Observe(float64(attempts))
}
