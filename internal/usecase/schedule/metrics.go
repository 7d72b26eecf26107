package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the scheduler.
var (
	// postsEnqueuedTotal tracks posts accepted for deferred delivery
	postsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_posts_enqueued_total",
			Help: "Total number of posts enqueued for deferred delivery",
		},
		[]string{"platform"},
	)

	// dispatchesTotal tracks dispatch outcomes per platform
	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_dispatches_total",
			Help: "Total number of scheduled post dispatches by outcome",
		},
		[]string{"platform", "outcome"}, // outcome: published|rescheduled|failed|cancelled
	)

	// postsCancelledTotal tracks successful cancellations
	postsCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_posts_cancelled_total",
			Help: "Total number of scheduled posts cancelled",
		},
	)

	// inFlightDispatches tracks currently running dispatch goroutines
	inFlightDispatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_inflight_dispatches",
			Help: "Number of scheduled post dispatches currently in flight",
		},
	)
)

// RecordEnqueued records a post accepted for deferred delivery.
func RecordEnqueued(platform string) {
	postsEnqueuedTotal.WithLabelValues(platform).Inc()
}

// RecordDispatchOutcome records the outcome of one scheduled dispatch.
//
// Parameters:
//   - platform: The target platform name
//   - outcome: published, rescheduled, or failed
func RecordDispatchOutcome(platform, outcome string) {
	dispatchesTotal.WithLabelValues(platform, outcome).Inc()
}

// RecordCancelled records a successful cancellation.
func RecordCancelled() {
	postsCancelledTotal.Inc()
}

// IncrementInFlight increments the in-flight dispatch gauge by 1.
func IncrementInFlight() {
	inFlightDispatches.Inc()
}

// DecrementInFlight decrements the in-flight dispatch gauge by 1.
func DecrementInFlight() {
	inFlightDispatches.Dec()
}
