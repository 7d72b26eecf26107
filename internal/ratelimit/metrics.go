package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// rateLimitDecisions tracks token acquisitions per platform and outcome
	rateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_rate_limit_decisions_total",
			Help: "Total number of rate limit token acquisition decisions",
		},
		[]string{"platform", "outcome"}, // outcome: allowed|denied
	)

	// rateLimitAdaptiveTightens tracks adaptive overrides from platform headers
	rateLimitAdaptiveTightens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_rate_limit_adaptive_tightens_total",
			Help: "Total number of times platform-reported limits tightened the local bucket",
		},
		[]string{"platform"},
	)
)

// RecordAllowed records a granted token acquisition.
func RecordAllowed(platform string) {
	rateLimitDecisions.WithLabelValues(platform, "allowed").Inc()
}

// RecordDenied records a denied token acquisition.
func RecordDenied(platform string) {
	rateLimitDecisions.WithLabelValues(platform, "denied").Inc()
}

// RecordAdaptiveTighten records an adaptive tightening applied from
// platform-reported rate-limit state.
func RecordAdaptiveTighten(platform string) {
	rateLimitAdaptiveTightens.WithLabelValues(platform).Inc()
}
