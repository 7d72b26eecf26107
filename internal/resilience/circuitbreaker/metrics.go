package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// circuitStateChanges tracks circuit breaker state transitions per target
	circuitStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_circuit_state_changes_total",
			Help: "Total number of circuit breaker state changes",
		},
		[]string{"circuit", "to"},
	)
)

// RecordStateChange records a circuit breaker state transition.
//
// Parameters:
//   - circuit: The circuit breaker name (platform target)
//   - to: The state entered (closed, open, half-open)
func RecordStateChange(circuit, to string) {
	circuitStateChanges.WithLabelValues(circuit, to).Inc()
}
