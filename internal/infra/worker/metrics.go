package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the worker process:
// configuration loading and the periodic maintenance job.
//
// Configuration metrics:
//   - worker_config_load_timestamp: Unix timestamp of last configuration load
//   - worker_config_fallbacks_total: Total fallback operations by field
//   - worker_config_fallback_active: 1 if any fallback active, 0 otherwise
//
// Maintenance job metrics:
//   - worker_maintenance_runs_total: Total maintenance runs by status (success/failure)
//   - worker_maintenance_duration_seconds: Duration histogram of maintenance runs
//   - worker_maintenance_cache_evictions_total: Expired cache entries removed by sweeps
//   - worker_maintenance_credential_checks_total: Credential validations by platform and result
//   - worker_maintenance_last_success_timestamp: Unix timestamp of last successful run
//
// Example usage:
//
//	metrics := NewWorkerMetrics()
//
//	start := time.Now()
//	evicted := cache.Sweep()
//	metrics.RecordCacheEvictions(evicted)
//	metrics.RecordJobRun("success")
//	metrics.RecordJobDuration(time.Since(start).Seconds())
//	metrics.RecordLastSuccess()
type WorkerMetrics struct {
	// ConfigLoadTimestamp records when configuration was last loaded.
	// Type: Gauge
	ConfigLoadTimestamp prometheus.Gauge

	// ConfigFallbacksTotal counts configuration fields reverted to defaults.
	// Type: Counter
	// Labels: field
	ConfigFallbacksTotal *prometheus.CounterVec

	// ConfigFallbackActive is 1 while any configuration fallback is in effect.
	// Type: Gauge
	ConfigFallbackActive prometheus.Gauge

	// MaintenanceRunsTotal counts maintenance job runs.
	// Type: Counter
	// Labels: status (success, failure)
	MaintenanceRunsTotal *prometheus.CounterVec

	// MaintenanceDurationSeconds measures maintenance job duration.
	// Type: Histogram
	// Buckets: 10ms to 30s, sized for a cache sweep plus a handful of
	// credential probes.
	MaintenanceDurationSeconds prometheus.Histogram

	// MaintenanceCacheEvictionsTotal counts expired cache entries removed
	// by maintenance sweeps.
	// Type: Counter
	MaintenanceCacheEvictionsTotal prometheus.Counter

	// MaintenanceCredentialChecksTotal counts credential validations.
	// Type: Counter
	// Labels: platform, result (valid, invalid, error)
	MaintenanceCredentialChecksTotal *prometheus.CounterVec

	// MaintenanceLastSuccessTimestamp records the Unix timestamp of the
	// last successful maintenance run.
	// Type: Gauge
	MaintenanceLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates a WorkerMetrics instance with all metrics
// initialized and registered on the default Prometheus registry.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigLoadTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_config_load_timestamp",
			Help: "Unix timestamp of the last configuration load",
		}),

		ConfigFallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_config_fallbacks_total",
			Help: "Total number of configuration fields reverted to defaults",
		}, []string{"field"}),

		ConfigFallbackActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_config_fallback_active",
			Help: "1 if any configuration fallback is currently active, 0 otherwise",
		}),

		MaintenanceRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_maintenance_runs_total",
			Help: "Total number of maintenance job runs by status (success/failure)",
		}, []string{"status"}),

		MaintenanceDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_maintenance_duration_seconds",
			Help:    "Duration of maintenance job runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 15, 30},
		}),

		MaintenanceCacheEvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_maintenance_cache_evictions_total",
			Help: "Total number of expired cache entries removed by maintenance sweeps",
		}),

		MaintenanceCredentialChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_maintenance_credential_checks_total",
			Help: "Total number of credential validations by platform and result",
		}, []string{"platform", "result"}),

		MaintenanceLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_maintenance_last_success_timestamp",
			Help: "Unix timestamp of the last successful maintenance run",
		}),
	}
}

// RecordConfigLoad records the current time as the last configuration load.
func (m *WorkerMetrics) RecordConfigLoad() {
	m.ConfigLoadTimestamp.SetToCurrentTime()
}

// RecordConfigFallback increments the fallback counter for a configuration field.
//
// Parameters:
//   - field: Configuration field that reverted to its default (e.g. "tick_interval")
func (m *WorkerMetrics) RecordConfigFallback(field string) {
	m.ConfigFallbacksTotal.WithLabelValues(field).Inc()
}

// SetConfigFallbackActive sets the fallback-active gauge.
//
// Parameters:
//   - active: true if any configuration field is running on its default
//     because the configured value was invalid
func (m *WorkerMetrics) SetConfigFallbackActive(active bool) {
	if active {
		m.ConfigFallbackActive.Set(1)
	} else {
		m.ConfigFallbackActive.Set(0)
	}
}

// RecordJobRun increments the maintenance run counter for the given status.
//
// Parameters:
//   - status: Run status, either "success" or "failure"
func (m *WorkerMetrics) RecordJobRun(status string) {
	m.MaintenanceRunsTotal.WithLabelValues(status).Inc()
}

// RecordJobDuration observes the duration of a maintenance run in seconds.
func (m *WorkerMetrics) RecordJobDuration(seconds float64) {
	m.MaintenanceDurationSeconds.Observe(seconds)
}

// RecordCacheEvictions adds the number of cache entries evicted by a sweep.
func (m *WorkerMetrics) RecordCacheEvictions(count int) {
	m.MaintenanceCacheEvictionsTotal.Add(float64(count))
}

// RecordCredentialCheck increments the credential check counter.
//
// Parameters:
//   - platform: Platform name (e.g. "mastodon")
//   - result: Check result ("valid", "invalid", or "error")
func (m *WorkerMetrics) RecordCredentialCheck(platform, result string) {
	m.MaintenanceCredentialChecksTotal.WithLabelValues(platform, result).Inc()
}

// RecordLastSuccess records the current time as the last successful
// maintenance run.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.MaintenanceLastSuccessTimestamp.SetToCurrentTime()
}
