package worker

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWorkerMetrics(t *testing.T) {
	// Verify that globalTestMetrics (created via NewWorkerMetrics) is initialized correctly.
	// We use the global instance to avoid duplicate Prometheus registration.
	metrics := globalTestMetrics

	if metrics == nil {
		t.Fatal("NewWorkerMetrics returned nil")
	}
	if metrics.ConfigLoadTimestamp == nil {
		t.Error("ConfigLoadTimestamp is nil")
	}
	if metrics.ConfigFallbacksTotal == nil {
		t.Error("ConfigFallbacksTotal is nil")
	}
	if metrics.ConfigFallbackActive == nil {
		t.Error("ConfigFallbackActive is nil")
	}
	if metrics.MaintenanceRunsTotal == nil {
		t.Error("MaintenanceRunsTotal is nil")
	}
	if metrics.MaintenanceDurationSeconds == nil {
		t.Error("MaintenanceDurationSeconds is nil")
	}
	if metrics.MaintenanceCacheEvictionsTotal == nil {
		t.Error("MaintenanceCacheEvictionsTotal is nil")
	}
	if metrics.MaintenanceCredentialChecksTotal == nil {
		t.Error("MaintenanceCredentialChecksTotal is nil")
	}
	if metrics.MaintenanceLastSuccessTimestamp == nil {
		t.Error("MaintenanceLastSuccessTimestamp is nil")
	}
}

func TestWorkerMetrics_RecordJobRun(t *testing.T) {
	// Custom registry for isolated testing
	reg := prometheus.NewRegistry()

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_worker_maintenance_runs_total",
		Help: "Test counter",
	}, []string{"status"})
	reg.MustRegister(counter)

	metrics := &WorkerMetrics{
		MaintenanceRunsTotal: counter,
	}

	metrics.RecordJobRun("success")
	metrics.RecordJobRun("success")
	metrics.RecordJobRun("failure")

	successCount := testutil.ToFloat64(metrics.MaintenanceRunsTotal.WithLabelValues("success"))
	if successCount != 2 {
		t.Errorf("Expected success count 2, got %f", successCount)
	}

	failureCount := testutil.ToFloat64(metrics.MaintenanceRunsTotal.WithLabelValues("failure"))
	if failureCount != 1 {
		t.Errorf("Expected failure count 1, got %f", failureCount)
	}
}

func TestWorkerMetrics_RecordCacheEvictions(t *testing.T) {
	reg := prometheus.NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_worker_maintenance_cache_evictions_total",
		Help: "Test counter",
	})
	reg.MustRegister(counter)

	metrics := &WorkerMetrics{
		MaintenanceCacheEvictionsTotal: counter,
	}

	metrics.RecordCacheEvictions(3)
	metrics.RecordCacheEvictions(2)

	total := testutil.ToFloat64(metrics.MaintenanceCacheEvictionsTotal)
	if total != 5 {
		t.Errorf("Expected eviction total 5, got %f", total)
	}
}

func TestWorkerMetrics_RecordCredentialCheck(t *testing.T) {
	reg := prometheus.NewRegistry()

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_worker_maintenance_credential_checks_total",
		Help: "Test counter",
	}, []string{"platform", "result"})
	reg.MustRegister(counter)

	metrics := &WorkerMetrics{
		MaintenanceCredentialChecksTotal: counter,
	}

	metrics.RecordCredentialCheck("mastodon", "valid")
	metrics.RecordCredentialCheck("mastodon", "valid")
	metrics.RecordCredentialCheck("bluesky", "invalid")

	validCount := testutil.ToFloat64(metrics.MaintenanceCredentialChecksTotal.WithLabelValues("mastodon", "valid"))
	if validCount != 2 {
		t.Errorf("Expected mastodon valid count 2, got %f", validCount)
	}

	invalidCount := testutil.ToFloat64(metrics.MaintenanceCredentialChecksTotal.WithLabelValues("bluesky", "invalid"))
	if invalidCount != 1 {
		t.Errorf("Expected bluesky invalid count 1, got %f", invalidCount)
	}
}

func TestWorkerMetrics_SetConfigFallbackActive(t *testing.T) {
	reg := prometheus.NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_worker_config_fallback_active",
		Help: "Test gauge",
	})
	reg.MustRegister(gauge)

	metrics := &WorkerMetrics{
		ConfigFallbackActive: gauge,
	}

	metrics.SetConfigFallbackActive(true)
	if got := testutil.ToFloat64(metrics.ConfigFallbackActive); got != 1 {
		t.Errorf("Expected gauge 1, got %f", got)
	}

	metrics.SetConfigFallbackActive(false)
	if got := testutil.ToFloat64(metrics.ConfigFallbackActive); got != 0 {
		t.Errorf("Expected gauge 0, got %f", got)
	}
}
