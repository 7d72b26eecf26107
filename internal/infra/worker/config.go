package worker

import (
	"fmt"
	"log/slog"
	"time"

	"crosspost/pkg/config"
)

// WorkerConfig holds the configuration for the publishing worker process:
// the scheduler loop, dispatch limits, maintenance schedule, and the
// operational HTTP ports.
//
// All fields have defaults and validation rules so the worker starts
// safely even with missing or invalid environment configuration.
type WorkerConfig struct {
	// TickInterval is how often the scheduler scans for due posts.
	// Range: 1s-10m. Default: 10s.
	TickInterval time.Duration

	// MaxInFlight bounds concurrent scheduled dispatches.
	// Range: 1-50. Default: 10.
	MaxInFlight int

	// MaxAttempts is the scheduler-level attempt budget per post.
	// Range: 1-10. Default: 3.
	MaxAttempts int

	// DispatchTimeout bounds one dispatch end to end, retries included.
	// Range: 1s-10m. Default: 2m.
	DispatchTimeout time.Duration

	// AutoRequeue converts rate-limited immediate publishes into
	// scheduled posts. Default: false.
	AutoRequeue bool

	// PlatformsFile is the path of the YAML platform catalog.
	// Default: "configs/platforms.yaml".
	PlatformsFile string

	// MaintenanceSchedule is the cron expression for the maintenance job
	// (cache sweep and credential validation).
	// Default: "*/5 * * * *" (every five minutes).
	MaintenanceSchedule string

	// Timezone is the IANA timezone for the maintenance schedule.
	// Default: "UTC".
	Timezone string

	// HealthPort is the port of the health check server.
	// Range: 1024-65535. Default: 9091.
	HealthPort int

	// MetricsPort is the port of the Prometheus metrics server.
	// Range: 1024-65535. Default: 9090.
	MetricsPort int
}

// DefaultConfig returns a WorkerConfig with production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		TickInterval:        10 * time.Second,
		MaxInFlight:         10,
		MaxAttempts:         3,
		DispatchTimeout:     2 * time.Minute,
		AutoRequeue:         false,
		PlatformsFile:       "configs/platforms.yaml",
		MaintenanceSchedule: "*/5 * * * *",
		Timezone:            "UTC",
		HealthPort:          9091,
		MetricsPort:         9090,
	}
}

// Validate checks the configuration. All failures are collected and
// returned together so an operator can fix them in one pass.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateDurationRange(c.TickInterval, time.Second, 10*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("tick interval: %w", err))
	}
	if err := config.ValidateIntRange(c.MaxInFlight, 1, 50); err != nil {
		errs = append(errs, fmt.Errorf("max in flight: %w", err))
	}
	if err := config.ValidateIntRange(c.MaxAttempts, 1, 10); err != nil {
		errs = append(errs, fmt.Errorf("max attempts: %w", err))
	}
	if err := config.ValidateDurationRange(c.DispatchTimeout, time.Second, 10*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("dispatch timeout: %w", err))
	}
	if c.PlatformsFile == "" {
		errs = append(errs, fmt.Errorf("platforms file path cannot be empty"))
	}
	if err := config.ValidateCronSchedule(c.MaintenanceSchedule); err != nil {
		errs = append(errs, fmt.Errorf("maintenance schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := config.ValidateIntRange(c.MetricsPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads worker configuration from environment variables
// with a fail-open strategy: each invalid value falls back to its default
// with a warning, and the returned configuration is always valid.
//
// Environment variables:
//   - SCHEDULER_TICK_INTERVAL: Duration string (default: "10s")
//   - SCHEDULER_MAX_IN_FLIGHT: Integer 1-50 (default: 10)
//   - SCHEDULER_MAX_ATTEMPTS: Integer 1-10 (default: 3)
//   - DISPATCH_TIMEOUT: Duration string (default: "2m")
//   - AUTO_REQUEUE: Boolean (default: false)
//   - PLATFORMS_FILE: Catalog path (default: "configs/platforms.yaml")
//   - MAINTENANCE_SCHEDULE: Cron expression (default: "*/5 * * * *")
//   - WORKER_TIMEZONE: IANA timezone (default: "UTC")
//   - WORKER_HEALTH_PORT: Integer 1024-65535 (default: 9091)
//   - WORKER_METRICS_PORT: Integer 1024-65535 (default: 9090)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) *WorkerConfig {
	defaults := DefaultConfig()
	cfg := defaults

	cfg.TickInterval = config.GetEnvDuration("SCHEDULER_TICK_INTERVAL", defaults.TickInterval)
	cfg.MaxInFlight = config.GetEnvInt("SCHEDULER_MAX_IN_FLIGHT", defaults.MaxInFlight)
	cfg.MaxAttempts = config.GetEnvInt("SCHEDULER_MAX_ATTEMPTS", defaults.MaxAttempts)
	cfg.DispatchTimeout = config.GetEnvDuration("DISPATCH_TIMEOUT", defaults.DispatchTimeout)
	cfg.AutoRequeue = config.GetEnvBool("AUTO_REQUEUE", defaults.AutoRequeue)
	cfg.PlatformsFile = config.GetEnvString("PLATFORMS_FILE", defaults.PlatformsFile)
	cfg.MaintenanceSchedule = config.GetEnvString("MAINTENANCE_SCHEDULE", defaults.MaintenanceSchedule)
	cfg.Timezone = config.GetEnvString("WORKER_TIMEZONE", defaults.Timezone)
	cfg.HealthPort = config.GetEnvInt("WORKER_HEALTH_PORT", defaults.HealthPort)
	cfg.MetricsPort = config.GetEnvInt("WORKER_METRICS_PORT", defaults.MetricsPort)

	// Per-field fallback: any field that fails validation reverts to its
	// default so one bad variable cannot block startup.
	fallbackApplied := false
	revert := func(field string, apply func()) {
		apply()
		fallbackApplied = true
		metrics.RecordConfigFallback(field)
		logger.Warn("configuration fallback applied", slog.String("field", field))
	}

	if err := config.ValidateDurationRange(cfg.TickInterval, time.Second, 10*time.Minute); err != nil {
		revert("tick_interval", func() { cfg.TickInterval = defaults.TickInterval })
	}
	if err := config.ValidateIntRange(cfg.MaxInFlight, 1, 50); err != nil {
		revert("max_in_flight", func() { cfg.MaxInFlight = defaults.MaxInFlight })
	}
	if err := config.ValidateIntRange(cfg.MaxAttempts, 1, 10); err != nil {
		revert("max_attempts", func() { cfg.MaxAttempts = defaults.MaxAttempts })
	}
	if err := config.ValidateDurationRange(cfg.DispatchTimeout, time.Second, 10*time.Minute); err != nil {
		revert("dispatch_timeout", func() { cfg.DispatchTimeout = defaults.DispatchTimeout })
	}
	if cfg.PlatformsFile == "" {
		revert("platforms_file", func() { cfg.PlatformsFile = defaults.PlatformsFile })
	}
	if err := config.ValidateCronSchedule(cfg.MaintenanceSchedule); err != nil {
		revert("maintenance_schedule", func() { cfg.MaintenanceSchedule = defaults.MaintenanceSchedule })
	}
	if err := config.ValidateTimezone(cfg.Timezone); err != nil {
		revert("timezone", func() { cfg.Timezone = defaults.Timezone })
	}
	if err := config.ValidateIntRange(cfg.HealthPort, 1024, 65535); err != nil {
		revert("health_port", func() { cfg.HealthPort = defaults.HealthPort })
	}
	if err := config.ValidateIntRange(cfg.MetricsPort, 1024, 65535); err != nil {
		revert("metrics_port", func() { cfg.MetricsPort = defaults.MetricsPort })
	}

	metrics.SetConfigFallbackActive(fallbackApplied)
	metrics.RecordConfigLoad()
	return &cfg
}
