package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"crosspost/internal/cache"
	"crosspost/internal/observability/logging"
	"crosspost/internal/observability/tracing"
	"crosspost/internal/platform"
	"crosspost/internal/ratelimit"
	"crosspost/internal/resilience/circuitbreaker"
	"crosspost/internal/resilience/retry"
	"crosspost/internal/usecase/publish"
	"crosspost/internal/usecase/schedule"
	"crosspost/pkg/config"

	webhookAdapter "crosspost/internal/infra/webhook"
	workerPkg "crosspost/internal/infra/worker"
)

// credentialCheckTTL is how long a credential check result is memoized.
// A platform whose token was just validated is not probed again on the
// next maintenance run.
const credentialCheckTTL = 30 * time.Minute

func main() {
	logger := initLogger()

	// Shutdown context tied to SIGINT/SIGTERM; background jobs pull the
	// logger back out of it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	logger.Info("worker configuration loaded",
		slog.Duration("tick_interval", workerConfig.TickInterval),
		slog.Int("max_in_flight", workerConfig.MaxInFlight),
		slog.Int("max_attempts", workerConfig.MaxAttempts),
		slog.Duration("dispatch_timeout", workerConfig.DispatchTimeout),
		slog.Bool("auto_requeue", workerConfig.AutoRequeue),
		slog.String("platforms_file", workerConfig.PlatformsFile),
		slog.String("maintenance_schedule", workerConfig.MaintenanceSchedule),
		slog.Int("health_port", workerConfig.HealthPort),
		slog.Int("metrics_port", workerConfig.MetricsPort))

	// Tracing
	tracerShutdown, err := tracing.Setup(ctx, "crosspost-worker")
	if err != nil {
		logger.Error("failed to set up tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	// Platform catalog
	platforms := loadPlatforms(logger, workerConfig.PlatformsFile)

	// Rate limiter with platform bucket parameters; webhook adapters feed
	// platform-reported rate headers back into it.
	limiter := ratelimit.NewLimiter(platforms, nil)

	registry := platform.NewRegistry()
	for _, cfg := range platforms {
		adapter := webhookAdapter.NewClient(webhookAdapter.Config{
			Platform:   cfg,
			AuthToken:  platformAuthToken(cfg.Name),
			OnRateInfo: limiter.ApplyReported,
		})
		if err := registry.Register(adapter); err != nil {
			logger.Error("failed to register platform",
				slog.String("platform", cfg.Name),
				slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("platform registered",
			slog.String("platform", cfg.Name),
			slog.Int("max_body_length", cfg.MaxBodyLength),
			slog.Int("rate_capacity", cfg.RateCapacity))
	}

	cacheManager := cache.NewManager()
	breakers := circuitbreaker.NewRegistry(nil)

	// Publisher
	publishConfig := publish.DefaultConfig()
	publishConfig.DispatchTimeout = workerConfig.DispatchTimeout
	publishConfig.AutoRequeue = workerConfig.AutoRequeue
	if err := publishConfig.Validate(); err != nil {
		logger.Error("invalid publisher configuration", slog.Any("error", err))
		os.Exit(1)
	}
	publisher := publish.NewClient(registry, limiter, breakers, cacheManager, publishConfig)

	// Scheduler, wired back into the publisher for deferred posts
	scheduleConfig := schedule.DefaultConfig()
	scheduleConfig.TickInterval = workerConfig.TickInterval
	scheduleConfig.MaxInFlight = int64(workerConfig.MaxInFlight)
	scheduleConfig.MaxAttempts = workerConfig.MaxAttempts
	if err := scheduleConfig.Validate(); err != nil {
		logger.Error("invalid scheduler configuration", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler := schedule.NewScheduler(schedule.NewMemoryStore(), publisher, scheduleConfig)
	publisher.SetEnqueuer(scheduler)

	// Operational HTTP servers
	startMetricsServer(ctx, logger, workerConfig.MetricsPort)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger, breakers.States)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	// Maintenance cron: cache sweep + credential validation
	maintenance := startMaintenance(ctx, logger, workerConfig, workerMetrics, cacheManager, registry)
	defer maintenance.Stop()

	// Scheduler loop
	go scheduler.Run(ctx)
	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.Duration("tick_interval", workerConfig.TickInterval),
		slog.Int("platforms", len(platforms)))

	<-ctx.Done()
	logger.Info("shutdown signal received")
	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown incomplete", slog.Any("error", err))
	} else {
		logger.Info("scheduler drained")
	}
}

// initLogger initializes the process-wide structured logger.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// loadPlatforms reads the platform catalog and applies the optional
// ENABLED_PLATFORMS filter. An empty filter enables every catalog entry.
func loadPlatforms(logger *slog.Logger, path string) []platform.PlatformConfig {
	catalog, err := platform.LoadCatalog(path)
	if err != nil {
		logger.Error("failed to load platform catalog",
			slog.String("path", path),
			slog.Any("error", err))
		os.Exit(1)
	}

	enabled := config.GetEnvStringList("ENABLED_PLATFORMS", nil)
	if len(enabled) == 0 {
		return catalog.Platforms
	}

	wanted := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		wanted[strings.ToLower(name)] = struct{}{}
	}

	var selected []platform.PlatformConfig
	for _, cfg := range catalog.Platforms {
		if _, ok := wanted[cfg.Name]; ok {
			selected = append(selected, cfg)
		}
	}
	if len(selected) == 0 {
		logger.Error("ENABLED_PLATFORMS matches no catalog entry",
			slog.Any("enabled", enabled))
		os.Exit(1)
	}
	return selected
}

// platformAuthToken reads the bearer token for a platform from
// <NAME>_AUTH_TOKEN (e.g. MASTODON_AUTH_TOKEN). An empty token means the
// endpoint is called unauthenticated.
func platformAuthToken(name string) string {
	key := strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_AUTH_TOKEN"
	return os.Getenv(key)
}

// startMaintenance schedules the periodic maintenance job and returns the
// cron runner so the caller can stop it on shutdown.
func startMaintenance(ctx context.Context, logger *slog.Logger, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics, cacheManager *cache.Manager, registry *platform.Registry) *cron.Cron {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC",
			slog.String("timezone", cfg.Timezone),
			slog.Any("error", err))
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.MaintenanceSchedule, func() {
		runMaintenance(ctx, metrics, cacheManager, registry)
	})
	if err != nil {
		logger.Error("failed to schedule maintenance job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	logger.Info("maintenance job scheduled",
		slog.String("schedule", cfg.MaintenanceSchedule),
		slog.String("timezone", cfg.Timezone))
	return c
}

// runMaintenance executes one maintenance pass: sweep expired cache
// entries and validate each platform's credentials. Check results are
// memoized in the cache so a healthy platform is probed at most once
// per credentialCheckTTL.
func runMaintenance(ctx context.Context, metrics *workerPkg.WorkerMetrics, cacheManager *cache.Manager, registry *platform.Registry) {
	logger := logging.FromContext(ctx)
	startTime := time.Now()
	logger.Info("maintenance started")

	evicted := cacheManager.Sweep()
	metrics.RecordCacheEvictions(evicted)

	failed := false
	for _, name := range registry.Names() {
		result := checkCredentials(ctx, cacheManager, registry, name)
		if result == "" {
			continue // memoized, nothing to record
		}
		metrics.RecordCredentialCheck(name, result)
		if result == "error" {
			failed = true
		}
	}

	status := "success"
	if failed {
		status = "failure"
	}
	metrics.RecordJobRun(status)
	metrics.RecordJobDuration(time.Since(startTime).Seconds())
	if !failed {
		metrics.RecordLastSuccess()
	}

	logger.Info("maintenance completed",
		slog.String("status", status),
		slog.Int("cache_evicted", evicted),
		slog.Duration("duration", time.Since(startTime)))
}

// checkCredentials probes one platform's credentials unless a recent
// result is memoized. Returns "valid", "invalid", "error", or "" when
// the memoized result is still fresh.
func checkCredentials(ctx context.Context, cacheManager *cache.Manager, registry *platform.Registry, name string) string {
	logger := logging.FromContext(ctx)
	cacheKey := "credcheck:" + name
	if _, ok := cacheManager.Get(cacheKey); ok {
		return ""
	}

	adapter, err := registry.Get(name)
	if err != nil {
		return ""
	}

	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	checkErr := retry.WithBackoff(probeCtx, retry.CredentialCheckConfig(), func() error {
		return adapter.ValidateCredentials(probeCtx)
	})

	switch {
	case checkErr == nil:
		cacheManager.Set(cacheKey, "valid", credentialCheckTTL, "platform:"+name)
		return "valid"
	case webhookAdapter.IsPermanent(checkErr):
		logger.Warn("platform credentials rejected",
			slog.String("platform", name),
			slog.Any("error", checkErr))
		// Memoize rejections too; a revoked token stays revoked until
		// an operator rotates it.
		cacheManager.Set(cacheKey, "invalid", credentialCheckTTL, "platform:"+name)
		return "invalid"
	default:
		logger.Warn("credential check did not complete",
			slog.String("platform", name),
			slog.Any("error", checkErr))
		return "error"
	}
}
