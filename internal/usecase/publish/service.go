// Package publish implements the publishing pipeline: validate a content
// item against platform limits, format it into the platform's shape,
// acquire a rate limit token, and dispatch through the resilience stack
// (timeout wrapping retry wrapping a per-platform circuit breaker).
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"crosspost/internal/cache"
	"crosspost/internal/domain/entity"
	"crosspost/internal/platform"
	"crosspost/internal/ratelimit"
	"crosspost/internal/resilience/circuitbreaker"
	"crosspost/internal/resilience/retry"
	"crosspost/internal/resilience/timeout"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// Status is the final outcome of a publish request.
type Status string

// Publish outcomes.
const (
	// StatusPublished: the platform accepted the post
	StatusPublished Status = "published"

	// StatusScheduled: the request was handed to the scheduler
	StatusScheduled Status = "scheduled"

	// StatusRejected: validation failed, nothing was sent
	StatusRejected Status = "rejected"

	// StatusRateLimited: no rate limit token was available
	StatusRateLimited Status = "rate_limited"

	// StatusFailed: dispatch was attempted and did not succeed
	StatusFailed Status = "failed"
)

// Result describes what happened to a publish request. Publish always
// returns a Result for runtime outcomes; only programmer errors (nil
// content, unknown platform) surface as Go errors.
type Result struct {
	Status   Status `json:"status"`
	Platform string `json:"platform"`

	// ExternalID is the platform-assigned post id. Set when published.
	ExternalID string `json:"external_id,omitempty"`

	// Issues and Warnings come from validation. Issues only on rejection.
	Issues   []Issue  `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// RetryAfter is when to try again. Set when rate limited.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Attempts is the number of delivery attempts consumed.
	Attempts int `json:"attempts,omitempty"`

	// ScheduledPostID is the queued post's id. Set when the request was
	// deferred to the scheduler, including rate-limit auto-requeues.
	ScheduledPostID string `json:"scheduled_post_id,omitempty"`

	// FailureReason is a short machine-readable reason on failure
	// (circuit_open, exhausted, timeout, permanent_rejection).
	FailureReason string `json:"failure_reason,omitempty"`

	// Error is the last underlying failure, rendered for operators.
	Error string `json:"error,omitempty"`
}

// Preview is a dry-run rendering of a content item for one platform.
type Preview struct {
	Payload      platform.Payload `json:"payload"`
	BodyLength   int              `json:"body_length"`
	Truncated    bool             `json:"truncated"`
	HashtagCount int              `json:"hashtag_count"`
	MediaCount   int              `json:"media_count"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// Enqueuer accepts deferred publish requests. Implemented by the
// scheduler; an interface here so the two packages wire up in main
// without a dependency cycle.
type Enqueuer interface {
	Enqueue(content *entity.Content, platformName string, at time.Time) (*entity.ScheduledPost, error)
}

// DeliveryRecord is the cache entry written per publish outcome under
// "delivery:<content>:<platform>".
type DeliveryRecord struct {
	Status     Status    `json:"status"`
	ExternalID string    `json:"external_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Config holds the configuration for the publisher client.
type Config struct {
	// Retry is the backoff configuration for transient dispatch failures
	Retry retry.Config

	// DispatchTimeout bounds one dispatch end to end, retries included
	DispatchTimeout time.Duration

	// AutoRequeue converts rate-limited immediate publishes into
	// scheduled posts at the token availability time
	AutoRequeue bool

	// DeliveryRecordTTL is how long delivery outcomes stay cached
	DeliveryRecordTTL time.Duration
}

// DefaultConfig returns a default publisher configuration.
func DefaultConfig() Config {
	return Config{
		Retry:             retry.DispatchConfig(),
		DispatchTimeout:   2 * time.Minute,
		AutoRequeue:       false,
		DeliveryRecordTTL: time.Hour,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch timeout must be positive, got %v", c.DispatchTimeout)
	}
	if c.DeliveryRecordTTL <= 0 {
		return fmt.Errorf("delivery record ttl must be positive, got %v", c.DeliveryRecordTTL)
	}
	return nil
}

// Client orchestrates publishing across registered platforms.
//
// Thread Safety:
//   - All methods are safe for concurrent use by multiple goroutines
type Client struct {
	registry *platform.Registry
	limiter  *ratelimit.Limiter
	breakers *circuitbreaker.Registry
	cache    *cache.Manager
	cfg      Config
	stats    *statsBook
	enqueuer Enqueuer
	clock    func() time.Time
}

// NewClient creates a publisher client. The cache is optional; pass nil to
// skip delivery record bookkeeping.
func NewClient(registry *platform.Registry, limiter *ratelimit.Limiter, breakers *circuitbreaker.Registry, cacheMgr *cache.Manager, cfg Config) *Client {
	return &Client{
		registry: registry,
		limiter:  limiter,
		breakers: breakers,
		cache:    cacheMgr,
		cfg:      cfg,
		stats:    newStatsBook(),
		clock:    time.Now,
	}
}

// SetEnqueuer wires the scheduler in after construction. Must be called
// before Publish sees any future-dated request; not safe to call
// concurrently with Publish.
func (c *Client) SetEnqueuer(e Enqueuer) {
	c.enqueuer = e
}

// Publish validates, formats, and delivers a content item to one platform.
//
// A future scheduleAt defers the request to the scheduler. A zero or past
// scheduleAt publishes immediately. Runtime failures come back inside the
// Result; only programmer errors (nil content, unknown platform) return a
// non-nil error.
func (c *Client) Publish(ctx context.Context, content *entity.Content, platformName string, scheduleAt time.Time) (*Result, error) {
	if content == nil {
		return nil, ErrNilContent
	}
	adapter, err := c.registry.Get(platformName)
	if err != nil {
		return nil, err
	}

	ctx, requestID := ensureRequestID(ctx)
	now := c.clock()

	// Deferred publish: hand off to the scheduler untouched. Validation
	// happens at dispatch time against the platform limits of that moment.
	if scheduleAt.After(now) {
		return c.deferToScheduler(content, platformName, scheduleAt, requestID)
	}

	report := ValidateContent(content, adapter.Config())
	if !report.Valid() {
		slog.Warn("content rejected by validation",
			slog.String("request_id", requestID),
			slog.String("content_id", content.ID),
			slog.String("platform", platformName),
			slog.Int("issues", len(report.Issues)))
		result := &Result{
			Status:   StatusRejected,
			Platform: platformName,
			Issues:   report.Issues,
			Warnings: report.Warnings,
		}
		c.finish(content, result)
		return result, nil
	}

	decision := c.limiter.Acquire(platformName)
	if !decision.Allowed {
		return c.rateLimited(content, platformName, decision, requestID, report.Warnings)
	}

	payload, _ := FormatContent(content, adapter.Config())
	result := c.dispatch(ctx, adapter, payload, requestID, content.ID)
	result.Warnings = report.Warnings
	c.finish(content, result)
	return result, nil
}

// PublishScheduled delivers a due scheduled post. Called by the scheduler;
// skips the deferral branch but otherwise follows the same pipeline.
// A rate-limited result tells the scheduler to push the post back without
// consuming an attempt.
func (c *Client) PublishScheduled(ctx context.Context, post *entity.ScheduledPost) (*Result, error) {
	if post == nil || post.Content == nil {
		return nil, ErrNilContent
	}
	adapter, err := c.registry.Get(post.Platform)
	if err != nil {
		return nil, err
	}

	ctx, requestID := ensureRequestID(ctx)

	report := ValidateContent(post.Content, adapter.Config())
	if !report.Valid() {
		result := &Result{
			Status:   StatusRejected,
			Platform: post.Platform,
			Issues:   report.Issues,
			Warnings: report.Warnings,
		}
		c.finish(post.Content, result)
		return result, nil
	}

	decision := c.limiter.Acquire(post.Platform)
	if !decision.Allowed {
		slog.Info("scheduled post deferred by rate limit",
			slog.String("request_id", requestID),
			slog.String("post_id", post.ID),
			slog.String("platform", post.Platform),
			slog.Duration("retry_after", decision.RetryAfter))
		result := &Result{
			Status:     StatusRateLimited,
			Platform:   post.Platform,
			RetryAfter: decision.RetryAfter,
		}
		c.finish(post.Content, result)
		return result, nil
	}

	payload, _ := FormatContent(post.Content, adapter.Config())
	result := c.dispatch(ctx, adapter, payload, requestID, post.Content.ID)
	result.Warnings = report.Warnings
	c.finish(post.Content, result)
	return result, nil
}

// Preview renders a content item for a platform without side effects: no
// token is consumed, nothing is sent, no stats move.
func (c *Client) Preview(content *entity.Content, platformName string) (*Preview, error) {
	if content == nil {
		return nil, ErrNilContent
	}
	adapter, err := c.registry.Get(platformName)
	if err != nil {
		return nil, err
	}

	cfg := adapter.Config()
	report := ValidateContent(content, cfg)
	payload, truncated := FormatContent(content, cfg)

	return &Preview{
		Payload:      payload,
		BodyLength:   len([]rune(payload.Body)),
		Truncated:    truncated,
		HashtagCount: len(normalizeHashtags(content.Hashtags, cfg.MaxHashtags)),
		MediaCount:   len(payload.Media),
		Warnings:     report.Warnings,
	}, nil
}

// Stats returns a snapshot of delivery counters for one platform.
func (c *Client) Stats(platformName string) DeliveryStats {
	return c.stats.snapshot(platformName)
}

// dispatch delivers a payload through the resilience stack. The circuit
// breaker sits innermost so open-circuit rejections are visible to the
// retry loop, which aborts instead of burning attempts; the timeout
// wrapper bounds the whole retried sequence.
func (c *Client) dispatch(ctx context.Context, adapter platform.Adapter, payload platform.Payload, requestID, contentID string) *Result {
	name := adapter.Name()
	cb := c.breakers.ForTarget(name)

	tracer := otel.Tracer("crosspost/publish")
	ctx, span := tracer.Start(ctx, "publish.dispatch")
	span.SetAttributes(
		attribute.String("platform", name),
		attribute.String("content.id", contentID),
	)
	defer span.End()

	var receipt *platform.PostReceipt
	attempts := 0
	start := c.clock()

	err := timeout.Do(ctx, "dispatch "+name, c.cfg.DispatchTimeout, func(ctx context.Context) error {
		return retry.WithBackoff(ctx, c.cfg.Retry, func() error {
			res, cbErr := cb.Execute(func() (interface{}, error) {
				return adapter.Post(ctx, payload)
			})
			// Open-circuit rejections never reached the network and do
			// not count as attempts.
			if !circuitbreaker.IsCircuitOpen(cbErr) {
				attempts++
			}
			if cbErr != nil {
				return cbErr
			}
			receipt = res.(*platform.PostReceipt)
			return nil
		})
	})

	duration := c.clock().Sub(start)
	RecordDispatch(name, duration, attempts)
	span.SetAttributes(attribute.Int("dispatch.attempts", attempts))

	if err == nil {
		slog.Info("content published",
			slog.String("request_id", requestID),
			slog.String("content_id", contentID),
			slog.String("platform", name),
			slog.String("external_id", receipt.ExternalID),
			slog.Int("attempts", attempts),
			slog.Duration("duration", duration))
		return &Result{
			Status:     StatusPublished,
			Platform:   name,
			ExternalID: receipt.ExternalID,
			Attempts:   attempts,
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	result := &Result{
		Status:   StatusFailed,
		Platform: name,
		Attempts: attempts,
		Error:    err.Error(),
	}
	switch {
	case circuitbreaker.IsCircuitOpen(err):
		result.FailureReason = "circuit_open"
	case timeout.IsTimeout(err):
		result.FailureReason = "timeout"
	case isExhausted(err):
		result.FailureReason = "exhausted"
	default:
		result.FailureReason = "permanent_rejection"
	}

	slog.Warn("dispatch failed",
		slog.String("request_id", requestID),
		slog.String("content_id", contentID),
		slog.String("platform", name),
		slog.String("reason", result.FailureReason),
		slog.Int("attempts", attempts),
		slog.Any("error", err))
	return result
}

// deferToScheduler hands a future-dated request to the scheduler.
func (c *Client) deferToScheduler(content *entity.Content, platformName string, at time.Time, requestID string) (*Result, error) {
	if c.enqueuer == nil {
		return nil, ErrNoEnqueuer
	}
	post, err := c.enqueuer.Enqueue(content, platformName, at)
	if err != nil {
		return nil, fmt.Errorf("enqueue scheduled post: %w", err)
	}

	slog.Info("publish deferred",
		slog.String("request_id", requestID),
		slog.String("content_id", content.ID),
		slog.String("platform", platformName),
		slog.String("post_id", post.ID),
		slog.Time("scheduled_at", at))

	result := &Result{
		Status:          StatusScheduled,
		Platform:        platformName,
		ScheduledPostID: post.ID,
	}
	RecordOutcome(platformName, result.Status)
	c.stats.record(platformName, result.Status, 0, c.clock())
	return result, nil
}

// rateLimited builds the result for a publish refused by the limiter,
// auto-requeueing it as a scheduled post when configured.
func (c *Client) rateLimited(content *entity.Content, platformName string, decision ratelimit.Decision, requestID string, warnings []string) (*Result, error) {
	result := &Result{
		Status:     StatusRateLimited,
		Platform:   platformName,
		RetryAfter: decision.RetryAfter,
		Warnings:   warnings,
	}

	if c.cfg.AutoRequeue && c.enqueuer != nil {
		post, err := c.enqueuer.Enqueue(content, platformName, decision.RetryAt)
		if err != nil {
			return nil, fmt.Errorf("requeue rate-limited post: %w", err)
		}
		result.ScheduledPostID = post.ID
		slog.Info("rate-limited publish requeued",
			slog.String("request_id", requestID),
			slog.String("content_id", content.ID),
			slog.String("platform", platformName),
			slog.String("post_id", post.ID),
			slog.Time("retry_at", decision.RetryAt))
	} else {
		slog.Warn("publish rate limited",
			slog.String("request_id", requestID),
			slog.String("content_id", content.ID),
			slog.String("platform", platformName),
			slog.Duration("retry_after", decision.RetryAfter))
	}

	c.finish(content, result)
	return result, nil
}

// finish records metrics, stats, and the cached delivery record for a
// completed publish. Records cached for the same content id are
// invalidated first so a new outcome supersedes every stale one.
func (c *Client) finish(content *entity.Content, result *Result) {
	now := c.clock()
	RecordOutcome(result.Platform, result.Status)
	c.stats.record(result.Platform, result.Status, result.Attempts, now)

	if c.cache == nil {
		return
	}
	c.cache.InvalidateTag("content:" + content.ID)
	key := fmt.Sprintf("delivery:%s:%s", content.ID, result.Platform)
	c.cache.Set(key, DeliveryRecord{
		Status:     result.Status,
		ExternalID: result.ExternalID,
		Error:      result.Error,
		At:         now,
	}, c.cfg.DeliveryRecordTTL, "content:"+content.ID, "platform:"+result.Platform)
}

// ensureRequestID inherits a request id from the context or mints one,
// and stores it back for downstream tracing.
func ensureRequestID(ctx context.Context) (context.Context, string) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return context.WithValue(ctx, requestIDKey, id), id
}

// isExhausted reports whether the error is a retry exhaustion.
func isExhausted(err error) bool {
	var ex *retry.ExhaustedError
	return errors.As(err, &ex)
}
