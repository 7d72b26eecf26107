// Package schedule runs deferred publishing: posts enqueued for a future
// time are held in a store and dispatched by a background loop when due.
// Failed dispatches are pushed back with exponential backoff until the
// attempt budget runs out.
//
// The store is in-memory; a process restart loses pending posts.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"crosspost/internal/domain/entity"
	"crosspost/internal/resilience/retry"
	"crosspost/internal/usecase/publish"
)

// Dispatcher delivers one due post. Implemented by the publisher client;
// an interface here so the two packages wire up in main without a
// dependency cycle.
type Dispatcher interface {
	PublishScheduled(ctx context.Context, post *entity.ScheduledPost) (*publish.Result, error)
}

// Config holds the configuration for the scheduler.
type Config struct {
	// TickInterval is how often the loop scans for due posts
	TickInterval time.Duration

	// MaxInFlight bounds concurrent dispatch goroutines
	MaxInFlight int64

	// MaxAttempts is the scheduler-level attempt budget per post. Each
	// attempt runs the publisher's own retry stack underneath.
	MaxAttempts int

	// Backoff shapes the reschedule delay after a failed attempt
	Backoff retry.Config
}

// DefaultConfig returns a default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval: 10 * time.Second,
		MaxInFlight:  10,
		MaxAttempts:  3,
		Backoff: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   30 * time.Second,
			MaxDelay:       10 * time.Minute,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	if c.MaxInFlight < 1 {
		return fmt.Errorf("max in flight must be at least 1, got %d", c.MaxInFlight)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}

// Scheduler owns the deferred publishing loop.
//
// Thread Safety:
//   - All methods are safe for concurrent use by multiple goroutines
type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	cfg        Config
	sem        *semaphore.Weighted
	wg         sync.WaitGroup
	clock      func() time.Time
}

// NewScheduler creates a scheduler over the given store and dispatcher.
func NewScheduler(store Store, dispatcher Dispatcher, cfg Config) *Scheduler {
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(cfg.MaxInFlight),
		clock:      time.Now,
	}
}

// Enqueue accepts a post for deferred delivery. A past or zero time is
// allowed; the post becomes due on the next tick.
func (s *Scheduler) Enqueue(content *entity.Content, platformName string, at time.Time) (*entity.ScheduledPost, error) {
	if content == nil {
		return nil, fmt.Errorf("scheduled content must not be nil")
	}
	if err := content.Validate(); err != nil {
		return nil, fmt.Errorf("scheduled content invalid: %w", err)
	}

	now := s.clock()
	post := &entity.ScheduledPost{
		ID:          uuid.New().String(),
		Content:     content,
		Platform:    platformName,
		ScheduledAt: at,
		Status:      entity.PostStatusScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Save(post); err != nil {
		return nil, fmt.Errorf("save scheduled post: %w", err)
	}

	RecordEnqueued(platformName)
	slog.Info("post enqueued",
		slog.String("post_id", post.ID),
		slog.String("content_id", content.ID),
		slog.String("platform", platformName),
		slog.Time("scheduled_at", at))
	return post, nil
}

// Cancel cancels a pending post. A post already mid-dispatch is marked
// cancelled: the in-flight call is not aborted, but its outcome is
// discarded and no retry follows. Returns false when the post is unknown
// or already terminal; cancelling twice returns false the second time.
func (s *Scheduler) Cancel(id string) bool {
	ok := s.store.Cancel(id)
	if ok {
		RecordCancelled()
		slog.Info("scheduled post cancelled", slog.String("post_id", id))
	}
	return ok
}

// Status returns a copy of the post's current record.
func (s *Scheduler) Status(id string) (*entity.ScheduledPost, bool) {
	return s.store.Get(id)
}

// Run drives the dispatch loop until the context is cancelled. Call
// Shutdown afterwards to wait for in-flight dispatches.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	slog.Info("scheduler started",
		slog.Duration("tick_interval", s.cfg.TickInterval),
		slog.Int64("max_in_flight", s.cfg.MaxInFlight))

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Shutdown waits for in-flight dispatches to finish or the context to
// expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("scheduler shutdown complete")
		return nil
	case <-ctx.Done():
		slog.Warn("scheduler shutdown timeout")
		return ctx.Err()
	}
}

// tick claims every due post and dispatches each in its own goroutine,
// bounded by the in-flight semaphore.
func (s *Scheduler) tick(ctx context.Context) {
	due := s.store.ClaimDue(s.clock(), 0)
	if len(due) == 0 {
		return
	}

	slog.Debug("dispatching due posts", slog.Int("count", len(due)))
	for _, post := range due {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			// Shutting down; push the post back for the next run.
			s.requeue(post, post.ScheduledAt)
			continue
		}
		s.wg.Add(1)
		go s.dispatch(ctx, post)
	}
}

// dispatch delivers one claimed post and folds the outcome back into the
// store.
func (s *Scheduler) dispatch(ctx context.Context, post *entity.ScheduledPost) {
	defer s.wg.Done()
	defer s.sem.Release(1)

	IncrementInFlight()
	defer DecrementInFlight()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic dispatching scheduled post",
				slog.String("post_id", post.ID),
				slog.String("platform", post.Platform),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			s.handleFailure(post, fmt.Sprintf("panic: %v", r))
		}
	}()

	result, err := s.dispatcher.PublishScheduled(ctx, post)
	if err != nil {
		// Programmer error (unknown platform, nil content); no amount of
		// rescheduling fixes it.
		s.fail(post, err.Error())
		return
	}

	switch result.Status {
	case publish.StatusPublished:
		post.ExternalID = result.ExternalID
		post.Attempts++
		post.LastError = ""
		if err := post.TransitionTo(entity.PostStatusPublished); err != nil {
			slog.Error("illegal transition on published post",
				slog.String("post_id", post.ID), slog.Any("error", err))
		}
		s.update(post)
		RecordDispatchOutcome(post.Platform, "published")
		slog.Info("scheduled post published",
			slog.String("post_id", post.ID),
			slog.String("platform", post.Platform),
			slog.String("external_id", result.ExternalID),
			slog.Int("attempts", post.Attempts))

	case publish.StatusRejected:
		issues := ""
		if len(result.Issues) > 0 {
			issues = result.Issues[0].Message
		}
		s.fail(post, "validation failed: "+issues)

	case publish.StatusRateLimited:
		// Not an attempt: nothing was sent. Push to when a token frees up.
		s.requeue(post, s.clock().Add(result.RetryAfter))
		RecordDispatchOutcome(post.Platform, "rescheduled")

	default:
		s.handleFailure(post, result.Error)
	}
}

// handleFailure reschedules a failed post with backoff or marks it
// terminally failed once the attempt budget is spent.
func (s *Scheduler) handleFailure(post *entity.ScheduledPost, lastError string) {
	post.Attempts++
	post.LastError = lastError

	if post.Attempts >= s.cfg.MaxAttempts {
		s.fail(post, lastError)
		return
	}

	delay := s.cfg.Backoff.Backoff(post.Attempts)
	next := s.clock().Add(delay)
	slog.Warn("scheduled post failed, rescheduling",
		slog.String("post_id", post.ID),
		slog.String("platform", post.Platform),
		slog.Int("attempts", post.Attempts),
		slog.Int("max_attempts", s.cfg.MaxAttempts),
		slog.Time("next_attempt", next),
		slog.String("error", lastError))
	s.requeue(post, next)
	RecordDispatchOutcome(post.Platform, "rescheduled")
}

// requeue pushes a publishing post back to scheduled at the given time.
func (s *Scheduler) requeue(post *entity.ScheduledPost, at time.Time) {
	post.ScheduledAt = at
	if err := post.TransitionTo(entity.PostStatusScheduled); err != nil {
		slog.Error("illegal transition on requeue",
			slog.String("post_id", post.ID), slog.Any("error", err))
		return
	}
	s.update(post)
}

// fail marks a post terminally failed.
func (s *Scheduler) fail(post *entity.ScheduledPost, lastError string) {
	post.LastError = lastError
	if err := post.TransitionTo(entity.PostStatusFailed); err != nil {
		slog.Error("illegal transition on failure",
			slog.String("post_id", post.ID), slog.Any("error", err))
		return
	}
	s.update(post)
	RecordDispatchOutcome(post.Platform, "failed")
	slog.Error("scheduled post failed permanently",
		slog.String("post_id", post.ID),
		slog.String("platform", post.Platform),
		slog.Int("attempts", post.Attempts),
		slog.String("error", lastError))
}

// update writes a post back, logging store failures instead of
// propagating them: the dispatch goroutine has nowhere to return them.
// A post cancelled mid-dispatch keeps its cancellation; the outcome is
// dropped.
func (s *Scheduler) update(post *entity.ScheduledPost) {
	err := s.store.Update(post)
	switch {
	case err == nil:
	case errors.Is(err, ErrCancelled):
		slog.Info("dispatch outcome discarded for cancelled post",
			slog.String("post_id", post.ID),
			slog.String("platform", post.Platform))
	default:
		slog.Error("failed to persist scheduled post",
			slog.String("post_id", post.ID),
			slog.Any("error", err))
	}
}
