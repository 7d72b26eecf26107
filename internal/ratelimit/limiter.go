// Package ratelimit provides per-platform token bucket rate limiting for
// outbound delivery. Buckets are created lazily from platform configuration
// and refill continuously; acquisition never blocks, it either grants a
// token or reports when the next one becomes available so the caller can
// defer or queue.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"crosspost/internal/platform"
)

// Clock provides an abstraction for time operations to enable testing.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// Decision is the outcome of a token acquisition attempt.
type Decision struct {
	// Allowed reports whether a token was granted
	Allowed bool

	// Remaining is the number of whole tokens left after this decision.
	// Never negative.
	Remaining int

	// RetryAfter is how long until the next token becomes available.
	// Only set when Allowed is false.
	RetryAfter time.Duration

	// RetryAt is the absolute time of the next available token.
	// Only set when Allowed is false.
	RetryAt time.Time
}

// bucket pairs a token bucket with the mutex that serializes the
// reserve-then-cancel sequence in Acquire. rate.Limiter is internally
// thread-safe, but the sequence must be atomic per platform.
type bucket struct {
	mu  sync.Mutex
	lim *rate.Limiter
}

// Limiter holds one token bucket per platform.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	configs map[string]platform.PlatformConfig
	clock   Clock
}

// NewLimiter creates a limiter for the given platform configurations.
// Pass a nil clock to use system time.
func NewLimiter(configs []platform.PlatformConfig, clock Clock) *Limiter {
	if clock == nil {
		clock = &SystemClock{}
	}
	byName := make(map[string]platform.PlatformConfig, len(configs))
	for _, cfg := range configs {
		byName[cfg.Name] = cfg
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		configs: byName,
		clock:   clock,
	}
}

// bucketFor returns the bucket for a platform, creating it lazily from the
// platform's configured capacity and refill rate. Unknown platforms get a
// conservative single-token bucket.
func (l *Limiter) bucketFor(name string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[name]
	if ok {
		return b
	}

	capacity := 1
	refill := rate.Limit(1)
	if cfg, ok := l.configs[name]; ok {
		capacity = cfg.RateCapacity
		refill = rate.Limit(cfg.RefillPerSecond)
	}

	b = &bucket{lim: rate.NewLimiter(refill, capacity)}
	// A fresh rate.Limiter starts full as of its creation instant; pin the
	// fill level to the injected clock so tests are deterministic.
	b.lim.AllowN(l.clock.Now(), 0)
	l.buckets[name] = b
	return b
}

// Acquire attempts to take one token for the platform without blocking.
//
// If a token is available it is consumed and the decision is allowed.
// Otherwise no token is consumed and the decision carries an accurate
// retry-after derived from the bucket's refill rate; the caller decides
// whether to defer or queue.
func (l *Limiter) Acquire(name string) Decision {
	b := l.bucketFor(name)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.clock.Now()
	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		// Request exceeds burst entirely; cannot ever be satisfied.
		RecordDenied(name)
		return Decision{Allowed: false, RetryAfter: time.Hour, RetryAt: now.Add(time.Hour)}
	}

	delay := res.DelayFrom(now)
	if delay > 0 {
		// The token is not available yet; give it back and tell the
		// caller when to come back.
		res.CancelAt(now)
		RecordDenied(name)
		return Decision{
			Allowed:    false,
			RetryAfter: delay,
			RetryAt:    now.Add(delay),
		}
	}

	RecordAllowed(name)
	return Decision{
		Allowed:   true,
		Remaining: remainingTokens(b.lim, now),
	}
}

// ApplyReported tightens the local bucket from platform-reported rate-limit
// state (remaining calls and window reset time). The local estimate only
// ever gets stricter: if the platform reports fewer remaining calls than
// the bucket holds, the surplus is drained; if the platform reports zero
// remaining, availability is pushed out towards the reported reset.
func (l *Limiter) ApplyReported(name string, remaining int, reset time.Time) {
	if remaining < 0 {
		remaining = 0
	}
	b := l.bucketFor(name)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.clock.Now()
	local := remainingTokens(b.lim, now)
	if local > remaining {
		drain := local - remaining
		for i := 0; i < drain; i++ {
			b.lim.ReserveN(now, 1)
		}
		RecordAdaptiveTighten(name)
	}

	if remaining == 0 && reset.After(now) {
		// Push the next availability out to the reported reset by
		// pre-booking the tokens that would refill before it. Bounded by
		// the bucket's burst so a bogus far-future reset cannot wedge the
		// bucket indefinitely.
		extra := int(reset.Sub(now).Seconds() * float64(b.lim.Limit()))
		if max := b.lim.Burst(); extra > max {
			extra = max
		}
		for i := 0; i < extra; i++ {
			b.lim.ReserveN(now, 1)
		}
	}
}

// Remaining returns the number of whole tokens currently available for the
// platform. Never negative.
func (l *Limiter) Remaining(name string) int {
	b := l.bucketFor(name)

	b.mu.Lock()
	defer b.mu.Unlock()

	return remainingTokens(b.lim, l.clock.Now())
}

// remainingTokens clamps the limiter's token count to a non-negative whole
// number. Pending reservations can push the raw count below zero; callers
// only ever see zero.
func remainingTokens(lim *rate.Limiter, now time.Time) int {
	tokens := int(lim.TokensAt(now))
	if tokens < 0 {
		return 0
	}
	return tokens
}
