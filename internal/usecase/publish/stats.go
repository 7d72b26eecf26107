package publish

import (
	"sync"
	"time"
)

// DeliveryStats is a snapshot of per-platform delivery counters.
type DeliveryStats struct {
	Attempts    int64     // Delivery attempts consumed, retries included
	Published   int64     // Successful publishes
	Failed      int64     // Terminal failures after resilience gave up
	Rejected    int64     // Validation rejections (no network attempt)
	RateLimited int64     // Publishes refused for lack of a token
	LastOutcome Status    // Status of the most recent publish
	LastAt      time.Time // When the most recent publish finished
}

// statsBook accumulates delivery counters per platform.
type statsBook struct {
	mu         sync.Mutex
	byPlatform map[string]*DeliveryStats
}

func newStatsBook() *statsBook {
	return &statsBook{byPlatform: make(map[string]*DeliveryStats)}
}

// record folds one publish outcome into the platform's counters.
func (b *statsBook) record(platform string, status Status, attempts int, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.byPlatform[platform]
	if !ok {
		s = &DeliveryStats{}
		b.byPlatform[platform] = s
	}

	s.Attempts += int64(attempts)
	switch status {
	case StatusPublished:
		s.Published++
	case StatusFailed:
		s.Failed++
	case StatusRejected:
		s.Rejected++
	case StatusRateLimited:
		s.RateLimited++
	}
	s.LastOutcome = status
	s.LastAt = at
}

// snapshot returns a copy of the platform's counters. Unknown platforms
// yield zeroes.
func (b *statsBook) snapshot(platform string) DeliveryStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.byPlatform[platform]; ok {
		return *s
	}
	return DeliveryStats{}
}
