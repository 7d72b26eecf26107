package entity

import (
	"fmt"
	"time"
)

// PostStatus represents the delivery state of a scheduled post.
type PostStatus string

// Scheduled post states. Transitions only move forward:
// scheduled -> publishing -> {published | failed | cancelled}.
const (
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
	PostStatusCancelled  PostStatus = "cancelled"
)

// allowedTransitions encodes the forward-only state machine for posts.
var allowedTransitions = map[PostStatus][]PostStatus{
	PostStatusScheduled:  {PostStatusPublishing, PostStatusCancelled},
	PostStatusPublishing: {PostStatusPublished, PostStatusFailed, PostStatusCancelled, PostStatusScheduled},
	PostStatusPublished:  {},
	PostStatusFailed:     {},
	PostStatusCancelled:  {},
}

// ScheduledPost is a content-delivery request deferred to a future time.
// It tracks the retry state across scheduler attempts and is a plain
// serializable record so a durable store can be wired in later.
//
// The scheduler holds posts in memory only; a process restart loses
// pending posts.
type ScheduledPost struct {
	ID          string     `json:"id"`
	Content     *Content   `json:"content"`
	Platform    string     `json:"platform"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	Status      PostStatus `json:"status"`
	ExternalID  string     `json:"external_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the post has reached a final state and will
// never be dispatched again.
func (p *ScheduledPost) IsTerminal() bool {
	switch p.Status {
	case PostStatusPublished, PostStatusFailed, PostStatusCancelled:
		return true
	}
	return false
}

// TransitionTo moves the post to the given status, enforcing the
// forward-only state machine. A publishing post may move back to
// scheduled only as a retry reschedule; every other backward move is
// rejected.
//
// Returns ErrInvalidTransition if the move is not allowed.
func (p *ScheduledPost) TransitionTo(next PostStatus) error {
	for _, allowed := range allowedTransitions[p.Status] {
		if allowed == next {
			p.Status = next
			p.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
}
