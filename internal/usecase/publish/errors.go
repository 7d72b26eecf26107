package publish

import "errors"

// Sentinel errors for the publish use case.
var (
	// ErrNoEnqueuer indicates a deferred publish was requested but no
	// scheduler is wired to accept it.
	ErrNoEnqueuer = errors.New("no enqueuer configured for deferred publishing")

	// ErrNilContent indicates a nil content item was passed to Publish.
	ErrNilContent = errors.New("content must not be nil")
)
