// Package entity defines the core domain entities for the publishing engine.
// It contains the fundamental business objects such as Content and ScheduledPost,
// along with their state machines and domain-specific errors.
package entity

import (
	"strconv"
	"time"
)

// ContentStatus represents the lifecycle state of a content item.
type ContentStatus string

// Content lifecycle states.
const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusScheduled ContentStatus = "scheduled"
	ContentStatusPublished ContentStatus = "published"
	ContentStatusFailed    ContentStatus = "failed"
	ContentStatusCancelled ContentStatus = "cancelled"
)

// MediaKind classifies a media attachment.
type MediaKind string

// Supported media kinds.
const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
	MediaKindGIF   MediaKind = "gif"
)

// MediaRef is a reference to a media asset attached to a content item.
// The asset itself lives in external storage; the engine only forwards
// the reference to the target platform.
type MediaRef struct {
	URL     string    `json:"url"`
	Kind    MediaKind `json:"kind"`
	AltText string    `json:"alt_text,omitempty"`
}

// Content represents a finalized content item ready for delivery.
// It is produced by an upstream content-assembly system; the publishing
// engine only consumes it and never mutates the body.
type Content struct {
	ID        string            `json:"id"`
	Body      string            `json:"body"`
	Hashtags  []string          `json:"hashtags,omitempty"`
	Media     []MediaRef        `json:"media,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Status    ContentStatus     `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// Validate performs structural checks that make a content item usable at all,
// independent of any platform limits. Platform limits are checked by the
// publish use case.
func (c *Content) Validate() error {
	if c == nil {
		return ErrInvalidInput
	}
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "content id is required"}
	}
	if c.Body == "" && len(c.Media) == 0 {
		return &ValidationError{Field: "body", Message: "content must have a body or media"}
	}
	for i, m := range c.Media {
		switch m.Kind {
		case MediaKindImage, MediaKindVideo, MediaKindGIF:
		default:
			return &ValidationError{Field: "media", Message: "unknown media kind at index " + strconv.Itoa(i)}
		}
	}
	return nil
}
