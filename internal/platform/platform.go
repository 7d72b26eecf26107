// Package platform defines the adapter contract every platform integration
// supplies, the per-platform configuration describing its limits and rate
// parameters, and a registry keyed by platform name.
package platform

import (
	"context"
	"fmt"
	"time"
)

// HashtagStyle controls where formatted hashtags are placed.
type HashtagStyle string

// Hashtag placement conventions.
const (
	// HashtagStyleTrailing appends hashtags after the body, separated by
	// a blank line. Used by platforms where tags read as metadata.
	HashtagStyleTrailing HashtagStyle = "trailing"

	// HashtagStyleInline appends hashtags directly on the body line.
	// Used by platforms where tags read as part of the text.
	HashtagStyleInline HashtagStyle = "inline"
)

// PlatformConfig declares a platform's content limits and rate parameters.
// Loaded from the platform catalog file at startup.
type PlatformConfig struct {
	// Name is the platform identifier used for registry lookups, metrics
	// labels, and circuit breaker keys (lowercase, alphanumeric)
	Name string `yaml:"name"`

	// DisplayName is the human-readable platform name for logs
	DisplayName string `yaml:"display_name"`

	// Endpoint is the delivery endpoint descriptor (webhook URL)
	Endpoint string `yaml:"endpoint"`

	// MaxBodyLength is the maximum formatted body length in characters
	MaxBodyLength int `yaml:"max_body_length"`

	// MaxHashtags is the maximum number of hashtags allowed per post
	MaxHashtags int `yaml:"max_hashtags"`

	// MaxMedia is the maximum number of media attachments per post
	MaxMedia int `yaml:"max_media"`

	// RateCapacity is the token bucket capacity (burst)
	RateCapacity int `yaml:"rate_capacity"`

	// RefillPerSecond is the token bucket refill rate in tokens/second
	RefillPerSecond float64 `yaml:"refill_per_second"`

	// HashtagStyle selects inline vs trailing hashtag placement
	HashtagStyle HashtagStyle `yaml:"hashtag_style"`

	// RequestTimeout is the per-request HTTP timeout for this platform.
	// Parsed from a duration string by the catalog loader.
	RequestTimeout time.Duration `yaml:"-"`
}

// Validate checks that the configuration is usable.
func (c *PlatformConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("platform name is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("platform %q: endpoint is required", c.Name)
	}
	if c.MaxBodyLength <= 0 {
		return fmt.Errorf("platform %q: max_body_length must be positive, got %d", c.Name, c.MaxBodyLength)
	}
	if c.MaxHashtags < 0 {
		return fmt.Errorf("platform %q: max_hashtags must be non-negative, got %d", c.Name, c.MaxHashtags)
	}
	if c.MaxMedia < 0 {
		return fmt.Errorf("platform %q: max_media must be non-negative, got %d", c.Name, c.MaxMedia)
	}
	if c.RateCapacity <= 0 {
		return fmt.Errorf("platform %q: rate_capacity must be positive, got %d", c.Name, c.RateCapacity)
	}
	if c.RefillPerSecond <= 0 {
		return fmt.Errorf("platform %q: refill_per_second must be positive, got %f", c.Name, c.RefillPerSecond)
	}
	switch c.HashtagStyle {
	case HashtagStyleInline, HashtagStyleTrailing, "":
	default:
		return fmt.Errorf("platform %q: unknown hashtag_style %q", c.Name, c.HashtagStyle)
	}
	return nil
}

// MediaAttachment is a media reference in the platform's expected shape.
type MediaAttachment struct {
	URL     string `json:"url"`
	Kind    string `json:"kind"`
	AltText string `json:"alt_text,omitempty"`
}

// Payload is a platform-ready post produced by the formatter. The body is
// already truncated to the platform's limits and hashtags are arranged per
// the platform convention.
type Payload struct {
	Body     string            `json:"body"`
	Media    []MediaAttachment `json:"media,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PostReceipt is the platform's acknowledgement of a delivered post.
type PostReceipt struct {
	// ExternalID is the platform-assigned identifier of the created post
	ExternalID string
}

// Adapter is the contract each platform integration supplies.
//
// Thread Safety:
//   - All methods must be safe for concurrent use by multiple goroutines
//
// Context Handling:
//   - Implementations must respect context cancellation and timeout
type Adapter interface {
	// Name returns the platform identifier (matches Config().Name).
	Name() string

	// Post delivers a formatted payload to the platform and returns the
	// platform-assigned external id.
	//
	// Error classification contract:
	//   - 5xx-equivalent and connection failures: retryable error
	//   - 4xx-equivalent rejections: terminal error
	//   - 429: rate limit error carrying a retry-after hint
	Post(ctx context.Context, payload Payload) (*PostReceipt, error)

	// ValidateCredentials checks whether the configured credentials are
	// currently accepted by the platform.
	ValidateCredentials(ctx context.Context) error

	// Config returns the platform's limits and rate parameters.
	Config() PlatformConfig
}
