package platform

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCatalogYAML = `
platforms:
  - name: mastodon
    display_name: Mastodon
    endpoint: https://example.social/api/v1/statuses
    max_body_length: 500
    max_hashtags: 10
    max_media: 4
    rate_capacity: 30
    refill_per_second: 0.5
    hashtag_style: trailing
    request_timeout: 15s
  - name: microblog
    display_name: Microblog
    endpoint: https://micro.example/api/post
    max_body_length: 280
    max_hashtags: 5
    max_media: 4
    rate_capacity: 10
    refill_per_second: 0.2
    hashtag_style: inline
`

func TestParseCatalog_Valid(t *testing.T) {
	catalog, err := ParseCatalog([]byte(validCatalogYAML))
	require.NoError(t, err)
	require.Len(t, catalog.Platforms, 2)

	mastodon := catalog.Platforms[0]
	assert.Equal(t, "mastodon", mastodon.Name)
	assert.Equal(t, 500, mastodon.MaxBodyLength)
	assert.Equal(t, 30, mastodon.RateCapacity)
	assert.Equal(t, 0.5, mastodon.RefillPerSecond)
	assert.Equal(t, HashtagStyleTrailing, mastodon.HashtagStyle)
	assert.Equal(t, 15*time.Second, mastodon.RequestTimeout)

	assert.Equal(t, HashtagStyleInline, catalog.Platforms[1].HashtagStyle)
}

func TestParseCatalog_DefaultsHashtagStyle(t *testing.T) {
	yaml := `
platforms:
  - name: plain
    endpoint: https://plain.example/post
    max_body_length: 100
    rate_capacity: 5
    refill_per_second: 1.0
`
	catalog, err := ParseCatalog([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, HashtagStyleTrailing, catalog.Platforms[0].HashtagStyle)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "empty catalog",
			yaml:    "platforms: []",
			wantMsg: "empty",
		},
		{
			name: "missing endpoint",
			yaml: `
platforms:
  - name: broken
    max_body_length: 100
    rate_capacity: 5
    refill_per_second: 1.0
`,
			wantMsg: "endpoint is required",
		},
		{
			name: "zero body length",
			yaml: `
platforms:
  - name: broken
    endpoint: https://x.example
    rate_capacity: 5
    refill_per_second: 1.0
`,
			wantMsg: "max_body_length",
		},
		{
			name: "duplicate names",
			yaml: `
platforms:
  - name: twin
    endpoint: https://a.example
    max_body_length: 100
    rate_capacity: 5
    refill_per_second: 1.0
  - name: twin
    endpoint: https://b.example
    max_body_length: 100
    rate_capacity: 5
    refill_per_second: 1.0
`,
			wantMsg: "duplicate",
		},
		{
			name: "bad hashtag style",
			yaml: `
platforms:
  - name: broken
    endpoint: https://x.example
    max_body_length: 100
    rate_capacity: 5
    refill_per_second: 1.0
    hashtag_style: sideways
`,
			wantMsg: "hashtag_style",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantMsg),
				"error %q should mention %q", err.Error(), tt.wantMsg)
		})
	}
}

type stubAdapter struct {
	name string
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Post(_ context.Context, _ Payload) (*PostReceipt, error) {
	return &PostReceipt{ExternalID: "x"}, nil
}
func (s *stubAdapter) ValidateCredentials(_ context.Context) error { return nil }
func (s *stubAdapter) Config() PlatformConfig                      { return PlatformConfig{Name: s.name} }

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubAdapter{name: "mastodon"}))
	require.NoError(t, reg.Register(&stubAdapter{name: "bluesky"}))

	assert.Error(t, reg.Register(&stubAdapter{name: "mastodon"}), "duplicate registration must fail")

	a, err := reg.Get("mastodon")
	require.NoError(t, err)
	assert.Equal(t, "mastodon", a.Name())

	_, err = reg.Get("myspace")
	assert.Error(t, err, "unknown platform must fail fast")

	assert.Equal(t, []string{"bluesky", "mastodon"}, reg.Names())
}
