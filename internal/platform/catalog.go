package platform

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk platform configuration file.
//
// Example:
//
//	platforms:
//	  - name: mastodon
//	    display_name: Mastodon
//	    endpoint: https://example.social/api/v1/statuses
//	    max_body_length: 500
//	    max_hashtags: 10
//	    max_media: 4
//	    rate_capacity: 30
//	    refill_per_second: 0.5
//	    hashtag_style: trailing
//	    request_timeout: 15s
type Catalog struct {
	Platforms []PlatformConfig `yaml:"platforms"`
}

// UnmarshalYAML decodes a catalog entry, accepting request_timeout as a
// duration string such as "15s" or "1m30s".
func (c *PlatformConfig) UnmarshalYAML(value *yaml.Node) error {
	type alias PlatformConfig
	aux := struct {
		*alias         `yaml:",inline"`
		RequestTimeout string `yaml:"request_timeout"`
	}{alias: (*alias)(c)}

	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.RequestTimeout != "" {
		d, err := time.ParseDuration(aux.RequestTimeout)
		if err != nil {
			return fmt.Errorf("platform %q: invalid request_timeout: %w", c.Name, err)
		}
		c.RequestTimeout = d
	}
	return nil
}

// LoadCatalog reads and validates the platform catalog from a YAML file.
// Every entry must pass PlatformConfig.Validate and names must be unique.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("read platform catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse platform catalog: %w", err)
	}

	if len(catalog.Platforms) == 0 {
		return nil, fmt.Errorf("platform catalog is empty")
	}

	seen := make(map[string]struct{}, len(catalog.Platforms))
	for i := range catalog.Platforms {
		cfg := &catalog.Platforms[i]
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("platform catalog entry %d: %w", i, err)
		}
		if _, dup := seen[cfg.Name]; dup {
			return nil, fmt.Errorf("platform catalog: duplicate platform %q", cfg.Name)
		}
		seen[cfg.Name] = struct{}{}
		if cfg.HashtagStyle == "" {
			cfg.HashtagStyle = HashtagStyleTrailing
		}
	}

	return &catalog, nil
}
