package publish

import (
	"strings"
	"unicode/utf8"

	"crosspost/internal/domain/entity"
	"crosspost/internal/platform"
)

// ellipsis marks a truncated body.
const ellipsis = "…"

// FormatContent arranges a content item into the platform's expected shape:
// hashtags normalized and placed per the platform convention, the body
// truncated to the platform's character limit with hashtag space reserved,
// and media mapped up to the platform's attachment limit.
//
// Returns the payload and whether the body was truncated.
func FormatContent(content *entity.Content, cfg platform.PlatformConfig) (platform.Payload, bool) {
	tags := normalizeHashtags(content.Hashtags, cfg.MaxHashtags)
	body, truncated := arrangeBody(content.Body, tags, cfg)

	payload := platform.Payload{
		Body:     body,
		Metadata: content.Metadata,
	}

	maxMedia := len(content.Media)
	if cfg.MaxMedia < maxMedia {
		maxMedia = cfg.MaxMedia
	}
	for _, m := range content.Media[:maxMedia] {
		payload.Media = append(payload.Media, platform.MediaAttachment{
			URL:     m.URL,
			Kind:    string(m.Kind),
			AltText: m.AltText,
		})
	}

	return payload, truncated
}

// normalizeHashtags trims, deduplicates, prefixes with '#', and caps the
// tag list at the platform limit. A limit of zero means the platform has
// no hashtag support and tags are dropped entirely.
func normalizeHashtags(tags []string, max int) []string {
	if max <= 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		tag = strings.TrimPrefix(tag, "#")
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, "#"+tag)
		if len(out) == max {
			break
		}
	}
	return out
}

// arrangeBody combines body and hashtags under the platform's character
// limit. Hashtag space is reserved first: tags are metadata the platforms
// index, losing them hurts more than losing trailing body characters.
// If the tags alone would not leave room for any body, the tags are
// dropped instead.
func arrangeBody(body string, tags []string, cfg platform.PlatformConfig) (string, bool) {
	limit := cfg.MaxBodyLength

	separator := " "
	if cfg.HashtagStyle != platform.HashtagStyleInline {
		separator = "\n\n"
	}

	if len(tags) == 0 {
		return truncate(body, limit)
	}

	tagLine := strings.Join(tags, " ")
	reserved := utf8.RuneCountInString(separator) + utf8.RuneCountInString(tagLine)
	available := limit - reserved
	if available < 1 {
		return truncate(body, limit)
	}

	body, truncated := truncate(body, available)
	return body + separator + tagLine, truncated
}

// truncate shortens s to at most limit characters, replacing the tail with
// an ellipsis when it does. Counts runes, not bytes.
func truncate(s string, limit int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	if limit < 1 {
		return "", true
	}
	return string(runes[:limit-1]) + ellipsis, true
}
