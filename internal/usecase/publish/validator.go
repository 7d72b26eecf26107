package publish

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"crosspost/internal/domain/entity"
	"crosspost/internal/platform"
)

// Issue is a validation failure that blocks publishing to a platform.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationReport is the outcome of checking a content item against a
// platform's limits. Issues block publishing; warnings do not.
type ValidationReport struct {
	Issues   []Issue  `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Valid reports whether the content may be published as-is.
func (r *ValidationReport) Valid() bool {
	return len(r.Issues) == 0
}

// ValidateContent checks a content item against a platform's declared
// limits. Structural problems and limit violations become issues; style
// and accessibility concerns become warnings.
//
// The raw body length is checked against the platform limit here even
// though the formatter can truncate: an immediate publish of oversize
// content is a caller mistake, not something to silently shorten.
func ValidateContent(content *entity.Content, cfg platform.PlatformConfig) ValidationReport {
	var report ValidationReport

	if err := content.Validate(); err != nil {
		var vErr *entity.ValidationError
		if errors.As(err, &vErr) {
			report.Issues = append(report.Issues, Issue{Field: vErr.Field, Message: vErr.Message})
		} else {
			report.Issues = append(report.Issues, Issue{Field: "content", Message: err.Error()})
		}
		return report
	}

	if n := utf8.RuneCountInString(content.Body); n > cfg.MaxBodyLength {
		report.Issues = append(report.Issues, Issue{
			Field:   "body",
			Message: fmt.Sprintf("body is %d characters, %s allows %d", n, cfg.Name, cfg.MaxBodyLength),
		})
	}

	if len(content.Hashtags) > cfg.MaxHashtags {
		report.Issues = append(report.Issues, Issue{
			Field:   "hashtags",
			Message: fmt.Sprintf("%d hashtags, %s allows %d", len(content.Hashtags), cfg.Name, cfg.MaxHashtags),
		})
	}
	for _, tag := range content.Hashtags {
		if strings.ContainsAny(tag, " \t\n") {
			report.Issues = append(report.Issues, Issue{
				Field:   "hashtags",
				Message: fmt.Sprintf("hashtag %q contains whitespace", tag),
			})
		}
	}

	if len(content.Media) > cfg.MaxMedia {
		report.Issues = append(report.Issues, Issue{
			Field:   "media",
			Message: fmt.Sprintf("%d media attachments, %s allows %d", len(content.Media), cfg.Name, cfg.MaxMedia),
		})
	}
	for i, m := range content.Media {
		if m.AltText == "" {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("media %d has no alt text", i))
		}
	}

	return report
}
