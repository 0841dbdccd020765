package persistence

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// NormalizeSlug trims whitespace, lowercases the value, and ensures it matches
// the canonical URL-safe slug pattern used as a tenant routing key. Slugs are
// immutable once used for routing, so validation happens before any row is
// written.
func NormalizeSlug(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("%w: slug is required", ErrInvalidSlug)
	}

	normalized := strings.ToLower(trimmed)
	if !slugPattern.MatchString(normalized) {
		return "", fmt.Errorf("%w: %q must match ^[a-z0-9]+(?:-[a-z0-9]+)*$", ErrInvalidSlug, input)
	}

	return normalized, nil
}
