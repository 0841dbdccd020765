package tenant

import (
	"fmt"
	"strings"
)

// ToSnake converts a kebab-case slug into snake_case for database identifiers.
func ToSnake(slug string) string {
	return strings.ReplaceAll(strings.ToLower(slug), "-", "_")
}

// DatabaseID returns the canonical physical database name for a tenant slug.
// The first attempt is the slug itself in snake_case; collisions are resolved
// by the registry retrying with increasing attempt numbers.
func DatabaseID(slug string) string {
	return ToSnake(slug)
}

// DatabaseIDAttempt returns the database name for the given collision-retry
// attempt. Attempt 0 is the plain derivation; attempt n appends "_<n+1>",
// so "acme" collides into "acme_2", "acme_3", and so on.
func DatabaseIDAttempt(slug string, attempt int) string {
	if attempt <= 0 {
		return DatabaseID(slug)
	}
	return fmt.Sprintf("%s_%d", DatabaseID(slug), attempt+1)
}
