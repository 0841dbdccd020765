package persistence

import "errors"

var (
	// ErrInvalidSlug is returned when a requested slug fails validation.
	ErrInvalidSlug = errors.New("invalid tenant slug")

	// ErrNotFound is returned when no tenant record matches the lookup.
	ErrNotFound = errors.New("tenant not found")

	// ErrDuplicateTenant is returned when a slug is already registered or the
	// database-id collision retry budget is exhausted.
	ErrDuplicateTenant = errors.New("tenant already exists")

	// ErrIllegalTransition is returned when the requested status change is not
	// a legal lifecycle edge, regardless of what the row currently holds.
	ErrIllegalTransition = errors.New("illegal tenant status transition")

	// ErrStaleTransition is returned when a compare-and-swap status change
	// loses a race: the row's current status no longer matches the expected
	// one. Callers either retry their higher-level operation or poll the
	// registry until the winner reaches a terminal state.
	ErrStaleTransition = errors.New("stale tenant status transition")
)
