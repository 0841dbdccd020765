package routing

import "errors"

var (
	// ErrMissingTenantContext is returned when a tenant-scoped entity is
	// routed without a tenant on the context. This is a programming error in
	// the caller and must fail loudly rather than fall back to the shared
	// database.
	ErrMissingTenantContext = errors.New("tenant context required for tenant-scoped entity")

	// ErrTenantNotAccessible is returned when the tenant exists but is
	// suspended or deleted.
	ErrTenantNotAccessible = errors.New("tenant is not accessible")

	// ErrTenantUnavailable is returned when the tenant's database could not
	// be provisioned or reached; the failure is scoped to the operation, not
	// the process, and the next acquire retries.
	ErrTenantUnavailable = errors.New("tenant database unavailable")
)
