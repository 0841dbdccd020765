package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Info identifies the tenant active for one unit of work. It is resolved once
// (by middleware, from the request's tenant slug segment) and attached to the
// context; it is never mutated mid-operation. Absence of an Info on the
// context means the unit of work runs in shared-only mode.
type Info struct {
	ID         uuid.UUID `json:"id"`
	Slug       string    `json:"slug"`
	DatabaseID string    `json:"database_id"`
}

type ctxKey struct{}

// WithInfo returns a derived context carrying the resolved tenant identity.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext extracts the tenant identity and a boolean indicating presence.
func FromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(ctxKey{}).(Info)
	return info, ok
}
