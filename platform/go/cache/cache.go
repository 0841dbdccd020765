// Package cache provides the slug-to-tenant resolution cache consulted on
// every tenant-scoped request before the registry is hit.
package cache

import (
	"context"
	"errors"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

// ErrMiss is returned by Get when the slug has no cached entry.
var ErrMiss = errors.New("cache miss")

// TenantCache stores resolved tenant identities keyed by slug. Entries are
// forgotten on any lifecycle change so suspensions take effect within one
// request.
type TenantCache interface {
	Get(ctx context.Context, slug string) (tenant.Info, error)
	Put(ctx context.Context, slug string, info tenant.Info) error
	Forget(ctx context.Context, slug string) error
}
