package routing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

// SharedDatabaseID names the well-known shared database handle.
const SharedDatabaseID = "shared"

// TenantLookup is the slice of the tenant registry the router needs.
type TenantLookup interface {
	Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error)
}

// RouterConfig wires a Router.
type RouterConfig struct {
	// SharedPool is the always-open pool for the shared database, managed
	// outside the tenant pool registry.
	SharedPool *pgxpool.Pool
	Tenants    TenantLookup
	Pools      *PoolManager
	Logger     *zap.Logger
}

// Router is the single decision point every data operation consults to learn
// which physical database backs it.
type Router struct {
	shared  *Handle
	tenants TenantLookup
	pools   *PoolManager
	logger  *zap.Logger
}

// NewRouter constructs a Router with required dependencies.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.SharedPool == nil {
		panic("router requires shared pool")
	}
	if cfg.Tenants == nil {
		panic("router requires tenant lookup")
	}
	if cfg.Pools == nil {
		panic("router requires pool manager")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		shared:  newPinnedHandle(SharedDatabaseID, cfg.SharedPool),
		tenants: cfg.Tenants,
		pools:   cfg.Pools,
		logger:  logger,
	}
}

// Route returns the connection handle backing the given entity category for
// the current unit of work. Routing an unclassified category panics (see
// ClassOf).
func (r *Router) Route(ctx context.Context, category Category) (*Handle, error) {
	return r.RouteClass(ctx, ClassOf(category))
}

// RouteClass routes by pre-resolved class.
//
// Shared entities are pinned to the shared database no matter what tenant is
// active: session state, auth records, and platform caches never read from or
// leak into a tenant database. Tenant-scoped entities require a tenant on the
// context and an accessible tenant record.
func (r *Router) RouteClass(ctx context.Context, class Class) (*Handle, error) {
	switch class {
	case ClassShared:
		return r.shared, nil

	case ClassTenantScoped:
		info, ok := tenant.FromContext(ctx)
		if !ok {
			return nil, ErrMissingTenantContext
		}

		rec, err := r.tenants.Get(ctx, info.ID)
		if err != nil {
			return nil, fmt.Errorf("look up tenant %s: %w", info.ID, err)
		}
		if !rec.Status.Routable() {
			return nil, fmt.Errorf("%w: tenant %q is %s", ErrTenantNotAccessible, rec.Slug, rec.Status)
		}

		return r.pools.Acquire(ctx, rec)

	default:
		panic(fmt.Sprintf("routing: unknown entity class %d", int(class)))
	}
}

// Shared returns the pinned shared handle directly, for bootstrap paths that
// have not resolved a category.
func (r *Router) Shared() *Handle { return r.shared }
