package provisioning

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/routing"
)

// NewTenantPoolBuilder returns the pool builder wired into the routing pool
// manager: first access to a tenant database provisions it (database create
// plus migrations) and then opens a pool against it. baseDSN points at the
// shared database; poolCfg's ConnString is overwritten per tenant.
func NewTenantPoolBuilder(p *Provisioner, baseDSN string, poolCfg persistence.PoolConfig) routing.PoolBuilder {
	if p == nil {
		panic("pool builder requires a provisioner")
	}
	if baseDSN == "" {
		panic("pool builder requires a base dsn")
	}

	return func(ctx context.Context, rec persistence.TenantRecord) (*pgxpool.Pool, error) {
		ready, err := p.EnsureReady(ctx, rec.ID)
		if err != nil {
			return nil, err
		}

		dsn, err := persistence.TenantDSN(baseDSN, ready.DatabaseID)
		if err != nil {
			return nil, err
		}

		cfg := poolCfg
		cfg.ConnString = dsn
		return persistence.NewPool(ctx, cfg)
	}
}
