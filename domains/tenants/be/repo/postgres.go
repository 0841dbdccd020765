// Package repo provides tenant registry implementations: the Postgres-backed
// store used in production and an in-memory variant for tests and local
// tooling.
package repo

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
)

// Postgres is the production registry, a thin veneer over the shared-database
// tenant store.
type Postgres struct {
	*persistence.TenantStore
}

// NewPostgres builds the registry on the shared database pool.
func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	store, err := persistence.NewTenantStore(pool)
	if err != nil {
		return nil, err
	}
	return &Postgres{TenantStore: store}, nil
}
