// Package sqlassets embeds the SQL shipped with the platform: bootstrap DDL
// for the shared database and the per-tenant migration chain applied by the
// provisioner.
package sqlassets

import (
	"embed"
	_ "embed"
)

//go:embed schema/platform/tenants.sql
var TenantsSQL string

//go:embed schema/platform/shared_entities.sql
var SharedEntitiesSQL string

// TenantMigrationsFS holds the goose-format migrations applied to every
// tenant database, in fixed ascending order.
//
//go:embed tenant_migrations/*.sql
var TenantMigrationsFS embed.FS

// TenantMigrationsDir is the directory inside TenantMigrationsFS holding the
// migration files.
const TenantMigrationsDir = "tenant_migrations"
