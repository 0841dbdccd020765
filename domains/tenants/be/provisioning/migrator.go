package provisioning

import (
	"context"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	sqlassets "github.com/craftdesk-io/craftdesk-saas/database"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
)

// GooseMigrator applies the embedded tenant migrations to one tenant
// database. Each run opens a short-lived database/sql connection derived from
// the base DSN; goose's version table serializes concurrent runs against the
// same database.
type GooseMigrator struct {
	baseDSN string
	logger  *zap.Logger
}

// NewGooseMigrator builds a migrator from the base (shared database) DSN.
func NewGooseMigrator(baseDSN string, logger *zap.Logger) *GooseMigrator {
	if baseDSN == "" {
		panic("migrator requires a base dsn")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GooseMigrator{baseDSN: baseDSN, logger: logger}
}

// Up migrates the tenant database to the latest embedded version and returns
// the version it landed on.
func (m *GooseMigrator) Up(ctx context.Context, databaseID string) (int64, error) {
	dsn, err := persistence.TenantDSN(m.baseDSN, databaseID)
	if err != nil {
		return 0, err
	}
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return 0, fmt.Errorf("parse tenant dsn: %w", err)
	}

	db := stdlib.OpenDB(*connConfig)
	defer db.Close() // nolint:errcheck

	migrations, err := fs.Sub(sqlassets.TenantMigrationsFS, sqlassets.TenantMigrationsDir)
	if err != nil {
		return 0, fmt.Errorf("open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return 0, fmt.Errorf("init migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("apply migrations to %q: %w", databaseID, err)
	}
	for _, r := range results {
		m.logger.Debug("applied migration",
			zap.String("database_id", databaseID),
			zap.String("source", r.Source.Path),
			zap.Duration("took", r.Duration))
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read migration version of %q: %w", databaseID, err)
	}
	return version, nil
}

// TargetSchemaVersion scans the embedded migration filenames for the highest
// version number. Panics when the embedded set is empty or malformed, which
// only happens on a broken build.
func TargetSchemaVersion() int64 {
	entries, err := fs.ReadDir(sqlassets.TenantMigrationsFS, sqlassets.TenantMigrationsDir)
	if err != nil {
		panic(fmt.Sprintf("read embedded migrations: %v", err))
	}

	var max int64
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			continue
		}
		if version > max {
			max = version
		}
	}
	if max == 0 {
		panic("no embedded tenant migrations found")
	}
	return max
}
