package provisioning

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgDuplicateDatabase is SQLSTATE 42P04, raised when CREATE DATABASE races
// with another worker that already created it.
const pgDuplicateDatabase = "42P04"

var databaseIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// PGDatabaseCreator creates tenant databases on the shared Postgres server.
// CREATE DATABASE cannot run inside a transaction, so the creator holds its
// own pool on the maintenance database instead of borrowing transactions.
type PGDatabaseCreator struct {
	admin  *pgxpool.Pool
	logger *zap.Logger
}

// NewPGDatabaseCreator wraps a pool connected to a database with CREATEDB
// rights (typically the shared database itself).
func NewPGDatabaseCreator(admin *pgxpool.Pool, logger *zap.Logger) *PGDatabaseCreator {
	if admin == nil {
		panic("database creator requires an admin pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGDatabaseCreator{admin: admin, logger: logger}
}

// EnsureDatabase creates the database if it is missing. Safe to call
// repeatedly and from concurrent workers.
func (c *PGDatabaseCreator) EnsureDatabase(ctx context.Context, databaseID string) error {
	if !databaseIDPattern.MatchString(databaseID) {
		return fmt.Errorf("invalid database identifier %q", databaseID)
	}

	var exists bool
	err := c.admin.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", databaseID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database %q: %w", databaseID, err)
	}
	if exists {
		return nil
	}

	// The identifier is validated above and quoted here; CREATE DATABASE does
	// not take bind parameters.
	_, err = c.admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{databaseID}.Sanitize())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase {
			return nil
		}
		return fmt.Errorf("create database %q: %w", databaseID, err)
	}

	c.logger.Info("created tenant database", zap.String("database_id", databaseID))
	return nil
}
