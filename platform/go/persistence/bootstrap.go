package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/craftdesk-io/craftdesk-saas/database"
)

// BootstrapSharedSchema applies the shared-database DDL (tenant registry plus
// shared entity tables) in a single transaction. SQL is embedded at build
// time so binaries stay self-contained. The helper is idempotent and intended
// for CLI bootstrap, API start-up, and tests.
func BootstrapSharedSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("bootstrap shared schema: pool is required")
	}

	var statements []string
	statements = append(statements, splitStatements(sqlassets.TenantsSQL)...)
	statements = append(statements, splitStatements(sqlassets.SharedEntitiesSQL)...)

	return WithTx(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply ddl: %w", err)
			}
		}
		return nil
	})
}

// splitStatements breaks an embedded DDL script into individual statements,
// dropping fragments that contain only whitespace or comments.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		var meaningful bool
		for _, line := range strings.Split(part, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				meaningful = true
				break
			}
		}
		if meaningful {
			statements = append(statements, strings.TrimSpace(part))
		}
	}
	return statements
}
