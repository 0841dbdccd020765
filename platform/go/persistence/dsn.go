package persistence

import (
	"fmt"
	"net/url"
	"strings"
)

// TenantDSN rewrites the database segment of a base connection URL to point
// at the given tenant database. Tenant databases with credentials_ref
// "shared" live on the same server as the shared database, so only the path
// changes; everything else (host, credentials, query options) is preserved.
func TenantDSN(baseDSN, databaseID string) (string, error) {
	if strings.TrimSpace(databaseID) == "" {
		return "", fmt.Errorf("database id is required")
	}

	u, err := url.Parse(baseDSN)
	if err != nil {
		return "", fmt.Errorf("parse base dsn: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("base dsn must be a postgres URL, got scheme %q", u.Scheme)
	}

	u.Path = "/" + databaseID
	return u.String(), nil
}
