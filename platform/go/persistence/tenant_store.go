package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

// TenantsTable is the registry table in the shared database.
const TenantsTable = "platform_tenants"

// CredentialsRefShared marks a tenant whose database lives on the shared
// server and is reached with the server-wide credentials plus a database-name
// swap. Other refs are reserved for per-tenant credential lookups.
const CredentialsRefShared = "shared"

// maxDatabaseIDAttempts bounds collision-resolution retries on create.
const maxDatabaseIDAttempts = 5

const (
	slugUniqueConstraint       = "platform_tenants_slug_key"
	databaseIDUniqueConstraint = "platform_tenants_database_id_key"
)

// TenantRecord is a row of the platform tenant registry. Status moves only
// through Transition's compare-and-swap; all other columns except
// schema_version and updated_at are immutable after creation.
type TenantRecord struct {
	ID             uuid.UUID
	Slug           string
	DatabaseID     string
	Status         tenant.Status
	SchemaVersion  int64
	CredentialsRef string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ListOptions captures filters and pagination for List.
type ListOptions struct {
	Page     int
	PageSize int
	Status   *tenant.Status
}

// ListResult wraps paginated tenant records.
type ListResult struct {
	Tenants    []TenantRecord
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var tenantColumns = []string{
	"id", "slug", "database_id", "status", "schema_version",
	"credentials_ref", "created_at", "updated_at",
}

// TenantStore provides access to the tenant registry. All writes go to the
// shared database only; the store has no access to tenant pools by
// construction.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a store; assumes the shared bootstrap DDL already
// created the registry table.
func NewTenantStore(pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

// Create registers a new tenant in status pending. The database identifier is
// derived from the slug; unique-index collisions are resolved by retrying
// with a numeric suffix up to a bounded number of attempts.
func (s *TenantStore) Create(ctx context.Context, slug string) (TenantRecord, error) {
	normalized, err := NormalizeSlug(slug)
	if err != nil {
		return TenantRecord{}, err
	}

	id := uuid.New()
	now := time.Now().UTC()

	for attempt := 0; attempt < maxDatabaseIDAttempts; attempt++ {
		databaseID := tenant.DatabaseIDAttempt(normalized, attempt)

		query, args, err := psql.Insert(TenantsTable).
			Columns(tenantColumns...).
			Values(id, normalized, databaseID, tenant.StatusPending, 0, CredentialsRefShared, now, now).
			Suffix("RETURNING " + strings.Join(tenantColumns, ", ")).
			ToSql()
		if err != nil {
			return TenantRecord{}, fmt.Errorf("build insert: %w", err)
		}

		rec, err := scanTenantRecord(s.pool.QueryRow(ctx, query, args...))
		if err == nil {
			return rec, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.EqualFold(pgErr.ConstraintName, slugUniqueConstraint) {
				return TenantRecord{}, fmt.Errorf("%w: slug %q", ErrDuplicateTenant, normalized)
			}
			if strings.EqualFold(pgErr.ConstraintName, databaseIDUniqueConstraint) {
				continue
			}
		}
		return TenantRecord{}, fmt.Errorf("insert tenant: %w", err)
	}

	return TenantRecord{}, fmt.Errorf("%w: database id collisions exhausted for %q", ErrDuplicateTenant, normalized)
}

// Get fetches a tenant by id.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	query, args, err := psql.Select(tenantColumns...).
		From(TenantsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return TenantRecord{}, fmt.Errorf("build select: %w", err)
	}
	return scanTenantRecord(s.pool.QueryRow(ctx, query, args...))
}

// GetBySlug fetches a tenant by its routing slug.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (TenantRecord, error) {
	query, args, err := psql.Select(tenantColumns...).
		From(TenantsTable).
		Where(sq.Eq{"slug": slug}).
		ToSql()
	if err != nil {
		return TenantRecord{}, fmt.Errorf("build select: %w", err)
	}
	return scanTenantRecord(s.pool.QueryRow(ctx, query, args...))
}

// Transition moves a tenant's status with compare-and-swap semantics: the
// update only applies when the row's current status matches from. A lost race
// surfaces as ErrStaleTransition carrying the status actually found, so the
// caller can poll for the winner's terminal state.
func (s *TenantStore) Transition(ctx context.Context, id uuid.UUID, from, to tenant.Status) (TenantRecord, error) {
	if !from.CanTransition(to) {
		return TenantRecord{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	query, args, err := psql.Update(TenantsTable).
		Set("status", to).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "status": from}).
		Suffix("RETURNING " + strings.Join(tenantColumns, ", ")).
		ToSql()
	if err != nil {
		return TenantRecord{}, fmt.Errorf("build update: %w", err)
	}

	rec, err := scanTenantRecord(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return TenantRecord{}, err
	}

	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return TenantRecord{}, getErr
	}
	return current, fmt.Errorf("%w: expected %s, found %s", ErrStaleTransition, from, current.Status)
}

// MarkSchemaVersion records the last migration version successfully applied
// to the tenant's database.
func (s *TenantStore) MarkSchemaVersion(ctx context.Context, id uuid.UUID, version int64) (TenantRecord, error) {
	query, args, err := psql.Update(TenantsTable).
		Set("schema_version", version).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(tenantColumns, ", ")).
		ToSql()
	if err != nil {
		return TenantRecord{}, fmt.Errorf("build update: %w", err)
	}
	return scanTenantRecord(s.pool.QueryRow(ctx, query, args...))
}

// List returns paginated tenants, newest first, with an optional status
// filter.
func (s *TenantStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}

	where := sq.And{}
	if opts.Status != nil {
		where = append(where, sq.Eq{"status": *opts.Status})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").
		From(TenantsTable).
		Where(where).
		ToSql()
	if err != nil {
		return ListResult{}, fmt.Errorf("build count: %w", err)
	}

	var total int
	if err := s.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count tenants: %w", err)
	}

	query, args, err := psql.Select(tenantColumns...).
		From(TenantsTable).
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return ListResult{}, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var records []TenantRecord
	for rows.Next() {
		rec, err := scanTenantRecord(rows)
		if err != nil {
			return ListResult{}, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, err
	}

	totalPages := (total + size - 1) / size
	return ListResult{Tenants: records, Page: page, PageSize: size, TotalItems: total, TotalPages: totalPages}, nil
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	var statusStr string
	err := row.Scan(&rec.ID, &rec.Slug, &rec.DatabaseID, &statusStr, &rec.SchemaVersion,
		&rec.CredentialsRef, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}

	status, err := tenant.ParseStatus(statusStr)
	if err != nil {
		return TenantRecord{}, fmt.Errorf("tenant %s: %w", rec.ID, err)
	}
	rec.Status = status
	return rec, nil
}
