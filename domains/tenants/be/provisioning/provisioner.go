package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

// Registry is the slice of the tenant store the provisioner drives.
type Registry interface {
	Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error)
	Transition(ctx context.Context, id uuid.UUID, from, to tenant.Status) (persistence.TenantRecord, error)
	MarkSchemaVersion(ctx context.Context, id uuid.UUID, version int64) (persistence.TenantRecord, error)
}

// DatabaseCreator creates the physical tenant database when it does not exist.
type DatabaseCreator interface {
	EnsureDatabase(ctx context.Context, databaseID string) error
}

// Migrator brings a tenant database to the current schema and reports the
// version it ended up at.
type Migrator interface {
	Up(ctx context.Context, databaseID string) (int64, error)
}

// ErrNotProvisionable is returned when a tenant's status rules provisioning
// out entirely (suspended or deleted).
var ErrNotProvisionable = errors.New("tenant is not provisionable")

// ProvisioningError reports which provisioning step failed for which
// database. It unwraps to the underlying cause.
type ProvisioningError struct {
	Step       string
	DatabaseID string
	Err        error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision %s: step %s: %v", e.DatabaseID, e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

const (
	stepClaim          = "claim"
	stepCreateDatabase = "create_database"
	stepMigrate        = "migrate"
	stepFinalize       = "finalize"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultPollTimeout  = 2 * time.Minute
)

// Config wires a Provisioner.
type Config struct {
	Registry  Registry
	Databases DatabaseCreator
	Migrator  Migrator
	// TargetVersion is the migration version a fully provisioned tenant
	// database carries. Records at this version skip all work.
	TargetVersion int64
	// PollInterval and PollTimeout govern how a loser of the provisioning
	// claim waits for the winner to reach a terminal status.
	PollInterval time.Duration
	PollTimeout  time.Duration
	Logger       *zap.Logger
}

// Provisioner drives a tenant from registration to a ready database. It is
// idempotent and safe to call concurrently from many workers: the registry's
// compare-and-swap transition to provisioning is the only lock, so exactly one
// caller does the work while the rest wait for the outcome.
type Provisioner struct {
	registry      Registry
	databases     DatabaseCreator
	migrator      Migrator
	targetVersion int64
	pollInterval  time.Duration
	pollTimeout   time.Duration
	logger        *zap.Logger
}

// NewProvisioner constructs a Provisioner with required dependencies.
func NewProvisioner(cfg Config) *Provisioner {
	if cfg.Registry == nil {
		panic("provisioner requires a registry")
	}
	if cfg.Databases == nil {
		panic("provisioner requires a database creator")
	}
	if cfg.Migrator == nil {
		panic("provisioner requires a migrator")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Provisioner{
		registry:      cfg.Registry,
		databases:     cfg.Databases,
		migrator:      cfg.Migrator,
		targetVersion: cfg.TargetVersion,
		pollInterval:  cfg.PollInterval,
		pollTimeout:   cfg.PollTimeout,
		logger:        cfg.Logger,
	}
}

// EnsureReady returns once the tenant's database exists, is migrated to the
// target version, and the record is active. Already-ready tenants return
// immediately without touching the database server.
func (p *Provisioner) EnsureReady(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	rec, err := p.registry.Get(ctx, id)
	if err != nil {
		return persistence.TenantRecord{}, err
	}

	for {
		switch rec.Status {
		case tenant.StatusActive:
			if rec.SchemaVersion >= p.targetVersion {
				return rec, nil
			}
			return p.upgrade(ctx, rec)

		case tenant.StatusPending, tenant.StatusProvisioningFailed:
			claimed, err := p.registry.Transition(ctx, rec.ID, rec.Status, tenant.StatusProvisioning)
			if err != nil {
				if errors.Is(err, persistence.ErrStaleTransition) {
					// Another worker moved first; fall through to waiting on
					// the status it left behind.
					rec = claimed
					continue
				}
				return persistence.TenantRecord{}, &ProvisioningError{Step: stepClaim, DatabaseID: rec.DatabaseID, Err: err}
			}
			return p.provision(ctx, claimed)

		case tenant.StatusProvisioning:
			rec, err = p.awaitTerminal(ctx, rec.ID)
			if err != nil {
				return persistence.TenantRecord{}, err
			}

		case tenant.StatusSuspended, tenant.StatusDeleted:
			return persistence.TenantRecord{}, fmt.Errorf("%w: tenant %q is %s", ErrNotProvisionable, rec.Slug, rec.Status)

		default:
			return persistence.TenantRecord{}, fmt.Errorf("tenant %q has unexpected status %q", rec.Slug, rec.Status)
		}
	}
}

// provision runs the full sequence as the claim winner. Any failure moves the
// record to provisioning_failed so a later call can retry from scratch;
// create-database and migrations are idempotent, so a crash between steps
// leaves nothing a retry cannot absorb.
func (p *Provisioner) provision(ctx context.Context, rec persistence.TenantRecord) (persistence.TenantRecord, error) {
	p.logger.Info("provisioning tenant database",
		zap.String("tenant", rec.Slug),
		zap.String("database_id", rec.DatabaseID))
	start := time.Now()

	if err := p.databases.EnsureDatabase(ctx, rec.DatabaseID); err != nil {
		return persistence.TenantRecord{}, p.fail(ctx, rec, stepCreateDatabase, err)
	}

	version, err := p.migrator.Up(ctx, rec.DatabaseID)
	if err != nil {
		return persistence.TenantRecord{}, p.fail(ctx, rec, stepMigrate, err)
	}

	if _, err := p.registry.MarkSchemaVersion(ctx, rec.ID, version); err != nil {
		return persistence.TenantRecord{}, p.fail(ctx, rec, stepFinalize, err)
	}
	activated, err := p.registry.Transition(ctx, rec.ID, tenant.StatusProvisioning, tenant.StatusActive)
	if err != nil {
		return persistence.TenantRecord{}, p.fail(ctx, rec, stepFinalize, err)
	}

	p.logger.Info("tenant database ready",
		zap.String("tenant", rec.Slug),
		zap.String("database_id", rec.DatabaseID),
		zap.Int64("schema_version", version),
		zap.Duration("took", time.Since(start)))
	return activated, nil
}

// upgrade migrates an active tenant whose recorded schema version trails the
// target. The record stays active throughout; goose serializes concurrent
// runs on its version table.
func (p *Provisioner) upgrade(ctx context.Context, rec persistence.TenantRecord) (persistence.TenantRecord, error) {
	p.logger.Info("upgrading tenant schema",
		zap.String("tenant", rec.Slug),
		zap.Int64("from_version", rec.SchemaVersion),
		zap.Int64("to_version", p.targetVersion))

	version, err := p.migrator.Up(ctx, rec.DatabaseID)
	if err != nil {
		return persistence.TenantRecord{}, &ProvisioningError{Step: stepMigrate, DatabaseID: rec.DatabaseID, Err: err}
	}
	updated, err := p.registry.MarkSchemaVersion(ctx, rec.ID, version)
	if err != nil {
		return persistence.TenantRecord{}, &ProvisioningError{Step: stepFinalize, DatabaseID: rec.DatabaseID, Err: err}
	}
	return updated, nil
}

// fail records the failure status and wraps the cause. The status write is
// best effort: if it loses a race the original cause still wins the return.
func (p *Provisioner) fail(ctx context.Context, rec persistence.TenantRecord, step string, cause error) error {
	p.logger.Warn("tenant provisioning failed",
		zap.String("tenant", rec.Slug),
		zap.String("database_id", rec.DatabaseID),
		zap.String("step", step),
		zap.Error(cause))

	if _, err := p.registry.Transition(ctx, rec.ID, tenant.StatusProvisioning, tenant.StatusProvisioningFailed); err != nil {
		p.logger.Warn("could not record provisioning failure",
			zap.String("tenant", rec.Slug),
			zap.Error(err))
	}
	return &ProvisioningError{Step: step, DatabaseID: rec.DatabaseID, Err: cause}
}

// awaitTerminal polls the registry until the tenant leaves provisioning or
// the poll budget runs out.
func (p *Provisioner) awaitTerminal(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return persistence.TenantRecord{}, fmt.Errorf("waiting for tenant provisioning: %w", ctx.Err())
		case <-ticker.C:
		}

		rec, err := p.registry.Get(ctx, id)
		if err != nil {
			return persistence.TenantRecord{}, err
		}
		if rec.Status.Terminal() {
			return rec, nil
		}
	}
}
