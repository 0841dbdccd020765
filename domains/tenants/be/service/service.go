// Package service implements tenant lifecycle management: onboarding,
// provisioning, suspension, and lookup for request routing.
package service

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

// Registry is the tenant registry as the service consumes it.
type Registry interface {
	Create(ctx context.Context, slug string) (persistence.TenantRecord, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error)
	GetBySlug(ctx context.Context, slug string) (persistence.TenantRecord, error)
	Transition(ctx context.Context, id uuid.UUID, from, to tenant.Status) (persistence.TenantRecord, error)
	List(ctx context.Context, opts persistence.ListOptions) (persistence.ListResult, error)
}

// Provisioner prepares a tenant's database end to end.
type Provisioner interface {
	EnsureReady(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error)
}

// PoolInvalidator evicts a tenant's live connection pool so status changes
// take effect on the data path immediately.
type PoolInvalidator interface {
	Invalidate(databaseID string)
}

// ResolutionCache is the slug cache consulted by the edge middleware. The
// service forgets entries on every lifecycle change so a suspension is not
// masked by a cached resolution.
type ResolutionCache interface {
	Forget(ctx context.Context, slug string) error
}

const (
	defaultOnboardTimeout = 5 * time.Minute
	deleteTransitionTries = 3
)

// Config wires a Service.
type Config struct {
	Registry    Registry
	Provisioner Provisioner
	Pools       PoolInvalidator
	// Cache is optional; when set, slug resolutions are forgotten on
	// lifecycle changes.
	Cache ResolutionCache
	// OnboardTimeout bounds the background provisioning kicked off by
	// Onboard.
	OnboardTimeout time.Duration
	Logger         *zap.Logger
}

// Service coordinates the tenant registry, the provisioner, and the live pool
// registry.
type Service struct {
	registry       Registry
	provisioner    Provisioner
	pools          PoolInvalidator
	cache          ResolutionCache
	onboardTimeout time.Duration
	logger         *zap.Logger
}

// New constructs the tenant service with required dependencies.
func New(cfg Config) *Service {
	if cfg.Registry == nil {
		panic("tenant service requires a registry")
	}
	if cfg.Provisioner == nil {
		panic("tenant service requires a provisioner")
	}
	if cfg.Pools == nil {
		panic("tenant service requires a pool invalidator")
	}
	if cfg.OnboardTimeout <= 0 {
		cfg.OnboardTimeout = defaultOnboardTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		registry:       cfg.Registry,
		provisioner:    cfg.Provisioner,
		pools:          cfg.Pools,
		cache:          cfg.Cache,
		onboardTimeout: cfg.OnboardTimeout,
		logger:         cfg.Logger,
	}
}

// Onboard registers a tenant and kicks off provisioning in the background.
// The pending record returns immediately; callers poll Get or hit Provision
// to wait for readiness. A tenant whose background provisioning fails stays
// retryable through Provision or lazily on first data access.
func (s *Service) Onboard(ctx context.Context, slug string) (persistence.TenantRecord, error) {
	rec, err := s.registry.Create(ctx, slug)
	if err != nil {
		return persistence.TenantRecord{}, err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.onboardTimeout)
		defer cancel()
		if _, err := s.provisioner.EnsureReady(ctx, rec.ID); err != nil {
			s.logger.Warn("background provisioning failed",
				zap.String("tenant", rec.Slug),
				zap.Error(err))
		}
	}()

	s.logger.Info("tenant onboarded",
		zap.String("tenant", rec.Slug),
		zap.String("database_id", rec.DatabaseID))
	return rec, nil
}

// Register creates the tenant record without starting provisioning. Used by
// tooling that wants to control when the expensive work happens.
func (s *Service) Register(ctx context.Context, slug string) (persistence.TenantRecord, error) {
	return s.registry.Create(ctx, slug)
}

// Provision drives the tenant to readiness synchronously. Idempotent; safe to
// call on an already active tenant.
func (s *Service) Provision(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	return s.provisioner.EnsureReady(ctx, id)
}

// Get returns the tenant record by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	return s.registry.Get(ctx, id)
}

// List returns paginated tenants with an optional status filter.
func (s *Service) List(ctx context.Context, opts persistence.ListOptions) (persistence.ListResult, error) {
	return s.registry.List(ctx, opts)
}

// Suspend takes an active tenant out of rotation and evicts its live pool so
// in-flight traffic drains and no new work routes to it.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	rec, err := s.registry.Transition(ctx, id, tenant.StatusActive, tenant.StatusSuspended)
	if err != nil {
		return persistence.TenantRecord{}, err
	}
	s.pools.Invalidate(rec.DatabaseID)
	s.forgetResolution(ctx, rec.Slug)
	s.logger.Info("tenant suspended", zap.String("tenant", rec.Slug))
	return rec, nil
}

// Reactivate returns a suspended tenant to rotation. The pool rebuilds lazily
// on the next routed request.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	rec, err := s.registry.Transition(ctx, id, tenant.StatusSuspended, tenant.StatusActive)
	if err != nil {
		return persistence.TenantRecord{}, err
	}
	s.forgetResolution(ctx, rec.Slug)
	s.logger.Info("tenant reactivated", zap.String("tenant", rec.Slug))
	return rec, nil
}

func (s *Service) forgetResolution(ctx context.Context, slug string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Forget(ctx, slug); err != nil {
		s.logger.Warn("forget cached tenant resolution",
			zap.String("tenant", slug),
			zap.Error(err))
	}
}

// Delete marks the tenant deleted from whatever status it currently holds and
// evicts its pool. The physical database is kept for retention; dropping it
// is an operator action outside this service.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	var lastErr error
	for i := 0; i < deleteTransitionTries; i++ {
		rec, err := s.registry.Get(ctx, id)
		if err != nil {
			return persistence.TenantRecord{}, err
		}
		if rec.Status == tenant.StatusDeleted {
			return rec, nil
		}

		deleted, err := s.registry.Transition(ctx, id, rec.Status, tenant.StatusDeleted)
		if err == nil {
			s.pools.Invalidate(deleted.DatabaseID)
			s.forgetResolution(ctx, deleted.Slug)
			s.logger.Info("tenant deleted", zap.String("tenant", deleted.Slug))
			return deleted, nil
		}
		if !errors.Is(err, persistence.ErrStaleTransition) {
			return persistence.TenantRecord{}, err
		}
		lastErr = err
	}
	return persistence.TenantRecord{}, fmt.Errorf("delete tenant %s: %w", id, lastErr)
}

// ResolveTenant maps a routing slug to the tenant identity attached to
// request contexts. Suspended and deleted tenants resolve to
// tenant.ErrNotRoutable so edges can fail before any data access.
func (s *Service) ResolveTenant(ctx context.Context, slug string) (tenant.Info, error) {
	rec, err := s.registry.GetBySlug(ctx, slug)
	if err != nil {
		return tenant.Info{}, err
	}
	if !rec.Status.Routable() {
		return tenant.Info{}, fmt.Errorf("%w: tenant %q is %s", tenant.ErrNotRoutable, rec.Slug, rec.Status)
	}
	return tenant.Info{ID: rec.ID, Slug: rec.Slug, DatabaseID: rec.DatabaseID}, nil
}
