package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/craftdesk-io/craftdesk-saas/domains/tenants/be/repo"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

// stubProvisioner walks the record through the real status machine without
// touching any database.
type stubProvisioner struct {
	registry Registry
	err      error
}

func (p *stubProvisioner) EnsureReady(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	if p.err != nil {
		rec, err := p.registry.Get(ctx, id)
		if err != nil {
			return persistence.TenantRecord{}, err
		}
		if rec.Status == tenant.StatusPending {
			if _, err := p.registry.Transition(ctx, id, tenant.StatusPending, tenant.StatusProvisioning); err != nil {
				return persistence.TenantRecord{}, err
			}
			if _, err := p.registry.Transition(ctx, id, tenant.StatusProvisioning, tenant.StatusProvisioningFailed); err != nil {
				return persistence.TenantRecord{}, err
			}
		}
		return persistence.TenantRecord{}, p.err
	}

	rec, err := p.registry.Get(ctx, id)
	if err != nil {
		return persistence.TenantRecord{}, err
	}
	if rec.Status == tenant.StatusActive {
		return rec, nil
	}
	if _, err := p.registry.Transition(ctx, id, rec.Status, tenant.StatusProvisioning); err != nil {
		return persistence.TenantRecord{}, err
	}
	return p.registry.Transition(ctx, id, tenant.StatusProvisioning, tenant.StatusActive)
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(databaseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, databaseID)
}

func (r *recordingInvalidator) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func newTestService(t *testing.T) (*Service, *repo.Memory, *recordingInvalidator) {
	t.Helper()
	registry := repo.NewMemory()
	pools := &recordingInvalidator{}
	svc := New(Config{
		Registry:    registry,
		Provisioner: &stubProvisioner{registry: registry},
		Pools:       pools,
	})
	return svc, registry, pools
}

func activeTenant(t *testing.T, svc *Service) persistence.TenantRecord {
	t.Helper()
	rec, err := svc.Onboard(context.Background(), "acme")
	require.NoError(t, err)
	rec, err = svc.Provision(context.Background(), rec.ID)
	require.NoError(t, err)
	return rec
}

func TestOnboardReturnsPendingAndProvisionsInBackground(t *testing.T) {
	svc, registry, _ := newTestService(t)

	rec, err := svc.Onboard(context.Background(), "Acme-Corp")
	require.NoError(t, err)
	require.Equal(t, "acme-corp", rec.Slug)
	require.Equal(t, "acme_corp", rec.DatabaseID)
	require.Equal(t, tenant.StatusPending, rec.Status)

	require.Eventually(t, func() bool {
		got, err := registry.Get(context.Background(), rec.ID)
		return err == nil && got.Status == tenant.StatusActive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOnboardDuplicateSlug(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Onboard(context.Background(), "acme")
	require.NoError(t, err)
	_, err = svc.Onboard(context.Background(), "acme")
	require.ErrorIs(t, err, persistence.ErrDuplicateTenant)
}

func TestProvisionIsSynchronousAndIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	rec := activeTenant(t, svc)

	again, err := svc.Provision(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusActive, again.Status)
}

func TestSuspendEvictsPoolAndBlocksResolution(t *testing.T) {
	svc, _, pools := newTestService(t)
	rec := activeTenant(t, svc)

	suspended, err := svc.Suspend(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusSuspended, suspended.Status)
	require.Equal(t, []string{rec.DatabaseID}, pools.seen())

	_, err = svc.ResolveTenant(context.Background(), rec.Slug)
	require.ErrorIs(t, err, tenant.ErrNotRoutable)
}

func TestSuspendRequiresActiveStatus(t *testing.T) {
	registry := repo.NewMemory()
	gate := make(chan struct{})
	defer close(gate)
	svc := New(Config{
		Registry:    registry,
		Provisioner: &gatedProvisioner{gate: gate},
		Pools:       &recordingInvalidator{},
	})

	rec, err := svc.Onboard(context.Background(), "acme")
	require.NoError(t, err)

	// Provisioning is still parked on the gate, so the record is pending and
	// not suspendable.
	_, err = svc.Suspend(context.Background(), rec.ID)
	require.Error(t, err)
}

// gatedProvisioner blocks until its gate closes; used to pin a tenant in
// pending while assertions run.
type gatedProvisioner struct {
	gate chan struct{}
}

func (p *gatedProvisioner) EnsureReady(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	select {
	case <-p.gate:
	case <-ctx.Done():
	}
	return persistence.TenantRecord{}, ctx.Err()
}

func TestReactivateRestoresRouting(t *testing.T) {
	svc, _, _ := newTestService(t)
	rec := activeTenant(t, svc)

	_, err := svc.Suspend(context.Background(), rec.ID)
	require.NoError(t, err)
	restored, err := svc.Reactivate(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusActive, restored.Status)

	info, err := svc.ResolveTenant(context.Background(), rec.Slug)
	require.NoError(t, err)
	require.Equal(t, rec.ID, info.ID)
	require.Equal(t, rec.DatabaseID, info.DatabaseID)
}

func TestDeleteFromAnyStatus(t *testing.T) {
	svc, _, pools := newTestService(t)
	rec := activeTenant(t, svc)

	deleted, err := svc.Delete(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusDeleted, deleted.Status)
	require.Contains(t, pools.seen(), rec.DatabaseID)

	// Deleting again is a no-op.
	again, err := svc.Delete(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusDeleted, again.Status)

	_, err = svc.ResolveTenant(context.Background(), rec.Slug)
	require.ErrorIs(t, err, tenant.ErrNotRoutable)
}

func TestDeleteSuspendedTenant(t *testing.T) {
	svc, _, _ := newTestService(t)
	rec := activeTenant(t, svc)

	_, err := svc.Suspend(context.Background(), rec.ID)
	require.NoError(t, err)
	deleted, err := svc.Delete(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusDeleted, deleted.Status)
}

func TestResolveTenantUnknownSlug(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ResolveTenant(context.Background(), "nope")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestOnboardSurvivesFailedBackgroundProvisioning(t *testing.T) {
	registry := repo.NewMemory()
	failing := &stubProvisioner{registry: registry, err: errors.New("database server unreachable")}
	svc := New(Config{Registry: registry, Provisioner: failing, Pools: &recordingInvalidator{}})

	rec, err := svc.Onboard(context.Background(), "acme")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := registry.Get(context.Background(), rec.ID)
		return err == nil && got.Status == tenant.StatusProvisioningFailed
	}, 2*time.Second, 10*time.Millisecond)

	// A later explicit provision picks the tenant back up.
	failing.err = nil
	recovered, err := svc.Provision(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusActive, recovered.Status)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, registry, _ := newTestService(t)
	rec := activeTenant(t, svc)

	// Seed a second tenant directly so it stays pending.
	_, err := registry.Create(context.Background(), "globex")
	require.NoError(t, err)

	active := tenant.StatusActive
	res, err := svc.List(context.Background(), persistence.ListOptions{Status: &active})
	require.NoError(t, err)
	require.Len(t, res.Tenants, 1)
	require.Equal(t, rec.ID, res.Tenants[0].ID)
}
