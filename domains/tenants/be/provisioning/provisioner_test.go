package provisioning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

// memRegistry reproduces the store's compare-and-swap semantics in memory.
type memRegistry struct {
	mu      sync.Mutex
	records map[uuid.UUID]persistence.TenantRecord
}

func newMemRegistry(recs ...persistence.TenantRecord) *memRegistry {
	r := &memRegistry{records: make(map[uuid.UUID]persistence.TenantRecord)}
	for _, rec := range recs {
		r.records[rec.ID] = rec
	}
	return r
}

func (r *memRegistry) Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return persistence.TenantRecord{}, persistence.ErrNotFound
	}
	return rec, nil
}

func (r *memRegistry) Transition(ctx context.Context, id uuid.UUID, from, to tenant.Status) (persistence.TenantRecord, error) {
	if !from.CanTransition(to) {
		return persistence.TenantRecord{}, errors.New("illegal transition")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return persistence.TenantRecord{}, persistence.ErrNotFound
	}
	if rec.Status != from {
		return rec, persistence.ErrStaleTransition
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	r.records[id] = rec
	return rec, nil
}

func (r *memRegistry) MarkSchemaVersion(ctx context.Context, id uuid.UUID, version int64) (persistence.TenantRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return persistence.TenantRecord{}, persistence.ErrNotFound
	}
	rec.SchemaVersion = version
	r.records[id] = rec
	return rec, nil
}

type fakeCreator struct {
	calls atomic.Int32
	err   error
}

func (c *fakeCreator) EnsureDatabase(ctx context.Context, databaseID string) error {
	c.calls.Add(1)
	return c.err
}

type fakeMigrator struct {
	calls   atomic.Int32
	version int64
	err     error
}

func (m *fakeMigrator) Up(ctx context.Context, databaseID string) (int64, error) {
	m.calls.Add(1)
	if m.err != nil {
		return 0, m.err
	}
	return m.version, nil
}

func pendingRecord(slug string) persistence.TenantRecord {
	return persistence.TenantRecord{
		ID:             uuid.New(),
		Slug:           slug,
		DatabaseID:     tenant.DatabaseID(slug),
		Status:         tenant.StatusPending,
		CredentialsRef: persistence.CredentialsRefShared,
	}
}

func newTestProvisioner(reg Registry, creator DatabaseCreator, migrator Migrator) *Provisioner {
	return NewProvisioner(Config{
		Registry:      reg,
		Databases:     creator,
		Migrator:      migrator,
		TargetVersion: 3,
		PollInterval:  time.Millisecond,
		PollTimeout:   2 * time.Second,
	})
}

func TestEnsureReadyProvisionsPendingTenant(t *testing.T) {
	rec := pendingRecord("acme")
	reg := newMemRegistry(rec)
	creator := &fakeCreator{}
	migrator := &fakeMigrator{version: 3}
	p := newTestProvisioner(reg, creator, migrator)

	got, err := p.EnsureReady(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusActive, got.Status)
	require.Equal(t, int64(3), got.SchemaVersion)
	require.Equal(t, int32(1), creator.calls.Load())
	require.Equal(t, int32(1), migrator.calls.Load())
}

func TestEnsureReadyFastPathSkipsWork(t *testing.T) {
	rec := pendingRecord("acme")
	rec.Status = tenant.StatusActive
	rec.SchemaVersion = 3
	reg := newMemRegistry(rec)
	creator := &fakeCreator{}
	migrator := &fakeMigrator{version: 3}
	p := newTestProvisioner(reg, creator, migrator)

	got, err := p.EnsureReady(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, int32(0), creator.calls.Load())
	require.Equal(t, int32(0), migrator.calls.Load())
}

func TestEnsureReadyConcurrentWorkersProvisionOnce(t *testing.T) {
	rec := pendingRecord("acme")
	reg := newMemRegistry(rec)
	creator := &fakeCreator{}
	migrator := &fakeMigrator{version: 3}
	p := newTestProvisioner(reg, creator, migrator)

	const n = 10
	var wg sync.WaitGroup
	errsCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.EnsureReady(context.Background(), rec.ID)
			if err == nil && got.Status != tenant.StatusActive {
				err = errors.New("non-active record returned")
			}
			errsCh <- err
		}()
	}
	wg.Wait()
	close(errsCh)

	for err := range errsCh {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), creator.calls.Load())
	require.Equal(t, int32(1), migrator.calls.Load())
}

func TestEnsureReadyRecordsFailureAndRecovers(t *testing.T) {
	rec := pendingRecord("acme")
	reg := newMemRegistry(rec)
	creator := &fakeCreator{}
	migrator := &fakeMigrator{err: errors.New("relation already borked")}
	p := newTestProvisioner(reg, creator, migrator)

	_, err := p.EnsureReady(context.Background(), rec.ID)
	var provErr *ProvisioningError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, stepMigrate, provErr.Step)
	require.Equal(t, "acme", provErr.DatabaseID)

	failed, err := reg.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusProvisioningFailed, failed.Status)

	// The fault clears and the next call retries from scratch.
	migrator.err = nil
	migrator.version = 3
	got, err := p.EnsureReady(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusActive, got.Status)
	require.Equal(t, int32(2), migrator.calls.Load())
}

func TestEnsureReadyCreateDatabaseFailure(t *testing.T) {
	rec := pendingRecord("acme")
	reg := newMemRegistry(rec)
	creator := &fakeCreator{err: errors.New("permission denied to create database")}
	migrator := &fakeMigrator{version: 3}
	p := newTestProvisioner(reg, creator, migrator)

	_, err := p.EnsureReady(context.Background(), rec.ID)
	var provErr *ProvisioningError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, stepCreateDatabase, provErr.Step)
	require.Equal(t, int32(0), migrator.calls.Load())
}

func TestEnsureReadyUpgradesStaleActiveTenant(t *testing.T) {
	rec := pendingRecord("acme")
	rec.Status = tenant.StatusActive
	rec.SchemaVersion = 1
	reg := newMemRegistry(rec)
	creator := &fakeCreator{}
	migrator := &fakeMigrator{version: 3}
	p := newTestProvisioner(reg, creator, migrator)

	got, err := p.EnsureReady(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.StatusActive, got.Status)
	require.Equal(t, int64(3), got.SchemaVersion)
	require.Equal(t, int32(0), creator.calls.Load(), "database already exists")
	require.Equal(t, int32(1), migrator.calls.Load())
}

func TestEnsureReadyRefusesSuspendedTenant(t *testing.T) {
	for _, status := range []tenant.Status{tenant.StatusSuspended, tenant.StatusDeleted} {
		rec := pendingRecord("acme")
		rec.Status = status
		reg := newMemRegistry(rec)
		p := newTestProvisioner(reg, &fakeCreator{}, &fakeMigrator{version: 3})

		_, err := p.EnsureReady(context.Background(), rec.ID)
		require.ErrorIs(t, err, ErrNotProvisionable, "status %s", status)
	}
}

func TestEnsureReadyUnknownTenant(t *testing.T) {
	p := newTestProvisioner(newMemRegistry(), &fakeCreator{}, &fakeMigrator{version: 3})

	_, err := p.EnsureReady(context.Background(), uuid.New())
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestTargetSchemaVersionMatchesEmbeddedMigrations(t *testing.T) {
	require.Equal(t, int64(3), TargetSchemaVersion())
}
