package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

// Memory is an in-memory registry with the same semantics as the Postgres
// store: unique slugs, database id collision suffixes, and compare-and-swap
// status transitions. Used by service tests and offline tooling.
type Memory struct {
	mu      sync.Mutex
	records map[uuid.UUID]persistence.TenantRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[uuid.UUID]persistence.TenantRecord)}
}

func (m *Memory) Create(ctx context.Context, slug string) (persistence.TenantRecord, error) {
	normalized, err := persistence.NormalizeSlug(slug)
	if err != nil {
		return persistence.TenantRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	taken := make(map[string]bool, len(m.records))
	for _, rec := range m.records {
		if rec.Slug == normalized {
			return persistence.TenantRecord{}, fmt.Errorf("%w: slug %q", persistence.ErrDuplicateTenant, normalized)
		}
		taken[rec.DatabaseID] = true
	}

	var databaseID string
	for attempt := 0; ; attempt++ {
		candidate := tenant.DatabaseIDAttempt(normalized, attempt)
		if !taken[candidate] {
			databaseID = candidate
			break
		}
	}

	now := time.Now().UTC()
	rec := persistence.TenantRecord{
		ID:             uuid.New(),
		Slug:           normalized,
		DatabaseID:     databaseID,
		Status:         tenant.StatusPending,
		CredentialsRef: persistence.CredentialsRefShared,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *Memory) Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return persistence.TenantRecord{}, persistence.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) GetBySlug(ctx context.Context, slug string) (persistence.TenantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.Slug == slug {
			return rec, nil
		}
	}
	return persistence.TenantRecord{}, persistence.ErrNotFound
}

func (m *Memory) Transition(ctx context.Context, id uuid.UUID, from, to tenant.Status) (persistence.TenantRecord, error) {
	if !from.CanTransition(to) {
		return persistence.TenantRecord{}, fmt.Errorf("%w: %s -> %s", persistence.ErrIllegalTransition, from, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return persistence.TenantRecord{}, persistence.ErrNotFound
	}
	if rec.Status != from {
		return rec, fmt.Errorf("%w: expected %s, found %s", persistence.ErrStaleTransition, from, rec.Status)
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	m.records[id] = rec
	return rec, nil
}

func (m *Memory) MarkSchemaVersion(ctx context.Context, id uuid.UUID, version int64) (persistence.TenantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return persistence.TenantRecord{}, persistence.ErrNotFound
	}
	rec.SchemaVersion = version
	rec.UpdatedAt = time.Now().UTC()
	m.records[id] = rec
	return rec, nil
}

func (m *Memory) List(ctx context.Context, opts persistence.ListOptions) (persistence.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}

	m.mu.Lock()
	var all []persistence.TenantRecord
	for _, rec := range m.records {
		if opts.Status != nil && rec.Status != *opts.Status {
			continue
		}
		all = append(all, rec)
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	return persistence.ListResult{
		Tenants:    all[start:end],
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	}, nil
}
