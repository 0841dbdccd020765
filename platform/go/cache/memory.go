package cache

import (
	"context"
	"sync"
	"time"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

type memoryEntry struct {
	info      tenant.Info
	expiresAt time.Time
}

// Memory is a process-local TenantCache with per-entry TTL. The default for
// single-instance deployments and tests.
type Memory struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory builds an in-process cache. ttl <= 0 disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(ctx context.Context, slug string) (tenant.Info, error) {
	m.mu.RLock()
	entry, ok := m.entries[slug]
	m.mu.RUnlock()

	if !ok {
		return tenant.Info{}, ErrMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, slug)
		m.mu.Unlock()
		return tenant.Info{}, ErrMiss
	}
	return entry.info, nil
}

func (m *Memory) Put(ctx context.Context, slug string, info tenant.Info) error {
	entry := memoryEntry{info: info}
	if m.ttl > 0 {
		entry.expiresAt = time.Now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[slug] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Forget(ctx context.Context, slug string) error {
	m.mu.Lock()
	delete(m.entries, slug)
	m.mu.Unlock()
	return nil
}
