package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/metrics"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
)

// PoolBuilder produces a live pool for a tenant database, provisioning the
// database first when it does not exist yet.
type PoolBuilder func(ctx context.Context, rec persistence.TenantRecord) (*pgxpool.Pool, error)

const defaultProvisionTimeout = 2 * time.Minute

// ManagerConfig configures a PoolManager.
type ManagerConfig struct {
	Build PoolBuilder
	// ProvisionTimeout bounds a single pool build including lazy
	// provisioning; waiters blocked past it receive ErrTenantUnavailable.
	ProvisionTimeout time.Duration
	Logger           *zap.Logger
	Metrics          *metrics.Routing
}

// PoolManager owns the registry of live tenant connection pools, keyed by
// database id. Pools are created lazily behind a per-key critical section:
// concurrent first-access callers for the same database wait for one build,
// while different databases proceed fully in parallel.
type PoolManager struct {
	build            PoolBuilder
	provisionTimeout time.Duration
	logger           *zap.Logger
	metrics          *metrics.Routing

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// entry tracks one database id's pool and its build state. ready is closed
// once pool/err are settled; refs and lastUsed are guarded by the manager
// mutex.
type entry struct {
	databaseID string
	ready      chan struct{}
	pool       *pgxpool.Pool
	err        error

	refs     int
	lastUsed time.Time
	closing  bool
}

// NewPoolManager constructs a manager. The builder is required; everything
// else has defaults.
func NewPoolManager(cfg ManagerConfig) *PoolManager {
	if cfg.Build == nil {
		panic("pool manager requires a pool builder")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ProvisionTimeout <= 0 {
		cfg.ProvisionTimeout = defaultProvisionTimeout
	}
	return &PoolManager{
		build:            cfg.Build,
		provisionTimeout: cfg.ProvisionTimeout,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		entries:          make(map[string]*entry),
	}
}

// Acquire returns a borrowed handle for the tenant's database, building the
// pool (and provisioning the database) on first access. A failed build is
// never cached: the next acquire retries from scratch.
func (m *PoolManager) Acquire(ctx context.Context, rec persistence.TenantRecord) (*Handle, error) {
	for {
		e, err := m.entryFor(ctx, rec)
		if err != nil {
			return nil, err
		}

		select {
		case <-e.ready:
		case <-ctx.Done():
			// The build keeps running on its own context; other waiters may
			// still need its result.
			return nil, ctx.Err()
		}

		if e.err != nil {
			if m.metrics != nil {
				m.metrics.Acquires.WithLabelValues("error").Inc()
			}
			return nil, fmt.Errorf("%w: %w", ErrTenantUnavailable, e.err)
		}

		m.mu.Lock()
		if m.entries[e.databaseID] != e || e.closing {
			// Invalidated between build completion and checkout; start over
			// with a fresh entry.
			m.mu.Unlock()
			continue
		}
		e.refs++
		e.lastUsed = time.Now()
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.Acquires.WithLabelValues("ok").Inc()
		}
		return &Handle{databaseID: e.databaseID, pool: e.pool, release: func() { m.release(e) }}, nil
	}
}

// entryFor returns the live entry for the database id, creating it and
// kicking off the build when absent.
func (m *PoolManager) entryFor(ctx context.Context, rec persistence.TenantRecord) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("pool manager is closed")
	}
	if e, ok := m.entries[rec.DatabaseID]; ok {
		return e, nil
	}

	e := &entry{databaseID: rec.DatabaseID, ready: make(chan struct{})}
	m.entries[rec.DatabaseID] = e

	// The build is shared work: it is detached from the triggering caller's
	// cancellation and bounded by the provisioning timeout instead.
	buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.provisionTimeout)
	go m.runBuild(buildCtx, cancel, e, rec)

	return e, nil
}

func (m *PoolManager) runBuild(ctx context.Context, cancel context.CancelFunc, e *entry, rec persistence.TenantRecord) {
	defer cancel()
	start := time.Now()

	pool, err := m.build(ctx, rec)

	m.mu.Lock()
	if err != nil {
		e.err = err
		if m.entries[e.databaseID] == e {
			delete(m.entries, e.databaseID)
		}
		m.mu.Unlock()
		close(e.ready)
		m.logger.Warn("tenant pool build failed",
			zap.String("database_id", e.databaseID),
			zap.Error(err))
		return
	}

	e.pool = pool
	e.lastUsed = time.Now()
	if m.entries[e.databaseID] != e || m.closed {
		// Invalidated (or shut down) while building: no handle was ever
		// borrowed, so the pool can be closed immediately. Waiters see a
		// missing entry and re-acquire.
		m.mu.Unlock()
		close(e.ready)
		pool.Close()
		return
	}
	m.mu.Unlock()
	close(e.ready)

	if m.metrics != nil {
		m.metrics.OpenPools.Inc()
		m.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	}
	m.logger.Info("tenant pool ready",
		zap.String("database_id", e.databaseID),
		zap.Duration("build_time", time.Since(start)))
}

func (m *PoolManager) release(e *entry) {
	m.mu.Lock()
	e.refs--
	e.lastUsed = time.Now()
	closeNow := e.closing && e.refs == 0
	m.mu.Unlock()

	if closeNow {
		e.pool.Close()
		if m.metrics != nil {
			m.metrics.OpenPools.Dec()
		}
	}
}

// ReleaseIdle closes and evicts pools unused for longer than maxIdle. Handles
// currently borrowed by in-flight operations are never evicted. Returns the
// number of pools closed.
func (m *PoolManager) ReleaseIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	var victims []*entry
	m.mu.Lock()
	for id, e := range m.entries {
		select {
		case <-e.ready:
		default:
			continue // still building
		}
		if e.err != nil || e.refs > 0 || e.lastUsed.After(cutoff) {
			continue
		}
		delete(m.entries, id)
		victims = append(victims, e)
	}
	m.mu.Unlock()

	for _, e := range victims {
		e.pool.Close()
		if m.metrics != nil {
			m.metrics.OpenPools.Dec()
		}
		m.logger.Debug("evicted idle tenant pool", zap.String("database_id", e.databaseID))
	}
	return len(victims)
}

// StartSweeper runs ReleaseIdle every interval until ctx is done.
func (m *PoolManager) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ReleaseIdle(maxIdle)
			}
		}
	}()
}

// Invalidate force-removes a database's handle so a later acquire rebuilds
// fresh state. Used when a tenant is suspended or deleted, or a pool is found
// broken. Borrowed handles drain first; the pool closes on the last release.
func (m *PoolManager) Invalidate(databaseID string) {
	m.mu.Lock()
	e, ok := m.entries[databaseID]
	if ok {
		delete(m.entries, databaseID)
	}

	var closeNow bool
	if ok {
		select {
		case <-e.ready:
			if e.err == nil {
				if e.refs == 0 {
					closeNow = true
				} else {
					e.closing = true
				}
			}
		default:
			// Still building; runBuild notices the missing entry and closes
			// the pool itself.
		}
	}
	m.mu.Unlock()

	if closeNow {
		e.pool.Close()
		if m.metrics != nil {
			m.metrics.OpenPools.Dec()
		}
	}
}

// Open reports the number of registered pools, including in-flight builds.
func (m *PoolManager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close shuts the registry down. Pools still building close themselves once
// the build finishes.
func (m *PoolManager) Close() {
	m.mu.Lock()
	m.closed = true
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		select {
		case <-e.ready:
			if e.err == nil && e.pool != nil {
				e.pool.Close()
			}
		default:
		}
	}
}
