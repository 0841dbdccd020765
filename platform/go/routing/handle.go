package routing

import (
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Handle is a borrowed reference to a live database pool. Handles are owned
// by the pool manager: callers use the pool for one unit of work and Release
// it so idle eviction can make progress. The shared database handle is pinned
// for the process lifetime and its Release is a no-op.
type Handle struct {
	databaseID string
	pool       *pgxpool.Pool

	releaseOnce sync.Once
	release     func()
}

// DatabaseID identifies the physical database this handle is bound to.
func (h *Handle) DatabaseID() string { return h.databaseID }

// Pool exposes the underlying connection pool.
func (h *Handle) Pool() *pgxpool.Pool { return h.pool }

// Release returns the borrow to the pool manager. Safe to call more than
// once; only the first call counts.
func (h *Handle) Release() {
	if h.release != nil {
		h.releaseOnce.Do(h.release)
	}
}

func newPinnedHandle(databaseID string, pool *pgxpool.Pool) *Handle {
	return &Handle{databaseID: databaseID, pool: pool}
}
