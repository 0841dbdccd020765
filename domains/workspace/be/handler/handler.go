// Package handler serves the tenant-facing workspace endpoints. Every data
// access goes through the router, so these handlers never see a raw DSN or
// decide where a table lives.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/routing"
)

// Handler exposes workspace data for the tenant resolved by the tenant
// middleware upstream.
type Handler struct {
	router *routing.Router
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(router *routing.Router, logger *zap.Logger) *Handler {
	if router == nil {
		panic("workspace handler requires a router")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{router: router, logger: logger}
}

// Routes mounts the workspace endpoints under a tenant-scoped router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/summary", h.summary)
}

type summaryResponse struct {
	DatabaseID     string `json:"database_id"`
	Customers      int64  `json:"customers"`
	Orders         int64  `json:"orders"`
	ActiveSessions int64  `json:"active_sessions"`
}

// summary reads from both sides of the split: order and customer counts come
// from the tenant database, the session count from the shared database.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	handle, err := h.router.Route(ctx, routing.CategoryOrders)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer handle.Release()

	var resp summaryResponse
	resp.DatabaseID = handle.DatabaseID()

	if resp.Orders, err = countRows(ctx, handle, "orders"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if resp.Customers, err = countRows(ctx, handle, "customers"); err != nil {
		h.writeError(w, r, err)
		return
	}

	shared, err := h.router.Route(ctx, routing.CategorySessions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer shared.Release()

	err = shared.Pool().QueryRow(ctx,
		"SELECT COUNT(*) FROM sessions WHERE expires_at > now()").Scan(&resp.ActiveSessions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("write summary response", zap.Error(err))
	}
}

func countRows(ctx context.Context, handle *routing.Handle, table string) (int64, error) {
	var n int64
	err := handle.Pool().QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, err
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, routing.ErrMissingTenantContext):
		http.Error(w, "tenant required", http.StatusBadRequest)
	case errors.Is(err, routing.ErrTenantNotAccessible):
		http.Error(w, "tenant is not available", http.StatusForbidden)
	case errors.Is(err, routing.ErrTenantUnavailable):
		http.Error(w, "workspace is being prepared, retry shortly", http.StatusServiceUnavailable)
	default:
		h.logger.Error("workspace request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
