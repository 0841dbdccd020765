// Package handler exposes the tenant admin API over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftdesk-io/craftdesk-saas/domains/tenants/be/provisioning"
	"github.com/craftdesk-io/craftdesk-saas/domains/tenants/be/service"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

// Handler wires the tenant service to the admin HTTP surface.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the admin tenant endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/tenants", h.create)
	r.Get("/tenants", h.list)
	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.delete)
		r.Post("/provision", h.provision)
		r.Post("/suspend", h.suspend)
		r.Post("/reactivate", h.reactivate)
	})
}

type createRequest struct {
	Slug string `json:"slug"`
}

type tenantResponse struct {
	ID            uuid.UUID `json:"id"`
	Slug          string    `json:"slug"`
	DatabaseID    string    `json:"database_id"`
	Status        string    `json:"status"`
	SchemaVersion int64     `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type listResponse struct {
	Items      []tenantResponse `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalItems int              `json:"total_items"`
	TotalPages int              `json:"total_pages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	rec, err := h.svc.Onboard(r.Context(), req.Slug)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/admin/tenants/"+rec.ID.String())
	h.writeJSON(w, http.StatusAccepted, toResponse(rec))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	opts := persistence.ListOptions{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "page_size"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := tenant.ParseStatus(raw)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		opts.Status = &status
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, rec := range result.Tenants {
		items = append(items, toResponse(rec))
	}
	h.writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Provision(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Suspend(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Reactivate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid tenant id"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps domain errors to HTTP statuses. Provisioning faults come
// back as 503 so clients know the workspace is still being prepared and can
// retry.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var provErr *provisioning.ProvisioningError

	switch {
	case errors.Is(err, persistence.ErrInvalidSlug):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, persistence.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "tenant not found"})
	case errors.Is(err, persistence.ErrDuplicateTenant):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, persistence.ErrStaleTransition), errors.Is(err, persistence.ErrIllegalTransition):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, tenant.ErrNotRoutable), errors.Is(err, provisioning.ErrNotProvisionable):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &provErr):
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "workspace is being prepared, retry shortly"})
	default:
		h.logger.Error("tenant admin request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("write response", zap.Error(err))
	}
}

func toResponse(rec persistence.TenantRecord) tenantResponse {
	return tenantResponse{
		ID:            rec.ID,
		Slug:          rec.Slug,
		DatabaseID:    rec.DatabaseID,
		Status:        string(rec.Status),
		SchemaVersion: rec.SchemaVersion,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}
