// Package middleware resolves the tenant slug segment of incoming requests
// and attaches the tenant identity to the request context.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/cache"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

// URLParamTenantSlug is the chi route parameter carrying the tenant slug,
// e.g. /t/{tenantSlug}/orders.
const URLParamTenantSlug = "tenantSlug"

// Resolver maps a routing slug to a tenant identity, refusing tenants whose
// status forbids traffic. Implemented by the tenants service.
type Resolver interface {
	ResolveTenant(ctx context.Context, slug string) (tenant.Info, error)
}

// Config controls middleware behavior.
type Config struct {
	Resolver Resolver
	// Cache short-circuits registry lookups for hot slugs; nil disables
	// caching.
	Cache  cache.TenantCache
	Logger *zap.Logger
}

// WithTenant resolves the {tenantSlug} route parameter and attaches the
// tenant identity to the request context. Requests for unknown slugs get 404;
// suspended or deleted tenants get 403 before any data access happens.
func WithTenant(cfg Config) func(http.Handler) http.Handler {
	if cfg.Resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := chi.URLParam(r, URLParamTenantSlug)
			if slug == "" {
				http.Error(w, "tenant slug required", http.StatusBadRequest)
				return
			}

			if cfg.Cache != nil {
				if info, err := cfg.Cache.Get(r.Context(), slug); err == nil {
					next.ServeHTTP(w, r.WithContext(tenant.WithInfo(r.Context(), info)))
					return
				}
			}

			info, err := cfg.Resolver.ResolveTenant(r.Context(), slug)
			if err != nil {
				writeResolveError(w, logger, slug, err)
				return
			}

			if cfg.Cache != nil {
				if err := cfg.Cache.Put(r.Context(), slug, info); err != nil {
					logger.Warn("tenant cache put failed", zap.String("slug", slug), zap.Error(err))
				}
			}

			next.ServeHTTP(w, r.WithContext(tenant.WithInfo(r.Context(), info)))
		})
	}
}

func writeResolveError(w http.ResponseWriter, logger *zap.Logger, slug string, err error) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		http.Error(w, "tenant not found", http.StatusNotFound)
	case errors.Is(err, tenant.ErrNotRoutable):
		http.Error(w, "tenant is not available", http.StatusForbidden)
	default:
		logger.Error("tenant resolution failed", zap.String("slug", slug), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
