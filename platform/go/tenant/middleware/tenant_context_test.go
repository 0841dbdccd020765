package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/cache"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

type stubResolver struct {
	infos map[string]tenant.Info
	errs  map[string]error
	calls atomic.Int32
}

func (r *stubResolver) ResolveTenant(ctx context.Context, slug string) (tenant.Info, error) {
	r.calls.Add(1)
	if err, ok := r.errs[slug]; ok {
		return tenant.Info{}, err
	}
	info, ok := r.infos[slug]
	if !ok {
		return tenant.Info{}, persistence.ErrNotFound
	}
	return info, nil
}

func newTenantRouter(cfg Config) (*chi.Mux, *atomic.Value) {
	var seen atomic.Value

	r := chi.NewRouter()
	r.Route("/t/{tenantSlug}", func(r chi.Router) {
		r.Use(WithTenant(cfg))
		r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
			if info, ok := tenant.FromContext(req.Context()); ok {
				seen.Store(info)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r, &seen
}

func TestWithTenantAttachesInfo(t *testing.T) {
	info := tenant.Info{ID: uuid.New(), Slug: "acme", DatabaseID: "acme"}
	resolver := &stubResolver{infos: map[string]tenant.Info{"acme": info}}
	router, seen := newTenantRouter(Config{Resolver: resolver})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t/acme/ping", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, info, seen.Load())
}

func TestWithTenantUnknownSlug(t *testing.T) {
	resolver := &stubResolver{}
	router, _ := newTenantRouter(Config{Resolver: resolver})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t/ghost/ping", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWithTenantSuspendedSlug(t *testing.T) {
	resolver := &stubResolver{errs: map[string]error{
		"acme": fmt.Errorf("%w: tenant %q is suspended", tenant.ErrNotRoutable, "acme"),
	}}
	router, _ := newTenantRouter(Config{Resolver: resolver})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t/acme/ping", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWithTenantUsesCache(t *testing.T) {
	info := tenant.Info{ID: uuid.New(), Slug: "acme", DatabaseID: "acme"}
	resolver := &stubResolver{infos: map[string]tenant.Info{"acme": info}}
	router, seen := newTenantRouter(Config{
		Resolver: resolver,
		Cache:    cache.NewMemory(time.Minute),
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t/acme/ping", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	require.Equal(t, int32(1), resolver.calls.Load())
	require.Equal(t, info, seen.Load())
}

func TestWithTenantResolverFailure(t *testing.T) {
	resolver := &stubResolver{errs: map[string]error{
		"acme": fmt.Errorf("registry unavailable"),
	}}
	router, _ := newTenantRouter(Config{Resolver: resolver})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t/acme/ping", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
