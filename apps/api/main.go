package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	tenantshandler "github.com/craftdesk-io/craftdesk-saas/domains/tenants/be/handler"
	tenantsprov "github.com/craftdesk-io/craftdesk-saas/domains/tenants/be/provisioning"
	tenantsrepo "github.com/craftdesk-io/craftdesk-saas/domains/tenants/be/repo"
	tenantsservice "github.com/craftdesk-io/craftdesk-saas/domains/tenants/be/service"
	workspacehandler "github.com/craftdesk-io/craftdesk-saas/domains/workspace/be/handler"
	platformcache "github.com/craftdesk-io/craftdesk-saas/platform/go/cache"
	platformlogging "github.com/craftdesk-io/craftdesk-saas/platform/go/logging"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/metrics"
	platformmiddleware "github.com/craftdesk-io/craftdesk-saas/platform/go/middleware"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/routing"
	tenantmiddleware "github.com/craftdesk-io/craftdesk-saas/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	BootstrapShared bool          `env:"BOOTSTRAP_SHARED" envDefault:"false"`

	ProvisionTimeout  time.Duration `env:"PROVISION_TIMEOUT" envDefault:"2m"`
	PoolIdleTimeout   time.Duration `env:"TENANT_POOL_IDLE_TIMEOUT" envDefault:"15m"`
	PoolSweepInterval time.Duration `env:"TENANT_POOL_SWEEP_INTERVAL" envDefault:"1m"`
	TenantPoolMaxConn int32         `env:"TENANT_POOL_MAX_CONNS" envDefault:"4"`

	TenantCacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"30s"`
	RedisURL       string        `env:"REDIS_URL"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	sharedPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init shared postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(sharedPool)

	if cfg.BootstrapShared {
		if err := persistence.BootstrapSharedSchema(ctx, sharedPool); err != nil {
			logger.Fatal("bootstrap shared schema", zap.Error(err))
		}
		logger.Info("shared schema bootstrapped")
	}

	registry, err := tenantsrepo.NewPostgres(sharedPool)
	if err != nil {
		logger.Fatal("init tenant registry", zap.Error(err))
	}

	provisioner := tenantsprov.NewProvisioner(tenantsprov.Config{
		Registry:      registry,
		Databases:     tenantsprov.NewPGDatabaseCreator(sharedPool, logger),
		Migrator:      tenantsprov.NewGooseMigrator(cfg.DatabaseURL, logger),
		TargetVersion: tenantsprov.TargetSchemaVersion(),
		Logger:        logger,
	})

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pools := routing.NewPoolManager(routing.ManagerConfig{
		Build: tenantsprov.NewTenantPoolBuilder(provisioner, cfg.DatabaseURL, persistence.PoolConfig{
			MaxConns: cfg.TenantPoolMaxConn,
		}),
		ProvisionTimeout: cfg.ProvisionTimeout,
		Logger:           logger,
		Metrics:          metrics.NewRouting(promRegistry),
	})
	defer pools.Close()
	pools.StartSweeper(ctx, cfg.PoolSweepInterval, cfg.PoolIdleTimeout)

	router := routing.NewRouter(routing.RouterConfig{
		SharedPool: sharedPool,
		Tenants:    registry,
		Pools:      pools,
		Logger:     logger,
	})

	var tenantCache platformcache.TenantCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("parse redis url", zap.Error(err))
		}
		client := redis.NewClient(opts)
		defer func() {
			_ = client.Close()
		}()
		tenantCache = platformcache.NewRedis(client, cfg.TenantCacheTTL)
		logger.Info("tenant cache backed by redis")
	} else {
		tenantCache = platformcache.NewMemory(cfg.TenantCacheTTL)
	}

	tenantService := tenantsservice.New(tenantsservice.Config{
		Registry:    registry,
		Provisioner: provisioner,
		Pools:       pools,
		Cache:       tenantCache,
		Logger:      logger,
	})
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)
	workspaceHTTPHandler := workspacehandler.New(router, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := sharedPool.Ping(r.Context()); err != nil {
			http.Error(w, "shared database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	rootRouter.Route("/api/v1/admin", func(r chi.Router) {
		tenantHTTPHandler.Routes(r)
	})

	rootRouter.Route("/t/{tenantSlug}", func(r chi.Router) {
		r.Use(tenantmiddleware.WithTenant(tenantmiddleware.Config{
			Resolver: tenantService,
			Cache:    tenantCache,
			Logger:   logger,
		}))
		r.Route("/workspace", func(r chi.Router) {
			workspaceHTTPHandler.Routes(r)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
