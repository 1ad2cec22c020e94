package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/httpapi"
	"github.com/MrEthical07/shopauth/middleware"
	"github.com/MrEthical07/shopauth/social"
	"github.com/MrEthical07/shopauth/store/memstore"
	"github.com/MrEthical07/shopauth/store/postgres"
)

type identityBackend interface {
	shopauth.IdentityStore
	shopauth.TenantDirectory
}

func newServeCmd(load func() (shopauth.Config, error)) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrate, logger)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the Postgres schema before serving")
	return cmd
}

func serve(ctx context.Context, cfg shopauth.Config, migrate bool, logger *zap.Logger) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	backend, closeBackend, err := openBackend(ctx, cfg.Database, migrate, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := shopauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(backend).
		WithTenantDirectory(backend).
		WithLogger(logger).
		WithMetricsRegisterer(registry).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	providers, err := discoverProviders(ctx)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Mount("/", httpapi.NewRouter(engine, httpapi.Options{
		TenantHeader: cfg.HTTP.TenantHeader,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
			Burst:             cfg.HTTP.Burst,
		},
		Social: providers,
		Logger: logger,
	}))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openBackend uses Postgres when a DSN is configured and an in-memory store
// otherwise.
func openBackend(ctx context.Context, cfg shopauth.DatabaseConfig, migrate bool, logger *zap.Logger) (identityBackend, func(), error) {
	if cfg.DSN == "" {
		logger.Warn("no database DSN configured, using in-memory store")
		return memstore.New(), func() {}, nil
	}
	store, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	if migrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
	}
	return store, func() { _ = store.Close() }, nil
}

// discoverProviders registers the OIDC provider named by OIDC_PROVIDER,
// OIDC_ISSUER and OIDC_CLIENT_ID. Without them social login is disabled.
func discoverProviders(ctx context.Context) (*social.Registry, error) {
	name, issuer, clientID := os.Getenv("OIDC_PROVIDER"), os.Getenv("OIDC_ISSUER"), os.Getenv("OIDC_CLIENT_ID")
	if name == "" || issuer == "" || clientID == "" {
		return nil, nil
	}
	p, err := social.Discover(ctx, name, issuer, clientID)
	if err != nil {
		return nil, err
	}
	return social.NewRegistry(p), nil
}
