// Package main is the entrypoint for the GeniusGrid API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/geniusgrid/internal/api"
	"github.com/kiranshivaraju/geniusgrid/internal/api/handler"
	mw "github.com/kiranshivaraju/geniusgrid/internal/api/middleware"
	"github.com/kiranshivaraju/geniusgrid/internal/api/response"
	"github.com/kiranshivaraju/geniusgrid/internal/audit"
	"github.com/kiranshivaraju/geniusgrid/internal/auth"
	"github.com/kiranshivaraju/geniusgrid/internal/cache"
	"github.com/kiranshivaraju/geniusgrid/internal/config"
	"github.com/kiranshivaraju/geniusgrid/internal/metrics"
	"github.com/kiranshivaraju/geniusgrid/internal/store"
	"github.com/kiranshivaraju/geniusgrid/internal/tenant"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port, "token_ttl", cfg.Auth.TokenTTL.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Migrations.Dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied", "dir", cfg.Migrations.Dir)

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build the identity core
	pgStore := store.NewPostgresStore(pool)
	router, err := buildRouter(cfg, pgStore, redisCache, metrics.New())
	if err != nil {
		return err
	}

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// buildRouter wires the store and cache into the auth core and handlers.
func buildRouter(cfg *config.Config, s store.Store, c cache.Cache, m *metrics.Metrics) (http.Handler, error) {
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	codec := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	resolver, err := auth.NewResolver(s, hasher, codec, c)
	if err != nil {
		return nil, fmt.Errorf("create resolver: %w", err)
	}
	recorder := audit.NewRecorder(s)
	provisioner := tenant.NewProvisioner(s, hasher, resolver, recorder)

	throttle := mw.NewLoginThrottle(c, cfg.Auth.LoginAttemptsPerMin).
		OnThrottled(func() { m.LoginAttempt(metrics.ResultThrottled) })

	return api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(resolver),
		LoginThrottle:  throttle,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Instrument:     m.Middleware,
		MetricsHandler: m.Handler(),

		HealthHandler: healthHandler(s, c),

		SignupHandler:  handler.NewSignupHandler(provisioner, m),
		LoginHandler:   handler.NewLoginHandler(resolver, m),
		ProfileHandler: handler.NewProfileHandler(),
		LogoutHandler:  handler.NewLogoutHandler(c, m),

		GetTenantHandler:    handler.NewGetTenantHandler(s),
		UpdateTenantHandler: handler.NewUpdateTenantHandler(s, recorder),
		ListRolesHandler:    handler.NewListRolesHandler(s),
		CreateRoleHandler:   handler.NewCreateRoleHandler(s, recorder),
		AssignRoleHandler:   handler.NewAssignRoleHandler(s, recorder),

		ListCompaniesHandler: handler.NewListCompaniesHandler(s),
	}), nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(db store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, response.CodeDegraded,
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
