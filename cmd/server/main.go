// Package main is the entrypoint for the Harmony job service.
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

	"github.com/skorper/harmony/internal/api"
	"github.com/skorper/harmony/internal/api/handler"
	mw "github.com/skorper/harmony/internal/api/middleware"
	"github.com/skorper/harmony/internal/api/response"
	"github.com/skorper/harmony/internal/cache"
	"github.com/skorper/harmony/internal/cloud"
	"github.com/skorper/harmony/internal/config"
	"github.com/skorper/harmony/internal/reaper"
	"github.com/skorper/harmony/internal/service"
	"github.com/skorper/harmony/internal/store"
	"github.com/skorper/harmony/pkg/models"
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
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "url_root", cfg.Server.URLRoot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	region, err := cloud.ResolveRegion(ctx, cfg.AWS.DefaultRegion)
	if err != nil {
		return fmt.Errorf("resolve aws region: %w", err)
	}
	slog.Info("aws region resolved", "region", region)

	pgStore := store.NewPostgresStore(pool)
	jobs := store.NewJobRepository(models.NewJobSettings(region))
	jobService := service.NewJobService(pgStore, jobs, redisCache, cfg.Jobs.CacheTTL)

	go reaper.New(jobService, cfg.Reaper.Interval, cfg.Reaper.StalledMinutes, cfg.Reaper.BatchSize).Run(ctx)

	router := api.NewRouter(dependencies(cfg, pgStore, redisCache, jobService))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// dependencies wires every route of the router to its handler.
func dependencies(cfg *config.Config, s store.Store, c cache.Cache, jobs handler.JobService) api.Dependencies {
	root := cfg.Server.URLRoot
	paging := handler.Paging{DefaultLimit: cfg.Jobs.DefaultPageSize, MaxLimit: cfg.Jobs.MaxPageSize}

	return api.Dependencies{
		Auth:      mw.NewAuth(s),
		RateLimit: mw.NewRateLimit(c, cfg.RateLimit.RequestsPerMinute),

		HealthHandler:  healthHandler(s, c),
		ListJobs:       handler.NewListJobsHandler(jobs, root, paging),
		JobStatus:      handler.NewJobStatusHandler(jobs, root),
		CancelJob:      handler.NewCancelJobHandler(jobs, root),
		AdminListJobs:  handler.NewAdminListJobsHandler(jobs, root, paging),
		AdminJobStatus: handler.NewAdminJobStatusHandler(jobs, root),
		AdminCancelJob: handler.NewAdminCancelJobHandler(jobs, root),
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
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

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
