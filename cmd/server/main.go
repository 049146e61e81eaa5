// Package main is the entrypoint for the GenBridge API server.
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

	"github.com/genbridge/genbridge/internal/adapter/factory"
	"github.com/genbridge/genbridge/internal/api"
	"github.com/genbridge/genbridge/internal/api/handler"
	mw "github.com/genbridge/genbridge/internal/api/middleware"
	"github.com/genbridge/genbridge/internal/api/response"
	"github.com/genbridge/genbridge/internal/cache"
	"github.com/genbridge/genbridge/internal/config"
	"github.com/genbridge/genbridge/internal/credential"
	"github.com/genbridge/genbridge/internal/ingest"
	"github.com/genbridge/genbridge/internal/progress"
	"github.com/genbridge/genbridge/internal/store"
	"github.com/genbridge/genbridge/internal/task"
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
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

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
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

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

	// 5. Create object storage
	objects, err := ingest.NewMinioStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("create object store: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure storage bucket: %w", err)
	}
	slog.Info("object storage ready", "bucket", cfg.Storage.Bucket)

	// 6. Create store and domain services
	pgStore := store.NewPostgresStore(pool)

	registry, err := factory.NewRegistry(cfg.Vendors)
	if err != nil {
		return fmt.Errorf("build adapter registry: %w", err)
	}
	slog.Info("adapters registered", "vendors", registry.Vendors())

	resolver := credential.NewResolver(pgStore, []string{"ollama"}, map[string]string{
		"openai": cfg.Vendors.OpenAI.OfficialBaseURL,
		"kling":  cfg.Vendors.Kling.OfficialBaseURL,
		"ollama": cfg.Vendors.Ollama.BaseURL,
	})

	bus := progress.NewBus(slog.Default())
	ingestor := ingest.NewIngestor(pgStore, objects, cfg.Storage, slog.Default())
	tasks := task.NewService(pgStore, redisCache, resolver, registry, bus, ingestor,
		cfg.Breaker, cfg.Storage.RequireHosting, slog.Default())

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		SubmitTaskHandler:    handler.NewSubmitTaskHandler(tasks),
		StreamTaskHandler:    handler.NewStreamTaskHandler(tasks),
		GetTaskStatusHandler: handler.NewGetTaskStatusHandler(redisCache),
		EventsHandler:        handler.NewEventsHandler(bus),

		CreateProviderHandler:   handler.NewCreateProviderHandler(pgStore, registry.Vendors),
		ListProvidersHandler:    handler.NewListProvidersHandler(pgStore),
		DeleteProviderHandler:   handler.NewDeleteProviderHandler(pgStore),
		CreateCredentialHandler: handler.NewCreateCredentialHandler(pgStore),
		ListCredentialsHandler:  handler.NewListCredentialsHandler(pgStore),
		DeleteCredentialHandler: handler.NewDeleteCredentialHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Task submission blocks through vendor polling; the write timeout
		// must outlive the longest poll deadline.
		WriteTimeout: cfg.Vendors.Kling.PollTimeout + time.Minute,
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

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
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
