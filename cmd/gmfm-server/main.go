package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/gmfm-scoring/internal/api"
	"github.com/terra-clan/gmfm-scoring/internal/assessment"
	"github.com/terra-clan/gmfm-scoring/internal/cache"
	"github.com/terra-clan/gmfm-scoring/internal/catalog"
	"github.com/terra-clan/gmfm-scoring/internal/config"
	"github.com/terra-clan/gmfm-scoring/internal/metrics"
	"github.com/terra-clan/gmfm-scoring/internal/models"
	"github.com/terra-clan/gmfm-scoring/internal/scoring"
	"github.com/terra-clan/gmfm-scoring/internal/security"
	"github.com/terra-clan/gmfm-scoring/internal/services"
	"github.com/terra-clan/gmfm-scoring/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	level, _ := config.ParseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting gmfm-server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Load the item catalog; scoring is impossible without it
	src := catalog.EmbeddedSource()
	if cfg.Catalog.Path != "" {
		src = catalog.FileSource(cfg.Catalog.Path)
	}
	cat := catalog.New(src)
	if err := cat.Load(); err != nil {
		slog.Error("failed to load item catalog", "source", src.Name(), "error", err)
		os.Exit(1)
	}

	// Patient fields are encrypted at rest
	key, err := security.LoadKey(cfg.Security.EncryptionKey, cfg.Security.KeyFile)
	if err != nil {
		slog.Error("failed to load encryption key", "error", err)
		os.Exit(1)
	}
	cipher, err := security.NewCipher(key)
	if err != nil {
		slog.Error("failed to create cipher", "error", err)
		os.Exit(1)
	}

	repo, err := openRepository(initCtx, cfg.Database, cipher)
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("database connected successfully", "driver", cfg.Database.Driver)

	if cfg.Security.BootstrapAPIKey != "" {
		if err := ensureBootstrapClient(initCtx, repo, cfg.Security.BootstrapAPIKey); err != nil {
			slog.Error("failed to create bootstrap api client", "error", err)
			os.Exit(1)
		}
	}

	collector := metrics.NewCollector()

	// Initialize service registry
	registry := services.NewRegistry()
	registry.Register(cfg.Database.Driver, services.NewPingChecker(cfg.Database.Driver, repo))
	registry.Register("catalog", services.NewCatalogChecker(cat))

	// Score cache: Redis when configured, in-process otherwise
	var scoreCache cache.ScoreCache
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient, err = services.NewRedisClient(initCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		scoreCache = cache.NewRedisCache(redisClient, cfg.Cache.TTL)
		registry.Register("redis", services.NewRedisChecker(redisClient))
	} else {
		slog.Info("redis not configured, using in-memory score cache")
		scoreCache = cache.NewMemoryCache(cfg.Cache.TTL)
	}

	loader := cache.NewLoader(scoreCache, collector)
	svc := assessment.NewService(repo, scoring.NewEngine(cat), loader, collector)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start dependency monitor
	monitor := services.NewMonitor(registry, collector, cfg.Health.Interval)
	monitor.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, svc, repo, registry, collector)
	defer server.Close()

	// No WriteTimeout: live scoring websockets stay open, the API routes carry their own timeout
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("gmfm-server stopped")
}

// openRepository connects the configured store, running migrations first
func openRepository(ctx context.Context, cfg config.DatabaseConfig, cipher security.FieldCipher) (storage.Repository, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		slog.Info("running database migrations", "dir", cfg.MigrationsDir)
		if err := storage.MigrateFromDSN(ctx, cfg.DSN, cfg.MigrationsDir); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:          cfg.DSN,
			MaxOpenConns: int32(cfg.MaxOpenConns),
			MaxIdleConns: int32(cfg.MaxIdleConns),
		}, cipher)
	case config.DriverSQLite:
		return storage.NewSQLiteRepository(ctx, cfg.SQLitePath, cipher)
	}
	return nil, fmt.Errorf("unknown database driver: %q", cfg.Driver)
}

// ensureBootstrapClient registers a full-access client for key unless it exists
func ensureBootstrapClient(ctx context.Context, repo storage.Repository, key string) error {
	existing, err := repo.GetClientByApiKey(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	client := &models.ApiClient{
		Name:        "bootstrap",
		ApiKey:      key,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		Permissions: []string{"*"},
	}
	if err := repo.CreateApiClient(ctx, client); err != nil {
		return err
	}

	slog.Info("bootstrap api client created", "client_id", client.ID, "key_prefix", client.MaskedApiKey())
	return nil
}
