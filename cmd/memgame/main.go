package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/terra-clan/memgame/internal/api"
	"github.com/terra-clan/memgame/internal/auth"
	"github.com/terra-clan/memgame/internal/catalog"
	"github.com/terra-clan/memgame/internal/config"
	"github.com/terra-clan/memgame/internal/game"
	"github.com/terra-clan/memgame/internal/health"
	"github.com/terra-clan/memgame/internal/profile"
	"github.com/terra-clan/memgame/internal/storage"
)

func main() {
	// Setup structured logging; the level is adjusted once config is loaded
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// A .env file is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.Level)

	slog.Info("starting memgame",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"schema", cfg.Database.Schema,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Level catalog
	levels := catalog.Default()
	if cfg.Catalog.File != "" {
		levels, err = catalog.LoadFile(cfg.Catalog.File)
		if err != nil {
			slog.Error("failed to load level catalog", "error", err)
			os.Exit(1)
		}
	}

	// Run database migrations
	slog.Info("running database migrations", "schema", cfg.Database.Schema)
	if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.Schema); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:      cfg.Database.DSN,
		Schema:   cfg.Database.Schema,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("database connected successfully")

	// Readiness checks
	registry := health.NewRegistry()
	registry.Register("postgres", health.CheckerFunc(repo.Ping))

	// Token revocation: shared through Redis when configured
	var revoker auth.Revoker
	if cfg.Redis.Enabled() {
		rdb, err := storage.NewRedisClient(initCtx, storage.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()

		registry.Register("redis", health.CheckerFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		revoker = auth.NewRedisRevoker(rdb)
		slog.Info("redis connected successfully", "address", cfg.Redis.Address)
	} else {
		memRevoker := auth.NewMemoryRevoker()
		defer memRevoker.Stop()
		revoker = memRevoker
		slog.Warn("redis not configured, logouts are kept in process memory")
	}

	// Domain services
	accounts := auth.NewService(
		repo,
		auth.NewPasswordHasher(0),
		auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL),
		revoker,
	)
	aggregator := profile.NewAggregator(repo)
	manager := game.NewManager(repo, levels, aggregator)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, cfg.Auth, manager, levels, aggregator, accounts, registry)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
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

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("memgame stopped")
}
