// Package main provides the entry point for the ThreatSync server.
// It ingests external threat intelligence feeds, normalizes indicators,
// and correlates them against organization assets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vantran-sec/threatsync/internal/api"
	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/correlation"
	"github.com/vantran-sec/threatsync/internal/feeds"
	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/mitre"
	"github.com/vantran-sec/threatsync/internal/orchestrator"
	"github.com/vantran-sec/threatsync/internal/outbound"
	"github.com/vantran-sec/threatsync/internal/secrets"
	"github.com/vantran-sec/threatsync/internal/store"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// sealKeyEnv names the env var holding the key material for sealing
// stored feed credentials.
const sealKeyEnv = "THREATSYNC_SEAL_KEY"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ThreatSync %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting ThreatSync",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
		zap.String("config", *configPath))

	repo, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer closeStore()

	// Without key material the registry falls back to treating stored
	// credentials as opaque and skips header injection for custom feeds.
	var sealer *secrets.Sealer
	if keyMaterial := os.Getenv(sealKeyEnv); keyMaterial != "" {
		sealer, err = secrets.NewSealer(keyMaterial)
		if err != nil {
			logger.Fatal("failed to initialize credential sealer", zap.Error(err))
		}
	} else {
		logger.Warn("credential sealing disabled", zap.String("env", sealKeyEnv))
	}

	client := outbound.NewClient(outbound.GuardPolicy{
		AllowInsecureHTTP: cfg.Outbound.AllowInsecureHTTP,
		AllowedHosts:      cfg.Outbound.AllowedHosts,
	}, logger)

	registry := feeds.NewRegistry(cfg, client, sealer, logger)
	attack := mitre.NewService(cfg, mitre.NewTAXIIClient(cfg, client), repo, logger)
	engine := correlation.NewEngine(cfg, repo, logger)
	orch := orchestrator.New(cfg, repo, registry, attack, engine, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewServer(cfg, repo, orch, engine, logger, Version).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := <-sigChan
	logger.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}

// buildLogger constructs a zap logger from the logging config.
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// buildStore selects the Redis-backed store when enabled, falling back to
// the in-memory store otherwise.
func buildStore(cfg *config.Config, logger *zap.Logger) (intel.Repository, func(), error) {
	if !cfg.Redis.Enabled {
		logger.Info("using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: os.Getenv(cfg.Redis.PasswordEnv),
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}

	logger.Info("using redis store", zap.String("addr", cfg.Redis.Addr))
	return store.NewRedisStore(rdb), func() { rdb.Close() }, nil
}
