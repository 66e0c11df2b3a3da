// Shikra - Real-time transaction risk scoring for mobile money.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

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

	"github.com/joho/godotenv"

	"github.com/opensource-finance/shikra/internal/alerts"
	"github.com/opensource-finance/shikra/internal/api"
	"github.com/opensource-finance/shikra/internal/bus"
	"github.com/opensource-finance/shikra/internal/cache"
	"github.com/opensource-finance/shikra/internal/domain"
	"github.com/opensource-finance/shikra/internal/engine"
	"github.com/opensource-finance/shikra/internal/history"
	"github.com/opensource-finance/shikra/internal/metrics"
	"github.com/opensource-finance/shikra/internal/repository"
	"github.com/opensource-finance/shikra/internal/screening"
	"github.com/opensource-finance/shikra/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load .env if present; real environment wins over file values
	godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("SHIKRA_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting shikra",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("SHIKRA_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize profile store and alert ledger
	store := history.NewStore(domain.SystemClock{}, cfg.History.MaxTransactionsPerUser)
	ledger := alerts.NewLedger(cfg.Alerts.MaxRetained)

	// Initialize Screening Engine
	screener, err := screening.NewEngine()
	if err != nil {
		slog.Error("failed to initialize screening engine", "error", err)
		os.Exit(1)
	}

	// Load screening rules from database (no hardcoded defaults - configure via API)
	if err := loadScreenRulesFromDatabase(ctx, repo, screener); err != nil {
		slog.Error("failed to load screening rules", "error", err)
		os.Exit(1)
	}
	slog.Info("screening engine initialized", "rules_count", screener.RulesCount())

	// Initialize Assessment Engine
	eng := engine.New(engine.Deps{
		Store:    store,
		Ledger:   ledger,
		Screener: screener,
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Logger:   logger,
	})
	slog.Info("assessment engine initialized")

	// Sample gauge metrics periodically
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.Collect(store.Size())
			}
		}
	}()

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("SHIKRA_ASYNC_WORKER") == "true" {
		asyncWorker = worker.New(busImpl, eng, logger)
		if err := asyncWorker.Start(ctx); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, eng, ledger, screener, repo, cacheImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("shikra is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("shikra shutdown complete")
}

// loadScreenRulesFromDatabase loads screening rules from the database into
// the engine. An empty database falls back to the built-in jurisdiction
// rule set; further rules are configured via POST /rules API.
func loadScreenRulesFromDatabase(ctx context.Context, repo domain.Repository, screener *screening.Engine) error {
	dbRules, err := repo.ListScreenRules(ctx)
	if err != nil {
		slog.Warn("failed to list screening rules from database", "error", err)
		dbRules = nil
	}

	if len(dbRules) > 0 {
		slog.Info("loading screening rules from database", "count", len(dbRules))
		return screener.LoadRules(dbRules)
	}

	slog.Info("no screening rules in database - loading defaults")
	return screener.LoadRules(screening.DefaultRules())
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  SHIKRA - Transaction Risk Scoring Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/v1/assess            - Assess a transaction")
	fmt.Println("    GET  /api/v1/assessments/{id}  - Get assessment by ID")
	fmt.Println("    GET  /api/v1/dashboard         - Fraud dashboard")
	fmt.Println("    GET  /api/v1/users/{id}/risk   - Per-user risk profile")
	fmt.Println("    GET  /api/v1/alerts            - Recent alerts")
	fmt.Println("    GET  /api/v1/rules             - List screening rules")
	fmt.Println("    POST /api/v1/rules             - Create a screening rule")
	fmt.Println("    POST /api/v1/rules/reload      - Hot-reload rules from database")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println("    GET  /metrics                  - Prometheus metrics")
	fmt.Println()
}
