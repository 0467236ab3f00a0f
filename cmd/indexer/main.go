package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"github.com/selivandex/crypto-index/internal/adapters/coingecko"
	"github.com/selivandex/crypto-index/internal/adapters/config"
	"github.com/selivandex/crypto-index/internal/adapters/database"
	redisAdapter "github.com/selivandex/crypto-index/internal/adapters/redis"
	"github.com/selivandex/crypto-index/internal/assets"
	"github.com/selivandex/crypto-index/internal/backfill"
	"github.com/selivandex/crypto-index/internal/health"
	"github.com/selivandex/crypto-index/internal/index"
	"github.com/selivandex/crypto-index/internal/marketdata"
	"github.com/selivandex/crypto-index/internal/portfolio"
	"github.com/selivandex/crypto-index/internal/returns"
	"github.com/selivandex/crypto-index/internal/riskmetrics"
	"github.com/selivandex/crypto-index/internal/workers"
	"github.com/selivandex/crypto-index/pkg/logger"
	"github.com/selivandex/crypto-index/pkg/worker"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// Run application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration and initialize logger
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Crypto Index Pipeline starting...",
		zap.String("index", cfg.Index.Name),
	)

	// Initialize core infrastructure
	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis is optional: without it, stages run unguarded and rely on the
	// store's unique constraints alone
	redisClient := initRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	provider := coingecko.NewClient(&cfg.Provider)

	// Assemble pipeline stages and schedule them
	group := buildPipeline(ctx, cfg, db, redisClient, provider)
	group.Start()

	// Start health server
	healthServer := startHealthServer(cfg, db)
	healthServer.SetReady(true)

	// Wait for shutdown signal
	<-ctx.Done()

	return performGracefulShutdown(group, healthServer)
}

// initConfig loads configuration and initializes logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initDatabase connects to PostgreSQL and applies pending migrations
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// initRedis initializes the cross-instance run lock client. Returns nil
// when no addresses are configured or the cluster is unreachable.
func initRedis(cfg *config.Config) *redisAdapter.Client {
	if len(cfg.Redis.Addrs) == 0 {
		logger.Info("redis not configured, stage locks disabled")
		return nil
	}

	client, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, stage locks disabled", zap.Error(err))
		return nil
	}
	return client
}

// buildPipeline wires repositories and engines and registers every stage
// with its configured interval
func buildPipeline(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redisAdapter.Client, provider coingecko.Provider) *worker.WorkerGroup {
	assetRepo := assets.NewRepository(db.DB())
	marketRepo := marketdata.NewRepository(db.DB())
	backfillRepo := backfill.NewRepository(db.DB())
	returnsRepo := returns.NewRepository(db.DB())
	riskRepo := riskmetrics.NewRepository(db.DB())
	indexRepo := index.NewRepository(db.DB())
	portfolioRepo := portfolio.NewRepository(db.DB())

	ingester := marketdata.NewIngester(&cfg.Provider, provider, assetRepo, marketRepo)
	enricher := assets.NewEnricher(assetRepo, provider)
	scheduler := backfill.NewScheduler(&cfg.Backfill, provider, backfillRepo, assetRepo, marketRepo)
	calculator := returns.NewCalculator(&cfg.Returns, marketRepo, returnsRepo)
	riskEngine := riskmetrics.NewEngine(&cfg.Risk, cfg.Index.Name, returnsRepo, riskRepo)
	indexEngine := index.NewEngine(&cfg.Index, indexRepo)
	portfolioEngine := portfolio.NewEngine(&cfg.Portfolio, &cfg.Index, indexRepo, portfolioRepo)

	group := worker.NewWorkerGroup(ctx)
	group.Add(workers.NewStageWorker("market_ingest", ingester, redisClient), cfg.Ingest.Interval)
	group.Add(workers.NewStageWorker("metadata_enrichment", enricher, redisClient), cfg.Ingest.Interval)
	group.Add(workers.NewStageWorker("history_backfill", scheduler, redisClient), cfg.Backfill.Interval)
	group.Add(workers.NewStageWorker("returns", calculator, redisClient), cfg.Returns.Interval)
	group.Add(workers.NewStageWorker("index", indexEngine, redisClient), cfg.Index.Interval)
	group.Add(workers.NewStageWorker("risk_metrics", riskEngine, redisClient), cfg.Risk.Interval)
	group.Add(workers.NewStageWorker("portfolio_volatility", portfolioEngine, redisClient), cfg.Portfolio.Interval)

	return group
}

// startHealthServer starts the K8s probe endpoint in the background
func startHealthServer(cfg *config.Config, db *database.DB) *health.Server {
	server := health.NewServer(cfg.HealthPort, db)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("health server failed", zap.Error(err))
		}
	}()

	return server
}

// performGracefulShutdown stops workers and the health server
func performGracefulShutdown(group *worker.WorkerGroup, healthServer *health.Server) error {
	logger.Info("shutting down...")

	healthServer.SetReady(false)
	group.Stop(30 * time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", zap.Error(err))
	}

	logger.Info("✅ shutdown complete")
	return nil
}
