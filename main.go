package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"crypto-trading-assistant/config"
	"crypto-trading-assistant/internal/ai"
	"crypto-trading-assistant/internal/apikeys"
	"crypto-trading-assistant/internal/database"
	"crypto-trading-assistant/internal/gateway"
	"crypto-trading-assistant/internal/logging"
	"crypto-trading-assistant/internal/market"
	"crypto-trading-assistant/internal/risk"
	"crypto-trading-assistant/internal/scheduler"
	"crypto-trading-assistant/internal/vault"
)

func main() {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx := context.Background()

	// Persistence: Postgres when reachable, in-memory otherwise. The
	// engine keeps running either way; recovery just loses durability.
	var settings scheduler.SettingsStore
	var ledger scheduler.Ledger
	db, err := database.NewDB(cfg.DatabaseConfig, logger)
	if err != nil {
		logger.Warn("Database unavailable, using in-memory persistence", "error", err)
		settings = database.NewMemorySettings()
		ledger = database.NewMemoryLedger()
	} else {
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal("Failed to run migrations", "error", err)
		}
		settings = db
		ledger = db
	}

	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		defer redisClient.Close()
	}
	outcomes := scheduler.NewOutcomeCache(redisClient, logger)

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Warn("Vault unavailable, credential lookups fall through", "error", err)
		vaultClient, _ = vault.NewClient(vault.Config{})
	}
	credentials := apikeys.NewService(vaultClient, settings, logger)

	gate := ai.NewGate(settings, credentials, logger)
	source := market.NewBinanceSource(cfg.MarketConfig)
	executionGateway := gateway.NewBinanceGateway(
		cfg.BinanceConfig.APIKey,
		cfg.BinanceConfig.SecretKey,
		cfg.BinanceConfig.TestNet,
		logger,
	)
	sizer := risk.NewSizer(cfg.SizerConfig)
	breaker := risk.NewBreaker(&cfg.BreakerConfig)

	sched := scheduler.New(scheduler.Deps{
		Source:   source,
		Gateway:  executionGateway,
		Ledger:   ledger,
		Settings: settings,
		Gate:     gate,
		Sizer:    sizer,
		Breaker:  breaker,
		Outcomes: outcomes,
		Logger:   logger,
	}, cfg.EngineConfig)

	if err := sched.Recover(ctx); err != nil {
		logger.Warn("Session recovery failed", "error", err)
	}

	logger.Info("Trading assistant started",
		"testnet", cfg.BinanceConfig.TestNet,
		"redis", cfg.RedisConfig.Enabled,
		"vault", cfg.VaultConfig.Enabled)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	// Stop timers without wiping persisted sessions so the next start
	// recovers them.
	sched.Shutdown()

	logger.Info("Shutdown complete")
}
