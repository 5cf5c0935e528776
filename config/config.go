package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"crypto-trading-assistant/internal/database"
	"crypto-trading-assistant/internal/market"
	"crypto-trading-assistant/internal/risk"
	"crypto-trading-assistant/internal/scheduler"
	"crypto-trading-assistant/internal/vault"
)

type Config struct {
	LoggingConfig   LoggingConfig        `json:"logging"`
	DatabaseConfig  database.Config      `json:"database"`
	RedisConfig     RedisConfig          `json:"redis"`
	VaultConfig     vault.Config         `json:"vault"`
	BinanceConfig   BinanceConfig        `json:"binance"`
	MarketConfig    market.BinanceConfig `json:"market"`
	EngineConfig    scheduler.Config     `json:"engine"`
	SizerConfig     risk.SizerConfig     `json:"sizer"`
	BreakerConfig   risk.BreakerConfig   `json:"breaker"`
	SchedulerConfig SchedulerConfig      `json:"scheduler"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// RedisConfig holds Redis configuration for the outcome cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// BinanceConfig holds execution gateway credentials and mode
type BinanceConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	TestNet   bool   `json:"testnet"`
}

// SchedulerConfig holds session defaults applied to new sessions that
// leave fields unset
type SchedulerConfig struct {
	DefaultIntervalMs   int64 `json:"default_interval_ms"`
	DefaultMaxPositions int   `json:"default_max_positions"`
	DefaultLeverage     int   `json:"default_leverage"`
}

// Load reads config.json if present, then applies environment
// variable overrides. Environment takes precedence.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
// Provider AI keys are NOT read here: they resolve at call time
// through the credential store.
func applyEnvOverrides(cfg *Config) {
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultStr(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultStr(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultStr(cfg.DatabaseConfig.Database, "trading_assistant"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultStr(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultStr(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)

	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.TestNet = getEnvOrDefault("BINANCE_TESTNET", "false") == "true"

	cfg.MarketConfig.Testnet = cfg.BinanceConfig.TestNet
	cfg.MarketConfig.DepthLimit = getEnvIntOrDefault("MARKET_DEPTH_LIMIT", defaultInt(cfg.MarketConfig.DepthLimit, 20))
	cfg.MarketConfig.TradeLimit = getEnvIntOrDefault("MARKET_TRADE_LIMIT", defaultInt(cfg.MarketConfig.TradeLimit, 80))
	cfg.MarketConfig.CandleLimit = getEnvIntOrDefault("MARKET_CANDLE_LIMIT", defaultInt(cfg.MarketConfig.CandleLimit, 60))
	cfg.MarketConfig.Interval = getEnvOrDefault("MARKET_CANDLE_INTERVAL", defaultStr(cfg.MarketConfig.Interval, "1m"))

	cfg.EngineConfig.MinConfidence = getEnvFloatOrDefault("ENGINE_MIN_CONFIDENCE", defaultFloat(cfg.EngineConfig.MinConfidence, 0.45))
	cfg.EngineConfig.StopDistancePct = getEnvFloatOrDefault("ENGINE_STOP_DISTANCE_PCT", defaultFloat(cfg.EngineConfig.StopDistancePct, 0.02))
	cfg.EngineConfig.ScalpStopDistancePct = getEnvFloatOrDefault("ENGINE_SCALP_STOP_DISTANCE_PCT", defaultFloat(cfg.EngineConfig.ScalpStopDistancePct, 0.005))
	cfg.EngineConfig.DefaultTPMultiplier = getEnvFloatOrDefault("ENGINE_TP_MULTIPLIER", defaultFloat(cfg.EngineConfig.DefaultTPMultiplier, 2.0))

	cfg.SizerConfig.RiskPct = getEnvFloatOrDefault("SIZER_RISK_PCT", defaultFloat(cfg.SizerConfig.RiskPct, risk.DefaultRiskPct))
	cfg.SizerConfig.FallbackPct = getEnvFloatOrDefault("SIZER_FALLBACK_PCT", defaultFloat(cfg.SizerConfig.FallbackPct, risk.FallbackPct))
	cfg.SizerConfig.MaxAssetPct = getEnvFloatOrDefault("SIZER_MAX_ASSET_PCT", defaultFloat(cfg.SizerConfig.MaxAssetPct, risk.MaxAssetPct))

	cfg.BreakerConfig.Enabled = getEnvOrDefault("BREAKER_ENABLED", "true") == "true"
	cfg.BreakerConfig.MaxConsecutiveFailures = getEnvIntOrDefault("BREAKER_MAX_CONSECUTIVE_FAILURES", defaultInt(cfg.BreakerConfig.MaxConsecutiveFailures, 5))
	cfg.BreakerConfig.MaxOrdersPerMinute = getEnvIntOrDefault("BREAKER_MAX_ORDERS_PER_MINUTE", defaultInt(cfg.BreakerConfig.MaxOrdersPerMinute, 10))
	cfg.BreakerConfig.MaxOrdersPerDay = getEnvIntOrDefault("BREAKER_MAX_ORDERS_PER_DAY", defaultInt(cfg.BreakerConfig.MaxOrdersPerDay, 100))
	cfg.BreakerConfig.CooldownMinutes = getEnvIntOrDefault("BREAKER_COOLDOWN_MINUTES", defaultInt(cfg.BreakerConfig.CooldownMinutes, 30))

	cfg.SchedulerConfig.DefaultIntervalMs = int64(getEnvIntOrDefault("SCHEDULER_DEFAULT_INTERVAL_MS", defaultInt(int(cfg.SchedulerConfig.DefaultIntervalMs), 60000)))
	cfg.SchedulerConfig.DefaultMaxPositions = getEnvIntOrDefault("SCHEDULER_DEFAULT_MAX_POSITIONS", defaultInt(cfg.SchedulerConfig.DefaultMaxPositions, 5))
	cfg.SchedulerConfig.DefaultLeverage = getEnvIntOrDefault("SCHEDULER_DEFAULT_LEVERAGE", defaultInt(cfg.SchedulerConfig.DefaultLeverage, 3))
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func defaultStr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func defaultFloat(value, fallback float64) float64 {
	if value != 0 {
		return value
	}
	return fallback
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
