package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Settlement engine
	Settlement SettlementConfig

	// Final price resolution
	Pricing PricingConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// SettlementConfig controls the settlement trigger and award thresholds
type SettlementConfig struct {
	Schedule             string  // cron expression with seconds field
	AllInThreshold       float64 // minimum budget share for the ALL_IN award
	TxRetries            int     // retries on serialization failure
	CacheSweepSchedule   string
	AwardsFile           string // optional YAML award policy
	StatsEnabled         bool
	NotificationsEnabled bool
}

// PricingConfig controls how final prices are resolved
type PricingConfig struct {
	CacheBackend string // memory, redis
	CacheTTL     time.Duration
	QuoteURL     string // optional external quote endpoint; empty disables it
	QuoteTimeout time.Duration
	QuoteRetries int
	QuoteBackoff time.Duration
	QuoteRate    float64 // requests per second
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "pickem"),
			User:            getEnv("DB_USER", "pickem"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Settlement: SettlementConfig{
			Schedule:             getEnv("SETTLEMENT_SCHEDULE", "0 */15 * * * *"),
			AllInThreshold:       getEnvAsFloat("SETTLEMENT_ALL_IN_THRESHOLD", 0.5),
			TxRetries:            getEnvAsInt("SETTLEMENT_TX_RETRIES", 3),
			CacheSweepSchedule:   getEnv("SETTLEMENT_CACHE_SWEEP_SCHEDULE", "0 */5 * * * *"),
			AwardsFile:           getEnv("SETTLEMENT_AWARDS_FILE", ""),
			StatsEnabled:         getEnvAsBool("SETTLEMENT_STATS_ENABLED", true),
			NotificationsEnabled: getEnvAsBool("SETTLEMENT_NOTIFICATIONS_ENABLED", true),
		},

		Pricing: PricingConfig{
			CacheBackend: strings.ToLower(getEnv("PRICE_CACHE_BACKEND", "memory")),
			CacheTTL:     getEnvAsDuration("PRICE_CACHE_TTL", "6h"),
			QuoteURL:     strings.TrimRight(getEnv("QUOTE_API_URL", ""), "/"),
			QuoteTimeout: getEnvAsDuration("QUOTE_API_TIMEOUT", "5s"),
			QuoteRetries: getEnvAsInt("QUOTE_API_RETRIES", 3),
			QuoteBackoff: getEnvAsDuration("QUOTE_API_BACKOFF", "250ms"),
			QuoteRate:    getEnvAsFloat("QUOTE_API_RATE", 5),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Settlement.AllInThreshold <= 0 || c.Settlement.AllInThreshold > 1 {
		return fmt.Errorf("SETTLEMENT_ALL_IN_THRESHOLD must be in (0, 1]")
	}

	if c.Pricing.CacheBackend != "memory" && c.Pricing.CacheBackend != "redis" {
		return fmt.Errorf("PRICE_CACHE_BACKEND must be one of: memory, redis")
	}

	if c.Pricing.CacheBackend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("PRICE_CACHE_BACKEND=redis requires REDIS_ENABLED=true")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
