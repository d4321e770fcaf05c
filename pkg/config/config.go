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

	// Decision ledger
	Ledger LedgerConfig

	// Calibration (weights/thresholds YAML)
	Calibration CalibrationConfig

	// Pillar evaluation
	Evaluation EvaluationConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string

	// Decision stream (websocket)
	StreamEnabled bool
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

// LedgerConfig selects the decision ledger backing store
type LedgerConfig struct {
	Backend  string        // memory | postgres
	CacheTTL time.Duration // latest-decision cache TTL (redis)
}

// CalibrationConfig points at the active calibration file
type CalibrationConfig struct {
	Path string
}

// EvaluationConfig holds pillar evaluation settings
type EvaluationConfig struct {
	Symbols        []string
	Schedule       string        // cron expression (seconds field included)
	PillarTimeout  time.Duration // per-pillar evaluator timeout
	EvaluatorURLs  map[string]string
	RequestsPerSec int // remote evaluator throttle
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "aegis_fusion"),
			User:            getEnv("DB_USER", "aegis_fusion"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Ledger: LedgerConfig{
			Backend:  getEnv("LEDGER_BACKEND", "memory"),
			CacheTTL: getEnvAsDuration("LEDGER_CACHE_TTL", "10m"),
		},

		Calibration: CalibrationConfig{
			Path: getEnv("CALIBRATION_PATH", "config/calibration/default.yaml"),
		},

		Evaluation: EvaluationConfig{
			Symbols:        getEnvAsList("EVAL_SYMBOLS"),
			Schedule:       getEnv("EVAL_SCHEDULE", "0 */15 * * * *"),
			PillarTimeout:  getEnvAsDuration("EVAL_PILLAR_TIMEOUT", "10s"),
			EvaluatorURLs:  getEvaluatorURLs(),
			RequestsPerSec: getEnvAsInt("EVAL_REQUESTS_PER_SEC", 10),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),

		StreamEnabled: getEnvAsBool("STREAM_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Ledger.Backend {
	case "memory":
	case "postgres":
		// Database URL is required for the postgres ledger
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when LEDGER_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND must be one of: memory, postgres")
	}

	if c.Evaluation.PillarTimeout <= 0 {
		return fmt.Errorf("EVAL_PILLAR_TIMEOUT must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
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
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEvaluatorURLs reads EVALUATOR_<PILLAR>_URL for every pillar
func getEvaluatorURLs() map[string]string {
	urls := make(map[string]string)
	for _, pillar := range []string{"trend", "momentum", "volatility", "liquidity", "sentiment", "regime"} {
		key := "EVALUATOR_" + strings.ToUpper(pillar) + "_URL"
		if v := os.Getenv(key); v != "" {
			urls[pillar] = v
		}
	}
	return urls
}
