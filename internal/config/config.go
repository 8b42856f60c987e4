package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the monetization service.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Geo        GeoConfig
	Stats      StatsConfig
	Ledger     LedgerConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ClickHouseConfig configures the optional analytics event archive.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	User     string
	Password string
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled   bool
	RPS       float64
	Burst     int
	MgmtRPS   float64
	MgmtBurst int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GeoConfig configures GeoIP enrichment of affiliate clicks.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
}

// StatsConfig controls the affiliate stats aggregator.
type StatsConfig struct {
	// DefaultWindowDays is the trailing window used when the caller
	// does not supply one.
	DefaultWindowDays int
	// CacheTTL is how long a computed summary is served from Redis.
	CacheTTL time.Duration
}

// LedgerConfig holds defaults for sponsored placements.
type LedgerConfig struct {
	// DefaultCostPerImpression / DefaultCostPerClick are dollar amounts
	// applied when a sponsored content create omits them.
	DefaultCostPerImpression float64
	DefaultCostPerClick      float64
	// DefaultListingDays is the featured listing duration fallback.
	DefaultListingDays int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("MONETIZE_HTTP_ADDR", ":8080"),
			Env:             getEnv("MONETIZE_ENV", "development"),
			ShutdownTimeout: getDurationEnv("MONETIZE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("MONETIZE_DB_HOST", "localhost"),
			Port:     getIntEnv("MONETIZE_DB_PORT", 5432),
			User:     getEnv("MONETIZE_DB_USER", "monetize"),
			Password: getEnv("MONETIZE_DB_PASSWORD", "monetize_secret"),
			DBName:   getEnv("MONETIZE_DB_NAME", "monetize"),
			SSLMode:  getEnv("MONETIZE_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("MONETIZE_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("MONETIZE_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("MONETIZE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("MONETIZE_REDIS_PASSWORD", ""),
			DB:       getIntEnv("MONETIZE_REDIS_DB", 0),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("MONETIZE_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("MONETIZE_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("MONETIZE_CLICKHOUSE_DB", "monetize"),
			User:     getEnv("MONETIZE_CLICKHOUSE_USER", "default"),
			Password: getEnv("MONETIZE_CLICKHOUSE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("MONETIZE_AUTH_ENABLED", true),
			MasterKey: getEnv("MONETIZE_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("MONETIZE_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/affiliate/click", "/ads/impression", "/ads/click"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getBoolEnv("MONETIZE_RATE_LIMIT_ENABLED", true),
			RPS:       getFloatEnv("MONETIZE_RATE_LIMIT_RPS", 1000),
			Burst:     getIntEnv("MONETIZE_RATE_LIMIT_BURST", 100),
			MgmtRPS:   getFloatEnv("MONETIZE_RATE_LIMIT_MGMT_RPS", 100),
			MgmtBurst: getIntEnv("MONETIZE_RATE_LIMIT_MGMT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("MONETIZE_LOG_LEVEL", "info"),
			Format: getEnv("MONETIZE_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("MONETIZE_METRICS_ENABLED", true),
			Path:    getEnv("MONETIZE_METRICS_PATH", "/metrics"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("MONETIZE_GEO_ENABLED", false),
			DatabasePath: getEnv("MONETIZE_GEO_DB_PATH", "/app/data/GeoLite2-City.mmdb"),
		},
		Stats: StatsConfig{
			DefaultWindowDays: getIntEnv("MONETIZE_STATS_DEFAULT_WINDOW_DAYS", 30),
			CacheTTL:          getDurationEnv("MONETIZE_STATS_CACHE_TTL", 60*time.Second),
		},
		Ledger: LedgerConfig{
			DefaultCostPerImpression: getFloatEnv("MONETIZE_LEDGER_DEFAULT_CPI", 0.01),
			DefaultCostPerClick:      getFloatEnv("MONETIZE_LEDGER_DEFAULT_CPC", 0.50),
			DefaultListingDays:       getIntEnv("MONETIZE_LEDGER_DEFAULT_LISTING_DAYS", 7),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("MONETIZE_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Stats.DefaultWindowDays < 1 {
		return fmt.Errorf("MONETIZE_STATS_DEFAULT_WINDOW_DAYS must be >= 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
