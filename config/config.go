package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	HTTP     HTTPConfig
	Payroll  PayrollConfig
}

type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	Driver string
	Path   string
	URL    string
}

// RedisConfig enables the idempotency middleware when Addr is set.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

// KafkaConfig enables change events on Kafka when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type HTTPConfig struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type PayrollConfig struct {
	Workers int
}

// Load reads .env (if present), then the environment, then args as
// command-line flags. Later sources win.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	var err error

	if cfg.App.Port, err = getEnvInt("APP_PORT", 8080); err != nil {
		return nil, err
	}
	cfg.App.Env = getEnv("APP_ENV", "development")
	cfg.App.LogLevel = getEnv("LOG_LEVEL", "info")

	cfg.Database = DatabaseConfig{
		Driver: getEnv("DB_DRIVER", DriverSQLite),
		Path:   getEnv("DB_PATH", "./data/payroll.db"),
		URL:    getEnv("DATABASE_URL", ""),
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.IdempotencyTTL, err = time.ParseDuration(getEnv("IDEMPOTENCY_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
	}

	cfg.Kafka = KafkaConfig{
		Brokers: getEnvSlice("KAFKA_BROKERS"),
		Topic:   getEnv("KAFKA_TOPIC", "attendance.changed"),
	}

	cfg.HTTP.AllowedOrigins = getEnvSlice("CORS_ALLOWED_ORIGINS")
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}
	if cfg.HTTP.RateLimitRPS, err = strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "20"), 64); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	if cfg.HTTP.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", 40); err != nil {
		return nil, err
	}

	if cfg.Payroll.Workers, err = getEnvInt("PAYROLL_WORKERS", 4); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("payroll-engine", flag.ContinueOnError)
	fs.IntVar(&cfg.App.Port, "port", cfg.App.Port, "HTTP server port")
	fs.StringVar(&cfg.Database.Path, "db", cfg.Database.Path, "SQLite database path")
	fs.StringVar(&cfg.Database.Driver, "driver", cfg.Database.Driver, "storage driver: sqlite, postgres or memory")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (use sqlite, postgres or memory)", c.Database.Driver)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid APP_PORT %d", c.App.Port)
	}
	if c.Payroll.Workers <= 0 {
		return fmt.Errorf("PAYROLL_WORKERS must be positive, got %d", c.Payroll.Workers)
	}
	if c.HTTP.RateLimitRPS <= 0 || c.HTTP.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// NewLogger builds a development logger, or a JSON production logger when
// APP_ENV=production, at LOG_LEVEL.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	zc := zap.NewDevelopmentConfig()
	if c.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
