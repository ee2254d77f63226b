package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/ringscope/internal/domain"
)

// runtimeConfig is the process configuration: the shared domain config plus
// settings only the binary cares about.
type runtimeConfig struct {
	*domain.Config

	AsyncWorker       bool
	WorkerTenants     []string
	WorkerConcurrency int
}

// loadConfig builds the configuration from tier defaults and RINGSCOPE_*
// environment variables. A .env file in the working directory is loaded first.
func loadConfig() (*runtimeConfig, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()
	if getEnv("RINGSCOPE_TIER", "") == string(domain.TierPro) {
		cfg = domain.ProConfig()
	}

	// Server
	cfg.Server.Host = getEnv("RINGSCOPE_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("RINGSCOPE_PORT", cfg.Server.Port)
	cfg.Server.MaxUploadBytes = int64(getEnvInt("RINGSCOPE_MAX_UPLOAD_BYTES", int(cfg.Server.MaxUploadBytes)))

	// Repository
	cfg.Repository.Driver = getEnv("RINGSCOPE_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = getEnv("RINGSCOPE_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("RINGSCOPE_POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = getEnvInt("RINGSCOPE_POSTGRES_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = getEnv("RINGSCOPE_POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("RINGSCOPE_POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("RINGSCOPE_POSTGRES_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("RINGSCOPE_POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)

	// Cache
	cfg.Cache.Type = getEnv("RINGSCOPE_CACHE_TYPE", cfg.Cache.Type)
	cfg.Cache.ReportTTL = getEnvDuration("RINGSCOPE_REPORT_TTL", cfg.Cache.ReportTTL)
	cfg.Cache.RedisAddr = getEnv("RINGSCOPE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("RINGSCOPE_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("RINGSCOPE_REDIS_DB", cfg.Cache.RedisDB)

	// Event bus
	cfg.EventBus.Type = getEnv("RINGSCOPE_BUS_TYPE", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = getEnv("RINGSCOPE_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("RINGSCOPE_NATS_TOKEN", cfg.EventBus.NATSToken)
	cfg.EventBus.NATSQueueGroup = getEnv("RINGSCOPE_NATS_QUEUE_GROUP", cfg.EventBus.NATSQueueGroup)

	// Observability
	cfg.Logging.Level = getEnv("RINGSCOPE_LOG_LEVEL", cfg.Logging.Level)
	if getEnvBool("RINGSCOPE_DEBUG", false) {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Format = getEnv("RINGSCOPE_LOG_FORMAT", cfg.Logging.Format)
	cfg.Tracing.Enabled = getEnvBool("RINGSCOPE_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Metrics.Enabled = getEnvBool("RINGSCOPE_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Path = getEnv("RINGSCOPE_METRICS_PATH", cfg.Metrics.Path)

	// Analysis defaults
	a := &cfg.Analysis
	a.FanWindow = getEnvDuration("RINGSCOPE_FAN_WINDOW", a.FanWindow)
	a.FanMinCount = getEnvInt("RINGSCOPE_FAN_MIN_COUNT", a.FanMinCount)
	a.FanMinDistinct = getEnvInt("RINGSCOPE_FAN_MIN_DISTINCT", a.FanMinDistinct)
	a.CycleMaxLength = getEnvInt("RINGSCOPE_CYCLE_MAX_LENGTH", a.CycleMaxLength)
	a.MerchantVolumeThreshold = getEnvInt("RINGSCOPE_MERCHANT_VOLUME_THRESHOLD", a.MerchantVolumeThreshold)
	if patterns := getEnvList("RINGSCOPE_MERCHANT_PATTERNS"); patterns != nil {
		a.MerchantPatterns = patterns
	}
	a.FallbackEnabled = getEnvBool("RINGSCOPE_FALLBACK_ENABLED", a.FallbackEnabled)
	a.DetectorTimeout = getEnvDuration("RINGSCOPE_DETECTOR_TIMEOUT", a.DetectorTimeout)
	a.DetectorWorkers = getEnvInt("RINGSCOPE_DETECTOR_WORKERS", a.DetectorWorkers)

	if err := a.Validate(); err != nil {
		return nil, err
	}

	rc := &runtimeConfig{
		Config:            cfg,
		AsyncWorker:       getEnvBool("RINGSCOPE_ASYNC_WORKER", cfg.Tier == domain.TierPro),
		WorkerTenants:     getEnvList("RINGSCOPE_TENANTS"),
		WorkerConcurrency: getEnvInt("RINGSCOPE_WORKER_CONCURRENCY", 2),
	}
	return rc, nil
}

// logLevel maps a level name to a slog level.
func logLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		slog.Warn("ignoring invalid integer", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		slog.Warn("ignoring invalid boolean", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration", "key", key, "value", value)
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable. Returns nil when unset.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
