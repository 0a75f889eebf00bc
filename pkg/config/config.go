package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the Expander client and its
// optional supporting services (exporter, stores). Per-deployment values come
// from environment variables; a .env file is honored for local development.
type Config struct {
	ServiceName string
	Env         string
	LogLevel    string

	// Expander API
	BaseURL     string
	APIKey      string
	APISecret   string
	HTTPTimeout time.Duration
	RetryOn401  bool
	TokenSkew   time.Duration
	PageLimit   int

	// Credential resolution via AWS Secrets Manager (optional).
	// When SecretName is set, APIKey/APISecret are resolved from AWS at
	// startup instead of the environment.
	AWSRegion  string
	SecretName string
	CacheTTL   time.Duration

	// Outbound rate limiting
	RatePerSecond int
	RateBurst     int

	// Token/checkpoint store (optional)
	RedisAddr string
	RedisDB   int
	RedisPass string

	// Event sink (optional)
	DatabaseURL string

	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration

	// Event exporter
	NATSURL        string
	ExportSubject  string
	ExportStream   string
	ExportInterval time.Duration
	ExportWindow   time.Duration
}

// Load loads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:         GetEnv("SERVICE_NAME", "expander-go"),
		Env:                 GetEnv("ENV", "dev"),
		LogLevel:            GetEnv("LOG_LEVEL", "info"),
		BaseURL:             GetEnv("EXPANDER_BASE_URL", "https://expander.expanse.co"),
		APIKey:              GetEnv("EXPANDER_API_KEY", ""),
		APISecret:           GetEnv("EXPANDER_API_SECRET", ""),
		HTTPTimeout:         GetEnvDuration("EXPANDER_HTTP_TIMEOUT", 30*time.Second),
		RetryOn401:          GetEnvBool("EXPANDER_RETRY_ON_401", true),
		TokenSkew:           GetEnvDuration("EXPANDER_TOKEN_SKEW", 30*time.Second),
		PageLimit:           GetEnvInt("EXPANDER_PAGE_LIMIT", 100),
		AWSRegion:           GetEnv("AWS_REGION", "us-east-2"),
		SecretName:          GetEnv("EXPANDER_SECRET_NAME", ""),
		CacheTTL:            GetEnvDuration("CACHE_TTL", 24*time.Hour),
		RatePerSecond:       GetEnvInt("EXPANDER_RATE_PER_SECOND", 10),
		RateBurst:           GetEnvInt("EXPANDER_RATE_BURST", 20),
		RedisAddr:           GetEnv("REDIS_ADDR", ""),
		RedisDB:             GetEnvInt("REDIS_DB", 0),
		RedisPass:           GetEnv("REDIS_PASS", ""),
		DatabaseURL:         GetEnv("DATABASE_URL", ""),
		PGMaxConns:          GetEnvInt("PG_MAX_CONNS", 10),
		PGMinConns:          GetEnvInt("PG_MIN_CONNS", 2),
		PGMaxConnLifetime:   GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),
		NATSURL:             GetEnv("NATS_URL", "nats://localhost:4222"),
		ExportSubject:       GetEnv("EXPORT_SUBJECT", "evt.expander.event.v1"),
		ExportStream:        GetEnv("EXPORT_STREAM", "EXPANDER_EVENTS"),
		ExportInterval:      GetEnvDuration("EXPORT_INTERVAL", 15*time.Minute),
		ExportWindow:        GetEnvDuration("EXPORT_WINDOW", 24*time.Hour),
	}
}
