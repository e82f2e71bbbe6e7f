package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/hearth/pkg/observability"
)

// Sequence counter backends
const (
	SequenceBackendPostgres = "postgres"
	SequenceBackendRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Guard         GuardConfig
	Invitations   InvitationConfig
	Catalog       CatalogConfig
	Sequence      SequenceConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL           string
	MaxConns      int
	MinConns      int
	Timeout       time.Duration
	MaxLifetime   time.Duration
	MaxIdleTime   time.Duration
	RunMigrations bool
}

// RedisConfig holds Redis settings. An empty URL disables Redis.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// GuardConfig holds the authorization decision cache settings
type GuardConfig struct {
	CacheSize int
	// CacheTTL is 0 (off) by default. Invalidation is process local, so a
	// replicated deployment serves revoked memberships for up to CacheTTL.
	CacheTTL time.Duration
}

// InvitationConfig holds invitation lifecycle settings
type InvitationConfig struct {
	DefaultTTL       time.Duration
	MaxTTL           time.Duration
	SweepSchedule    string
	SweepConcurrency int
	PurgeSchedule    string
	PurgeAfter       time.Duration
	RateLimit        int
	RateWindow       time.Duration
}

// CatalogConfig holds the role catalog override file settings
type CatalogConfig struct {
	Path  string
	Watch bool
}

// SequenceConfig selects the counter backend
type SequenceConfig struct {
	Backend string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Guard:         loadGuardConfig(),
		Invitations:   loadInvitationConfig(),
		Catalog:       loadCatalogConfig(),
		Sequence:      SequenceConfig{Backend: strings.ToLower(getEnv("HEARTH_SEQUENCE_BACKEND", SequenceBackendPostgres))},
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HEARTH_HOST", "0.0.0.0"),
		Port:            getEnv("HEARTH_PORT", "8080"),
		ReadTimeout:     getEnvDuration("HEARTH_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("HEARTH_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("HEARTH_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("HEARTH_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("HEARTH_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("HEARTH_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:           getEnv("HEARTH_DATABASE_URL", ""),
		MaxConns:      getEnvInt("HEARTH_DATABASE_MAX_CONNS", 25),
		MinConns:      getEnvInt("HEARTH_DATABASE_MIN_CONNS", 5),
		Timeout:       getEnvDuration("HEARTH_DATABASE_TIMEOUT", 5*time.Second),
		MaxLifetime:   getEnvDuration("HEARTH_DATABASE_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime:   getEnvDuration("HEARTH_DATABASE_MAX_IDLE_TIME", 5*time.Minute),
		RunMigrations: getEnvBool("HEARTH_DATABASE_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("HEARTH_REDIS_URL", ""),
		Password:   getEnv("HEARTH_REDIS_PASSWORD", ""),
		DB:         getEnvInt("HEARTH_REDIS_DB", 0),
		MaxRetries: getEnvInt("HEARTH_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("HEARTH_REDIS_POOL_SIZE", 10),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("HEARTH_JWT_SECRET", ""),
		JWTIssuer: getEnv("HEARTH_JWT_ISSUER", "hearth"),
	}
}

func loadGuardConfig() GuardConfig {
	return GuardConfig{
		CacheSize: getEnvInt("HEARTH_GUARD_CACHE_SIZE", 10000),
		CacheTTL:  getEnvDuration("HEARTH_GUARD_CACHE_TTL", 0),
	}
}

func loadInvitationConfig() InvitationConfig {
	return InvitationConfig{
		DefaultTTL:       getEnvDuration("HEARTH_INVITATION_TTL", 7*24*time.Hour),
		MaxTTL:           getEnvDuration("HEARTH_INVITATION_MAX_TTL", 30*24*time.Hour),
		SweepSchedule:    getEnv("HEARTH_INVITATION_SWEEP_SCHEDULE", "@every 5m"),
		SweepConcurrency: getEnvInt("HEARTH_INVITATION_SWEEP_CONCURRENCY", 8),
		PurgeSchedule:    getEnv("HEARTH_INVITATION_PURGE_SCHEDULE", "@daily"),
		PurgeAfter:       getEnvDuration("HEARTH_INVITATION_PURGE_AFTER", 90*24*time.Hour),
		RateLimit:        getEnvInt("HEARTH_INVITATION_RATE_LIMIT", 10),
		RateWindow:       getEnvDuration("HEARTH_INVITATION_RATE_WINDOW", time.Minute),
	}
}

func loadCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Path:  getEnv("HEARTH_CATALOG_FILE", ""),
		Watch: getEnvBool("HEARTH_CATALOG_WATCH", true),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("HEARTH_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("HEARTH_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("HEARTH_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("HEARTH_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("HEARTH_OTEL_SERVICE_NAME", "hearth"),
		OTelServiceVersion: getEnv("HEARTH_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("HEARTH_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("HEARTH_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}

	switch c.Sequence.Backend {
	case SequenceBackendPostgres:
	case SequenceBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for the redis sequence backend")
		}
	default:
		return fmt.Errorf("invalid sequence backend: %s (must be postgres or redis)", c.Sequence.Backend)
	}

	if c.Invitations.DefaultTTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}
	if c.Invitations.MaxTTL < c.Invitations.DefaultTTL {
		return fmt.Errorf("invitation max TTL must not be lower than the default TTL")
	}
	if c.Invitations.SweepConcurrency <= 0 {
		return fmt.Errorf("invitation sweep concurrency must be positive")
	}
	if c.Invitations.SweepSchedule == "" {
		return fmt.Errorf("invitation sweep schedule is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
