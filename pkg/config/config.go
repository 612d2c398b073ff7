package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Billing       BillingConfig
	Seed          SeedConfig
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
	CORSOrigins     []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	AutoMigrate bool
}

// RedisConfig holds the optional Redis used for distributed login rate limiting
type RedisConfig struct {
	URL string
}

// AuthConfig holds session token and login settings
type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	Issuer     string
	BcryptCost int
	LoginRPM   int
	LoginBurst int

	// OIDC single sign-on is enabled when OIDCIssuerURL is set
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	OIDCScopes       []string
}

// OIDCEnabled reports whether single sign-on is configured
func (a AuthConfig) OIDCEnabled() bool {
	return a.OIDCIssuerURL != ""
}

// BillingConfig holds subscription and webhook settings
type BillingConfig struct {
	WebhookSecret string
	DefaultPlan   string
	ExpirySpec    string
}

// SeedConfig holds catalog seeding settings
type SeedConfig struct {
	// CatalogPath overrides the embedded catalog when set
	CatalogPath        string
	SuperAdminEmail    string
	SuperAdminPassword string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from the environment, after applying a
// .env file when one is present. Variables already set win over the file.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("CG_HOST", "0.0.0.0"),
			Port:            getEnv("CG_PORT", "8080"),
			ReadTimeout:     getEnvDuration("CG_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CG_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CG_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CG_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodyBytes:    getEnvInt64("CG_MAX_BODY_BYTES", 1<<20),
			CORSOrigins:     getEnvList("CG_CORS_ORIGINS"),
			HealthPort:      getEnv("CG_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("CG_DATABASE_URL", ""),
			ReplicaURLs: getEnv("CG_DATABASE_REPLICA_URLS", ""),
			MaxConns:    getEnvInt("CG_DATABASE_MAX_CONNS", 20),
			MinConns:    getEnvInt("CG_DATABASE_MIN_CONNS", 2),
			Timeout:     getEnvDuration("CG_DATABASE_TIMEOUT", 5*time.Second),
			MaxLifetime: getEnvDuration("CG_DATABASE_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("CG_DATABASE_MAX_IDLE_TIME", 5*time.Minute),
			AutoMigrate: getEnvBool("CG_DATABASE_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL: getEnv("CG_REDIS_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("CG_JWT_SECRET", ""),
			TokenTTL:   getEnvDuration("CG_TOKEN_TTL", 12*time.Hour),
			Issuer:     getEnv("CG_TOKEN_ISSUER", "contractguard"),
			BcryptCost: getEnvInt("CG_BCRYPT_COST", 12),
			LoginRPM:   getEnvInt("CG_LOGIN_RATE_PER_MINUTE", 10),
			LoginBurst: getEnvInt("CG_LOGIN_RATE_BURST", 5),

			OIDCIssuerURL:    getEnv("CG_OIDC_ISSUER_URL", ""),
			OIDCClientID:     getEnv("CG_OIDC_CLIENT_ID", ""),
			OIDCClientSecret: getEnv("CG_OIDC_CLIENT_SECRET", ""),
			OIDCRedirectURL:  getEnv("CG_OIDC_REDIRECT_URL", ""),
			OIDCScopes:       getEnvListOr("CG_OIDC_SCOPES", []string{"email", "profile"}),
		},
		Billing: BillingConfig{
			WebhookSecret: getEnv("CG_BILLING_WEBHOOK_SECRET", ""),
			DefaultPlan:   getEnv("CG_BILLING_DEFAULT_PLAN", "Basic"),
			ExpirySpec:    getEnv("CG_BILLING_EXPIRY_SCHEDULE", "@every 1h"),
		},
		Seed: SeedConfig{
			CatalogPath:        getEnv("CG_SEED_CATALOG", ""),
			SuperAdminEmail:    getEnv("CG_SUPERADMIN_EMAIL", ""),
			SuperAdminPassword: getEnv("CG_SUPERADMIN_PASSWORD", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:           getEnv("CG_LOG_LEVEL", "info"),
			LogFormat:          getEnv("CG_LOG_FORMAT", "json"),
			MetricsEnabled:     getEnvBool("CG_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("CG_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("CG_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("CG_OTEL_SERVICE_NAME", "contractguard"),
			OTelServiceVersion: getEnv("CG_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("CG_OTEL_INSECURE", true),
			OTelSampleRatio:    getEnvFloat("CG_OTEL_SAMPLE_RATIO", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
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
		return fmt.Errorf("CG_DATABASE_URL is required")
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("CG_JWT_SECRET must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31")
	}
	if c.Auth.LoginRPM <= 0 {
		return fmt.Errorf("login rate must be positive")
	}
	if c.Auth.OIDCEnabled() {
		if c.Auth.OIDCClientID == "" {
			return fmt.Errorf("CG_OIDC_CLIENT_ID is required when OIDC is enabled")
		}
		if c.Auth.OIDCRedirectURL == "" {
			return fmt.Errorf("CG_OIDC_REDIRECT_URL is required when OIDC is enabled")
		}
	}

	if c.Billing.DefaultPlan == "" {
		return fmt.Errorf("default billing plan is required")
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

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health/metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
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

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvListOr(key string, defaultValue []string) []string {
	if list := getEnvList(key); len(list) > 0 {
		return list
	}
	return defaultValue
}
