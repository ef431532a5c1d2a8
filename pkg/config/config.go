package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Knifucrab/mauro-zen-notes/pkg/database"
)

// Config holds the application configuration
type Config struct {
	Environment string
	ServerPort  int

	Database database.Config

	JWTSecret  string
	JWTIssuer  string
	TokenTTL   time.Duration
	BcryptCost int

	RedisURL              string
	RateLimitAuthRequests int
	RateLimitWindow       time.Duration

	CORSAllowedOrigins []string

	LogLevel     string
	LogFile      string
	LogMaxSizeMB int

	OTLPEndpoint    string
	OTLPInsecure    bool
	ServiceName     string
	BootstrapAdmin  string
	DebugErrors     bool
	ShutdownTimeout time.Duration
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("SERVER_PORT", 8080)

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "zennotes")
	v.SetDefault("DB_PASSWORD", "dev")
	v.SetDefault("DB_NAME", "zennotes")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_PATH", "zennotes.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "zen-notes")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 12)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RATE_LIMIT_AUTH_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")

	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("OTEL_SERVICE_NAME", "zen-notes")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "")
	v.SetDefault("DEBUG_ERRORS", false)
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")
}

// Load reads configuration from environment variables, optionally layered over the file named by CONFIG_FILE
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		ServerPort:  v.GetInt("SERVER_PORT"),
		Database: database.Config{
			Driver:          v.GetString("DB_DRIVER"),
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Database:        v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			Path:            v.GetString("DB_PATH"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		JWTSecret:             v.GetString("JWT_SECRET"),
		JWTIssuer:             v.GetString("JWT_ISSUER"),
		TokenTTL:              v.GetDuration("TOKEN_TTL"),
		BcryptCost:            v.GetInt("BCRYPT_COST"),
		RedisURL:              v.GetString("REDIS_URL"),
		RateLimitAuthRequests: v.GetInt("RATE_LIMIT_AUTH_REQUESTS"),
		RateLimitWindow:       v.GetDuration("RATE_LIMIT_WINDOW"),
		CORSAllowedOrigins:    parseCSV(v.GetString("CORS_ALLOWED_ORIGINS")),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFile:               v.GetString("LOG_FILE"),
		LogMaxSizeMB:          v.GetInt("LOG_MAX_SIZE_MB"),
		OTLPEndpoint:          v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:          v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		ServiceName:           v.GetString("OTEL_SERVICE_NAME"),
		BootstrapAdmin:        v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
		DebugErrors:           v.GetBool("DEBUG_ERRORS"),
		ShutdownTimeout:       v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid SERVER_PORT: %d", c.ServerPort))
	}
	if _, err := database.ParseDialect(c.Database.Driver); err != nil {
		errs = append(errs, fmt.Errorf("invalid DB_DRIVER: %w", err))
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters in production"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("invalid TOKEN_TTL: %s", c.TokenTTL))
	}
	if c.BcryptCost < 12 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("invalid BCRYPT_COST: %d (must be 12-31)", c.BcryptCost))
	}
	if c.RateLimitAuthRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_AUTH_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}

	return errors.Join(errs...)
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
