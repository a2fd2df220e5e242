package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DevelopmentJWTSecret is the signing secret used when none is configured. It is
// only accepted in the development environment.
const DevelopmentJWTSecret = "supersecuresecret"

// EnvironmentDevelopment is the default APP_ENV.
const EnvironmentDevelopment = "development"

// Store drivers understood by the API.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	LogLevel           string
	StoreDriver        string
	DatabaseURL        string
	MongoURI           string
	MongoDatabase      string
	JWTSecret          string
	TokenIssuer        string
	TokenTTL           time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	CORSAllowedOrigins []string
}

// DefaultAPIConfig returns development defaults. They are overridden by the
// optional config file and then by environment variables.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		Environment:        EnvironmentDevelopment,
		Addr:               ":5000",
		LogLevel:           "info",
		StoreDriver:        StoreDriverPostgres,
		DatabaseURL:        "postgres://taskboard:taskboard@db:5432/taskboard?sslmode=disable",
		MongoURI:           "mongodb://localhost:27017",
		MongoDatabase:      "taskboard",
		JWTSecret:          DevelopmentJWTSecret,
		TokenIssuer:        "taskboard",
		TokenTTL:           24 * time.Hour,
		CORSAllowedOrigins: []string{"*"},
	}
}

// LoadAPIConfig constructs an APIConfig from .env, CONFIG_FILE and environment variables.
func LoadAPIConfig() (APIConfig, error) {
	if err := loadDotEnv(GetString("DOTENV_PATH", ".env")); err != nil {
		return APIConfig{}, err
	}
	base := DefaultAPIConfig()
	if path := strings.TrimSpace(GetString("CONFIG_FILE", "")); path != "" {
		if err := overlayFile(&base, path); err != nil {
			return APIConfig{}, err
		}
	}
	cfg := APIConfig{
		Environment:        GetString("APP_ENV", base.Environment),
		Addr:               GetString("API_ADDR", base.Addr),
		LogLevel:           GetString("LOG_LEVEL", base.LogLevel),
		StoreDriver:        strings.ToLower(strings.TrimSpace(GetString("STORE_DRIVER", base.StoreDriver))),
		DatabaseURL:        GetString("DATABASE_URL", base.DatabaseURL),
		MongoURI:           GetString("MONGO_URI", base.MongoURI),
		MongoDatabase:      GetString("MONGO_DATABASE", base.MongoDatabase),
		JWTSecret:          GetString("JWT_SECRET", base.JWTSecret),
		TokenIssuer:        GetString("TOKEN_ISSUER", base.TokenIssuer),
		TokenTTL:           GetDuration("TOKEN_TTL", base.TokenTTL),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", base.RateLimitRedisAddr),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", base.RateLimitRedisPass),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", base.RateLimitRedisDB),
		CORSAllowedOrigins: GetList("CORS_ALLOWED_ORIGINS", base.CORSAllowedOrigins),
	}
	if hours := GetInt("TOKEN_TTL_HOURS", 0); hours > 0 {
		cfg.TokenTTL = time.Duration(hours) * time.Hour
	}
	if err := cfg.Validate(); err != nil {
		return APIConfig{}, err
	}
	return cfg, nil
}

// Validate reports configuration the API cannot start with.
func (c APIConfig) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET must not be empty")
	}
	if c.JWTSecret == DevelopmentJWTSecret && !strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentDevelopment) {
		return fmt.Errorf("config: JWT_SECRET must be set when APP_ENV is %q", c.Environment)
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: token ttl must be positive")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("config: DATABASE_URL required for postgres store")
		}
	case StoreDriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" || strings.TrimSpace(c.MongoDatabase) == "" {
			return errors.New("config: MONGO_URI and MONGO_DATABASE required for mongo store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("config: unsupported store driver %q", c.StoreDriver)
	}
	return nil
}
