package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// fileConfig mirrors APIConfig for TOML decoding. Empty values keep the defaults.
type fileConfig struct {
	Environment string `toml:"environment"`
	Addr        string `toml:"addr"`
	LogLevel    string `toml:"log_level"`
	Store       struct {
		Driver        string `toml:"driver"`
		DatabaseURL   string `toml:"database_url"`
		MongoURI      string `toml:"mongo_uri"`
		MongoDatabase string `toml:"mongo_database"`
	} `toml:"store"`
	Auth struct {
		JWTSecret string `toml:"jwt_secret"`
		Issuer    string `toml:"issuer"`
		TokenTTL  string `toml:"token_ttl"`
	} `toml:"auth"`
	RateLimit struct {
		RedisAddr     string `toml:"redis_addr"`
		RedisPassword string `toml:"redis_password"`
		RedisDB       int    `toml:"redis_db"`
	} `toml:"rate_limit"`
	CORS struct {
		AllowedOrigins []string `toml:"allowed_origins"`
	} `toml:"cors"`
}

// loadDotEnv populates the process environment from a dotenv file when one exists.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load dotenv %s: %w", path, err)
	}
	return nil
}

func overlayFile(cfg *APIConfig, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	setString(&cfg.Environment, fc.Environment)
	setString(&cfg.Addr, fc.Addr)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.StoreDriver, strings.ToLower(fc.Store.Driver))
	setString(&cfg.DatabaseURL, fc.Store.DatabaseURL)
	setString(&cfg.MongoURI, fc.Store.MongoURI)
	setString(&cfg.MongoDatabase, fc.Store.MongoDatabase)
	setString(&cfg.JWTSecret, fc.Auth.JWTSecret)
	setString(&cfg.TokenIssuer, fc.Auth.Issuer)
	if ttl := strings.TrimSpace(fc.Auth.TokenTTL); ttl != "" {
		parsed, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("config file %s: auth.token_ttl: %w", path, err)
		}
		cfg.TokenTTL = parsed
	}
	setString(&cfg.RateLimitRedisAddr, fc.RateLimit.RedisAddr)
	setString(&cfg.RateLimitRedisPass, fc.RateLimit.RedisPassword)
	if fc.RateLimit.RedisDB != 0 {
		cfg.RateLimitRedisDB = fc.RateLimit.RedisDB
	}
	if len(fc.CORS.AllowedOrigins) > 0 {
		cfg.CORSAllowedOrigins = fc.CORS.AllowedOrigins
	}
	return nil
}

func setString(dst *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*dst = trimmed
	}
}
