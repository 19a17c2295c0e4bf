package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// devJWTSecret is only ever used outside production.
	devJWTSecret = "geniusgrid-insecure-development-secret"

	minProductionSecretLen = 32
)

// Config holds all configuration for the GeniusGrid server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Migrations MigrationsConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// AuthConfig configures the token codec, the password hasher and login throttling.
type AuthConfig struct {
	JWTSecret            string
	TokenTTL             time.Duration
	BcryptCost           int
	LoginAttemptsPerMin  int
	UsingInsecureDefault bool
}

type MigrationsConfig struct {
	Dir string
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Env == EnvProduction
}

// Load reads configuration from environment variables (after an optional
// .env file) and returns a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("GENIUSGRID_PORT", 4000),
			Env:            envString("GENIUSGRID_ENV", EnvDevelopment),
			AllowedOrigins: envList("FRONTEND_URL", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret:           os.Getenv("AUTH_JWT_SECRET"),
			TokenTTL:            envDuration("AUTH_TOKEN_TTL", 8*time.Hour),
			BcryptCost:          envInt("AUTH_BCRYPT_COST", bcrypt.DefaultCost),
			LoginAttemptsPerMin: envInt("AUTH_LOGIN_ATTEMPTS_PER_MIN", 10),
		},
		Migrations: MigrationsConfig{
			Dir: envString("MIGRATIONS_DIR", "migrations"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = devJWTSecret
		cfg.Auth.UsingInsecureDefault = true
		slog.Warn("AUTH_JWT_SECRET is not set, using insecure development secret", "env", cfg.Server.Env)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Env != EnvDevelopment && c.Server.Env != EnvProduction && c.Server.Env != "test" {
		return fmt.Errorf("GENIUSGRID_ENV must be one of development, test, production; got %q", c.Server.Env)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is required in production")
		}
		if len(c.Auth.JWTSecret) < minProductionSecretLen {
			return fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes in production", minProductionSecretLen)
		}
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL)
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("AUTH_BCRYPT_COST must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Auth.BcryptCost)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
