package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	StorageDriver       string        `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	Timezone            string        `mapstructure:"TIMEZONE"`
	MaterializeMaxDays  int           `mapstructure:"MATERIALIZE_MAX_DAYS"`
	MaterializeLockTTL  time.Duration `mapstructure:"MATERIALIZE_LOCK_TTL"`
	ConflictMaxRetries  int           `mapstructure:"CONFLICT_MAX_RETRIES"`
	ConflictBaseBackoff time.Duration `mapstructure:"CONFLICT_BASE_BACKOFF"`
	DevDirectorySize    int           `mapstructure:"DEV_DIRECTORY_SIZE"`
}

var envKeys = []string{
	"PORT", "ENV", "STORAGE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "TIMEZONE",
	"MATERIALIZE_MAX_DAYS", "MATERIALIZE_LOCK_TTL", "CONFLICT_MAX_RETRIES",
	"CONFLICT_BASE_BACKOFF", "DEV_DIRECTORY_SIZE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("MATERIALIZE_MAX_DAYS", 366)
	v.SetDefault("MATERIALIZE_LOCK_TTL", "2m")
	v.SetDefault("CONFLICT_MAX_RETRIES", 4)
	v.SetDefault("CONFLICT_BASE_BACKOFF", "15ms")
	v.SetDefault("DEV_DIRECTORY_SIZE", 50)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.StorageDriver == StorageDriverPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=%s", StorageDriverPostgres)
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: ENV=development without AUTH_SIGNING_KEY; unauthenticated requests act as admin.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE, the wall clock templates are written in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageDriverPostgres, StorageDriverMemory, c.StorageDriver)
	}
	if c.IsProduction() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
		}
		if c.StorageDriver == StorageDriverMemory {
			return fmt.Errorf("STORAGE_DRIVER=memory is not allowed in production")
		}
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters, got %d", len(c.AuthSigningKey))
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.MaterializeMaxDays <= 0 {
		return fmt.Errorf("MATERIALIZE_MAX_DAYS must be positive")
	}
	if c.ConflictMaxRetries < 0 {
		return fmt.Errorf("CONFLICT_MAX_RETRIES must not be negative")
	}
	return nil
}
