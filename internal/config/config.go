package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/koscakluka/ema-transcript/core/persistence/postgres"
)

type Config struct {
	Env     string
	Port    string
	Session SessionConfig
	Store   StoreConfig
	OTel    OTelConfig
}

type SessionConfig struct {
	CheckpointInterval time.Duration
	WriteTimeout       time.Duration
}

type StoreBackend string

const (
	StoreBackendMemory   StoreBackend = "memory"
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendRedis    StoreBackend = "redis"
	StoreBackendSupabase StoreBackend = "supabase"
)

type StoreConfig struct {
	Backend  StoreBackend
	Postgres postgres.Config
	Redis    RedisConfig
	Supabase SupabaseConfig
}

type RedisConfig struct {
	URL       string
	KeyPrefix string
	TTL       time.Duration
}

type SupabaseConfig struct {
	URL   string
	Key   string
	Table string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

// Load loads configuration from environment variables. In development
// variables are also read from a .env file if there is one.
func Load() (Config, error) {
	if getEnv("EMA_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:  getEnv("EMA_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		Session: SessionConfig{
			CheckpointInterval: getEnvDuration("CHECKPOINT_INTERVAL", 10*time.Second),
			WriteTimeout:       getEnvDuration("CHECKPOINT_WRITE_TIMEOUT", 15*time.Second),
		},
		Store: StoreConfig{
			Backend: StoreBackend(getEnv("STORE_BACKEND", string(StoreBackendMemory))),
			Postgres: postgres.Config{
				DSN:      getEnv("DATABASE_URL", ""),
				MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
				MinConns: getEnvInt32("DB_MIN_CONNS", 2),
			},
			Redis: RedisConfig{
				URL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
				KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ema:conversation:"),
				TTL:       getEnvDuration("REDIS_TTL", 0),
			},
			Supabase: SupabaseConfig{
				URL:   getEnv("SUPABASE_URL", ""),
				Key:   getEnv("SUPABASE_KEY", ""),
				Table: getEnv("SUPABASE_TABLE", "conversations"),
			},
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "ema-transcript"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
	}

	switch cfg.Store.Backend {
	case StoreBackendMemory, StoreBackendRedis:
	case StoreBackendPostgres:
		if cfg.Store.Postgres.DSN == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreBackendSupabase:
		if !cfg.Store.Supabase.Enabled() {
			return Config{}, fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required for the supabase store")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c SupabaseConfig) Enabled() bool {
	return c.URL != "" && c.Key != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
