package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	ClinicAPI ClinicAPIConfig
	Cookie    CookieConfig
	Session   SessionConfig
	Chat      ChatConfig

	Mongo MongoConfig
	Redis RedisConfig
}

type ClinicAPIConfig struct {
	BaseURL string        `env:"CLINIC_API_URL,     default=http://localhost:8081"`
	Timeout time.Duration `env:"CLINIC_API_TIMEOUT, default=10s"`
}

type CookieConfig struct {
	Secure       bool          `env:"COOKIE_SECURE,         default=false"`
	Domain       string        `env:"COOKIE_DOMAIN"`
	DeviceMaxAge time.Duration `env:"COOKIE_DEVICE_MAX_AGE, default=8760h"`
}

type SessionConfig struct {
	IdleTTL         time.Duration `env:"SESSION_IDLE_TTL,       default=2h"`
	SweepInterval   time.Duration `env:"SESSION_SWEEP_INTERVAL, default=1m"`
	EphemeralTTL    time.Duration `env:"SESSION_EPHEMERAL_TTL,  default=12h"`
	DurableTTL      time.Duration `env:"SESSION_DURABLE_TTL,    default=720h"`
	LoginRatePerMin float64       `env:"LOGIN_RATE_PER_MIN,     default=20"`
}

type ChatConfig struct {
	Workers int `env:"CHAT_WORKERS,       default=8"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=vetportal"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
	PoolSize int    `env:"REDIS_POOL_SIZE, default=20"`
}

// Production reports whether the portal runs with ENV=production.
func (c *Config) Production() bool { return c.Env == "production" }

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Chat.Workers <= 0 {
		return nil, fmt.Errorf("load config: CHAT_WORKERS must be positive, got %d", cfg.Chat.Workers)
	}
	return &cfg, nil
}
