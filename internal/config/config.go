package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds process settings loaded from environment variables. Game
// setup lives in a Setup file.
type Config struct {
	DatabaseURL       string        `env:"DATABASE_URL"`
	RedisURL          string        `env:"REDIS_URL"`
	LiveTTL           time.Duration `env:"PARLEY_LIVE_TTL" envDefault:"24h"`
	InteractionDB     string        `env:"PARLEY_INTERACTION_DB" envDefault:"parley-interactions.db"`
	InteractionLogDir string        `env:"PARLEY_INTERACTION_LOG_DIR"`
	CallTimeout       time.Duration `env:"PARLEY_CALL_TIMEOUT" envDefault:"60s"`
	MaxAttempts       int           `env:"PARLEY_MAX_ATTEMPTS" envDefault:"3"`
	SpectatorAddr     string        `env:"PARLEY_SPECTATOR_ADDR"`
	SpectatorSecret   string        `env:"PARLEY_SPECTATOR_SECRET" envDefault:"dev-secret-change-me"`
	OTelEndpoint      string        `env:"PARLEY_OTEL_ENDPOINT"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("PARLEY_CALL_TIMEOUT must be positive, got %s", cfg.CallTimeout)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("PARLEY_MAX_ATTEMPTS must be at least 1, got %d", cfg.MaxAttempts)
	}
	return &cfg, nil
}
