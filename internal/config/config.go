package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	PostgresConn      string
	HTTPAddr          string
	ReconcileInterval time.Duration
}

// Load reads configuration from the environment. Missing optional values
// fall back to defaults; POSTGRES_CONN is required.
func Load() (Config, error) {
	const op = "config.Load"

	cfg := Config{
		PostgresConn:      os.Getenv("POSTGRES_CONN"),
		HTTPAddr:          ":8080",
		ReconcileInterval: 10 * time.Minute,
	}

	if cfg.PostgresConn == "" {
		return Config{}, fmt.Errorf("%s: POSTGRES_CONN is not set", op)
	}

	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}

	if raw := os.Getenv("RECONCILE_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: invalid RECONCILE_INTERVAL: %w", op, err)
		}
		if interval <= 0 {
			return Config{}, fmt.Errorf("%s: RECONCILE_INTERVAL must be positive", op)
		}
		cfg.ReconcileInterval = interval
	}

	return cfg, nil
}
