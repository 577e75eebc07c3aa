// Package config loads server settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the engine server.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"ENGINE_ADDR" envDefault:":8080"`

	// DatabasePath is the SQLite file backing bets, seeds and controls.
	DatabasePath string `env:"ENGINE_DB_PATH" envDefault:"engine.db"`

	// ChainID is the default seed chain new bets draw from.
	ChainID string `env:"ENGINE_CHAIN_ID" envDefault:"main"`

	// AdminJWTSecret signs and verifies operator tokens. The admin
	// surface stays disabled while it is empty.
	AdminJWTSecret string `env:"ENGINE_ADMIN_JWT_SECRET"`

	// MaxProbes caps the nonce walk when a directive rejects the raw
	// outcome.
	MaxProbes int `env:"ENGINE_MAX_PROBES" envDefault:"25"`

	// RTP is the mines paytable return-to-player target.
	RTP float64 `env:"ENGINE_RTP" envDefault:"0.99"`

	// HouseEdgeFactor scales the limbo/crash multiplier curve.
	HouseEdgeFactor float64 `env:"ENGINE_HOUSE_EDGE_FACTOR" envDefault:"0.99"`

	ShutdownTimeout time.Duration `env:"ENGINE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxProbes <= 0 {
		return fmt.Errorf("ENGINE_MAX_PROBES must be positive, got %d", c.MaxProbes)
	}
	if c.RTP <= 0 || c.RTP > 1 {
		return fmt.Errorf("ENGINE_RTP must be in (0, 1], got %g", c.RTP)
	}
	if c.HouseEdgeFactor <= 0 || c.HouseEdgeFactor > 1 {
		return fmt.Errorf("ENGINE_HOUSE_EDGE_FACTOR must be in (0, 1], got %g", c.HouseEdgeFactor)
	}
	return nil
}

// AdminEnabled reports whether operator endpoints can be served.
func (c *Config) AdminEnabled() bool {
	return c.AdminJWTSecret != ""
}
