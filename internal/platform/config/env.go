// Package config loads engine configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the process-level settings for the segledger daemon and CLI.
type Config struct {
	// Backend selects the state store implementation: memory, bbolt, or sqlite.
	Backend string `env:"SEGLEDGER_BACKEND" envDefault:"bbolt"`
	// StatePath is the on-disk location of the bbolt or sqlite state file.
	StatePath string `env:"SEGLEDGER_STATE_PATH" envDefault:"segledger.db"`
	// TokenSecret verifies caller bearer tokens. Empty disables token auth.
	TokenSecret string `env:"SEGLEDGER_TOKEN_SECRET"`
	// Token is a bearer token presented by CLI invocations. When set, the
	// caller identity is resolved from it instead of CallerOrg/CallerID.
	Token string `env:"SEGLEDGER_TOKEN"`
	// CallerOrg is the fallback caller org for local CLI invocations.
	CallerOrg string `env:"SEGLEDGER_CALLER_ORG"`
	// CallerID is the fallback caller id for local CLI invocations.
	CallerID string `env:"SEGLEDGER_CALLER_ID"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the engine configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
