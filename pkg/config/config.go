// Package config loads the daemon's process configuration from the
// environment, with an optional .env overlay for local development.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the approvebot process configuration.
type Config struct {
	HTTP   HTTP
	GitHub GitHub
	Engine Engine
	Debug  bool `env:"DEBUG" envDefault:"false"`
}

// Load reads configuration from the environment. Values from a .env file in
// the working directory fill in variables the environment leaves unset.
func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return config, nil
}
