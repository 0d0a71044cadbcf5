package config

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/kelseyhightower/envconfig"
)

// Prefix of the environment variables read by LoadFromEnv.
const envPrefix = "AQS"

type Config struct {
	AppEnv   string     `envconfig:"APP_ENV" default:"dev"`
	LogLevel slog.Level `envconfig:"LOG_LEVEL" default:"info"`

	// VMInsertURL is the Victoria Metrics insert API URL. Empty disables
	// the export.
	VMInsertURL   string `envconfig:"VM_INSERT_URL"`
	MetricPrefix  string `envconfig:"METRIC_PREFIX" default:"aqs"`
	Concurrency   int    `envconfig:"CONCURRENCY"`
	RecsPerInsert int    `envconfig:"RECS_PER_INSERT" default:"500"`
}

// LoadFromEnv reads AQS_* environment variables.
func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings and fills in the ones derived from the host.
func (c *Config) Validate() error {
	switch c.AppEnv {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", c.AppEnv)
	}
	if c.Concurrency == 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("invalid CONCURRENCY %d", c.Concurrency)
	}
	if c.RecsPerInsert < 1 {
		return fmt.Errorf("invalid RECS_PER_INSERT %d", c.RecsPerInsert)
	}
	return nil
}
