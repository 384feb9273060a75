package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Prefix is prepended to every variable name the console reads.
const Prefix = "KUROS_"

// LoadPrefixed parses environment variables into cfg with every name
// namespaced under prefix, so that API_BASE_URL is read from
// KUROS_API_BASE_URL when prefix is Prefix.
//
// Example:
//
//	type Config struct {
//	    APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:5000/api"`
//	    LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func LoadPrefixed(cfg any, prefix string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
