package src

import (
	"eventdash/src/model"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable read by LoadConfig
const EnvPrefix = "EVENTDASH"

type Config struct {
	LogConfig     model.LogConfig     `envconfig:"LOG"`
	APIConfig     model.APIConfig     `envconfig:"API"`
	PersistConfig model.PersistConfig `envconfig:"PERSIST"`
}

// LoadConfig reads EVENTDASH_* environment variables, e.g. EVENTDASH_API_URL
func LoadConfig() (*Config, error) {
	var config Config
	err := envconfig.Process(EnvPrefix, &config)
	if err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	return &config, nil
}
