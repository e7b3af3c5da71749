package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"eventdash/internal/core"
	"eventdash/src"
)

// ErrMissingBaseURL is returned when neither the environment nor the YAML
// file names the backend
var ErrMissingBaseURL = errors.New("backend base url is not configured (set EVENTDASH_API_URL or api.base_url)")

// YAMLConfig represents the structure of config.yaml
type YAMLConfig struct {
	API struct {
		BaseURL   string        `yaml:"base_url"`
		Timeout   time.Duration `yaml:"timeout"`
		UserAgent string        `yaml:"user_agent"`
	} `yaml:"api"`
	Cache struct {
		Retention     time.Duration `yaml:"retention"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"cache"`
	Persistence struct {
		Backend    string        `yaml:"backend"`
		Namespace  string        `yaml:"namespace"`
		Dir        string        `yaml:"dir"`
		RedisURL   string        `yaml:"redis_url"`
		RedisTTL   time.Duration `yaml:"redis_ttl"`
		SQLitePath string        `yaml:"sqlite_path"`
	} `yaml:"persistence"`
}

// LoadConfig loads configuration from config.yaml
func LoadConfig(filepath string) (*YAMLConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config YAMLConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	return &config, nil
}

// LoadOptional is LoadConfig that treats a missing file as empty
func LoadOptional(filepath string) (*YAMLConfig, error) {
	cfg, err := LoadConfig(filepath)
	if errors.Is(err, os.ErrNotExist) {
		return &YAMLConfig{}, nil
	}
	return cfg, err
}

// BuildCoreConfig layers built-in defaults, then YAML, then environment.
// Either source may be nil.
func BuildCoreConfig(yamlConfig *YAMLConfig, env *src.Config) (core.Config, error) {
	cfg := core.DefaultConfig()

	if yamlConfig != nil {
		setString(&cfg.API.BaseURL, yamlConfig.API.BaseURL)
		setDuration(&cfg.API.Timeout, yamlConfig.API.Timeout)
		setString(&cfg.API.UserAgent, yamlConfig.API.UserAgent)

		// a negative sweep interval disables the janitor and must survive
		if yamlConfig.Cache.Retention != 0 {
			cfg.Cache.Retention = yamlConfig.Cache.Retention
		}
		if yamlConfig.Cache.SweepInterval != 0 {
			cfg.Cache.SweepInterval = yamlConfig.Cache.SweepInterval
		}

		p := yamlConfig.Persistence
		setString(&cfg.Persistence.Backend, p.Backend)
		setString(&cfg.Persistence.Namespace, p.Namespace)
		setString(&cfg.Persistence.Dir, p.Dir)
		setString(&cfg.Persistence.RedisURL, p.RedisURL)
		setDuration(&cfg.Persistence.RedisTTL, p.RedisTTL)
		setString(&cfg.Persistence.SQLitePath, p.SQLitePath)
	}

	if env != nil {
		setString(&cfg.API.BaseURL, env.APIConfig.BaseURL)
		setDuration(&cfg.API.Timeout, env.APIConfig.Timeout)
		setString(&cfg.API.UserAgent, env.APIConfig.UserAgent)

		p := env.PersistConfig
		setString(&cfg.Persistence.Backend, p.Backend)
		setString(&cfg.Persistence.Namespace, p.Namespace)
		setString(&cfg.Persistence.Dir, p.Dir)
		setString(&cfg.Persistence.RedisURL, p.RedisURL)
		setDuration(&cfg.Persistence.RedisTTL, p.RedisTTL)
		setString(&cfg.Persistence.SQLitePath, p.SQLitePath)
	}

	if cfg.API.BaseURL == "" {
		return cfg, ErrMissingBaseURL
	}
	if cfg.API.Timeout < 0 {
		return cfg, fmt.Errorf("api timeout must not be negative: %s", cfg.API.Timeout)
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
