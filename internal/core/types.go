package core

import (
	"time"
)

// Config holds everything needed to assemble an App
type Config struct {
	API         APIConfig         `json:"api" yaml:"api"`
	Cache       CacheConfig       `json:"cache" yaml:"cache"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
}

// APIConfig configures the backend gateway
type APIConfig struct {
	BaseURL   string        `json:"base_url" yaml:"base_url"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"` // zero means no client timeout
	UserAgent string        `json:"user_agent" yaml:"user_agent"`
}

// CacheConfig tunes the query cache
type CacheConfig struct {
	Retention     time.Duration `json:"retention" yaml:"retention"`
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

// PersistenceConfig selects where the session token survives restarts
type PersistenceConfig struct {
	Backend    string        `json:"backend" yaml:"backend"` // memory, file, redis or sqlite
	Namespace  string        `json:"namespace" yaml:"namespace"`
	Dir        string        `json:"dir" yaml:"dir"`
	RedisURL   string        `json:"redis_url" yaml:"redis_url"`
	RedisTTL   time.Duration `json:"redis_ttl" yaml:"redis_ttl"`
	SQLitePath string        `json:"sqlite_path" yaml:"sqlite_path"`
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			UserAgent: "eventdash/1.0",
		},
		Cache: CacheConfig{
			Retention:     60 * time.Second,
			SweepInterval: 30 * time.Second,
		},
		Persistence: PersistenceConfig{
			Backend:    "file",
			Namespace:  "persist:auth",
			Dir:        "data",
			SQLitePath: "data/eventdash.db",
		},
	}
}
