package model

import "time"

// ----------------------------------------------------
// ================ Config ================

// LogConfig holds logger configuration
type LogConfig struct {
	Level      string `envconfig:"LEVEL" default:"info"`
	Format     string `envconfig:"FORMAT" default:"console"`
	Output     string `envconfig:"OUTPUT" default:"stderr"`
	FilePath   string `envconfig:"FILE_PATH" default:"logs/eventdash.log"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"rfc3339"`
}

// APIConfig holds the remote backend settings
type APIConfig struct {
	BaseURL   string        `envconfig:"URL"`
	Timeout   time.Duration `envconfig:"TIMEOUT"`
	UserAgent string        `envconfig:"USER_AGENT"`
}

// PersistConfig selects where the auth token is persisted between runs.
// Unset fields fall back to config.yaml and then to built-in defaults.
type PersistConfig struct {
	Backend    string        `envconfig:"BACKEND"` // memory, file, redis, sqlite
	Namespace  string        `envconfig:"NAMESPACE"`
	Dir        string        `envconfig:"DIR"`
	RedisURL   string        `envconfig:"REDIS_URL"`
	RedisTTL   time.Duration `envconfig:"REDIS_TTL"`
	SQLitePath string        `envconfig:"SQLITE_PATH"`
}
