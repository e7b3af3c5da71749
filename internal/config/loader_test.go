package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventdash/src"
	"eventdash/src/model"
)

const sampleYAML = `
api:
  base_url: https://yaml.example.com
  timeout: 15s
cache:
  retention: 2m
  sweep_interval: -1s
persistence:
  backend: sqlite
  sqlite_path: /tmp/dash.db
`

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeYAML(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "https://yaml.example.com", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Cache.Retention)
	assert.Equal(t, -time.Second, cfg.Cache.SweepInterval)
	assert.Equal(t, "sqlite", cfg.Persistence.Backend)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeYAML(t, "api: [unterminated"))
	assert.Error(t, err)

	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.API.BaseURL)
}

func TestBuildCoreConfigDefaults(t *testing.T) {
	_, err := BuildCoreConfig(nil, nil)
	assert.ErrorIs(t, err, ErrMissingBaseURL)

	env := &src.Config{APIConfig: model.APIConfig{BaseURL: "https://env.example.com"}}
	cfg, err := BuildCoreConfig(nil, env)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, "file", cfg.Persistence.Backend)
	assert.Equal(t, "persist:auth", cfg.Persistence.Namespace)
	assert.Equal(t, 60*time.Second, cfg.Cache.Retention)
}

func TestBuildCoreConfigLayering(t *testing.T) {
	y, err := LoadConfig(writeYAML(t, sampleYAML))
	require.NoError(t, err)
	env := &src.Config{
		APIConfig:     model.APIConfig{BaseURL: "https://env.example.com"},
		PersistConfig: model.PersistConfig{Backend: "redis", RedisURL: "redis://localhost:6379/0"},
	}

	cfg, err := BuildCoreConfig(y, env)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL, "environment wins")
	assert.Equal(t, 15*time.Second, cfg.API.Timeout, "yaml fills what env leaves unset")
	assert.Equal(t, "eventdash/1.0", cfg.API.UserAgent)
	assert.Equal(t, -time.Second, cfg.Cache.SweepInterval)
	assert.Equal(t, "redis", cfg.Persistence.Backend)
	assert.Equal(t, "/tmp/dash.db", cfg.Persistence.SQLitePath)
}
