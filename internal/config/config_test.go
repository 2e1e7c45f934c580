package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

store:
  backend: postgres
  database_url: "postgres://localhost/journeys"

redis:
  addr: "localhost:6379"
  lock_ttl_seconds: 45

profile:
  base_url: "https://host.example.com"
  timeout_seconds: 5

polling:
  expiry_sweep_seconds: 30
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, StoreBackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/journeys", cfg.Store.DatabaseURL)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 45*1_000_000_000, int(cfg.Redis.LockTTL().Nanoseconds()))

	assert.Equal(t, "https://host.example.com", cfg.Profile.BaseURL)
	assert.Equal(t, 30*1_000_000_000, int(cfg.Polling.ExpirySweepInterval().Nanoseconds()))
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, StoreBackendFile, cfg.Store.Backend)
	assert.Equal(t, "./data/journeys", cfg.Store.FileDir)
	assert.Equal(t, 30, cfg.Redis.LockTTLSecs)
	assert.Equal(t, 10, cfg.Profile.TimeoutSeconds)
	assert.Equal(t, 60, cfg.Polling.ExpirySweepSeconds)
}

func TestLoadFromEnvOverridesStoreBackend(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store:\n  backend: file\n"), 0o644))

	os.Setenv("STORE_BACKEND", "dynamo")
	os.Setenv("DYNAMO_TABLE", "journeys-table")
	defer func() {
		os.Unsetenv("STORE_BACKEND")
		os.Unsetenv("DYNAMO_TABLE")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, StoreBackendDynamo, cfg.Store.Backend)
	assert.Equal(t, "journeys-table", cfg.Store.DynamoTable)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
