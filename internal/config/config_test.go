package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/equiptrack-client/internal/config"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "equiptrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	t.Setenv("EQUIPTRACK_CONFIG", "")
	t.Setenv("EQUIPTRACK_API_URL", "")
	t.Setenv("EQUIPTRACK_STORAGE", "")

	cfg, err := config.Load(config.WithDotEnv(false))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000/api", cfg.GetBaseURL())
	require.Equal(t, 30*time.Second, cfg.GetTimeout())
	require.Equal(t, 1, cfg.GetMaxRetries())
	require.Equal(t, time.Second, cfg.GetRetryDelay())
	require.Equal(t, 300*time.Second, cfg.GetRefreshHorizon())
	require.Equal(t, "memory", cfg.GetStorageDriver())
}

func TestFileValues(t *testing.T) {
	path := writeFile(t, `
http:
  base_url: https://equiptrack.example.com/api
  timeout: 5s
  max_retries: 0
  retry_delay: 250ms
auth:
  refresh_horizon: 1m
storage:
  driver: redis
  redis:
    addr: cache:6379
    db: 2
`)
	t.Setenv("EQUIPTRACK_CONFIG", path)
	t.Setenv("EQUIPTRACK_API_URL", "")
	t.Setenv("EQUIPTRACK_TIMEOUT", "")
	t.Setenv("EQUIPTRACK_STORAGE", "")

	cfg, err := config.Load(config.WithDotEnv(false))
	require.NoError(t, err)
	require.Equal(t, "https://equiptrack.example.com/api", cfg.GetBaseURL())
	require.Equal(t, 5*time.Second, cfg.GetTimeout())
	require.Equal(t, 0, cfg.GetMaxRetries())
	require.Equal(t, 250*time.Millisecond, cfg.GetRetryDelay())
	require.Equal(t, time.Minute, cfg.GetRefreshHorizon())
	require.Equal(t, "redis", cfg.GetStorageDriver())
	require.Equal(t, "cache:6379", cfg.GetRedisAddr())
	require.Equal(t, 2, cfg.GetRedisDB())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "http:\n  base_url: https://file.example.com/api\n  timeout: 5s\n")
	t.Setenv("EQUIPTRACK_API_URL", "https://env.example.com/api")
	t.Setenv("EQUIPTRACK_TIMEOUT", "not-a-duration")

	cfg, err := config.Load(config.WithDotEnv(false), config.WithFile(path))
	require.NoError(t, err)
	require.Equal(t, "https://env.example.com/api", cfg.GetBaseURL())
	// an unparsable env value falls through to the file
	require.Equal(t, 5*time.Second, cfg.GetTimeout())
}

func TestMissingFile(t *testing.T) {
	_, err := config.Load(config.WithDotEnv(false), config.WithFile(filepath.Join(t.TempDir(), "absent.yaml")))
	require.Error(t, err)
}
