package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAndEnvFallback(t *testing.T) {
	t.Setenv("GAME_CONFIG", "")
	t.Setenv("GAME_KCP_ADDR", "")
	t.Setenv("GAME_TICK_RATE", "50")
	t.Setenv("GAME_REDIS_URL", "redis:6379")
	t.Setenv("GAME_OTLP_ENDPOINT", "")
	t.Setenv("GAME_TRACE_SAMPLE_PERCENT", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.GetKCPAddr())
	assert.Equal(t, 50, cfg.Server.GetTickRate())
	assert.Equal(t, 60*time.Second, cfg.Server.GetAutosaveInterval())
	assert.Equal(t, 256, cfg.Sync.GetCompressAbove())
	assert.Equal(t, "", cfg.EventBus.GetURL())
	assert.Equal(t, "redis:6379", cfg.Cache.RedisURL)
	assert.True(t, cfg.Cache.WriteBehindEnabled)
	assert.Equal(t, "badger", cfg.Storage.GetDriver())
	assert.Equal(t, "", cfg.Telemetry.GetEndpoint())
	assert.Equal(t, 1.0, cfg.Telemetry.GetSampleRatio())
}

func TestLoadYAMLOverridesEnv(t *testing.T) {
	t.Setenv("GAME_KCP_ADDR", ":9999")
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  kcp_addr: ":7000"
  view_radius: 2
sync:
  compress_above: -1
cache:
  write_behind_enabled: false
  default_ttl: 30s
storage:
  driver: mariadb
  maria:
    host: db
eventbus:
  url: nats://localhost:4222
telemetry:
  otlp_endpoint: collector:4318
  sample_percent: 25
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.GetKCPAddr())
	assert.Equal(t, 2, cfg.Server.GetViewRadius())
	assert.Equal(t, -1, cfg.Sync.GetCompressAbove())
	assert.False(t, cfg.Cache.WriteBehindEnabled)
	assert.Equal(t, 30*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, "nats://localhost:4222", cfg.EventBus.GetURL())
	assert.Equal(t, "MULTIPART", cfg.EventBus.GetStream())
	assert.Equal(t, "mariadb", cfg.Storage.GetDriver())
	maria := cfg.Storage.GetMaria()
	assert.Equal(t, "db", maria.Host)
	assert.Equal(t, 3306, maria.Port)
	assert.Equal(t, "collector:4318", cfg.Telemetry.GetEndpoint())
	assert.Equal(t, 0.25, cfg.Telemetry.GetSampleRatio())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
