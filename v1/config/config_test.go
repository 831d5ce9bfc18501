package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
logger:
  level: debug
postgres:
  connection:
    host: db
    port: "5432"
  connection_details:
    max_open_conns: 10
redis:
  host: redis
  tls:
    enabled: true
minio:
  connection:
    bucket_name: media
jobs:
  docker_registry: registry.local
  poll_interval: 250ms
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("file only", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, sample))
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.Logger.Level)
		assert.Equal(t, "db", cfg.Postgres.Connection.Host)
		assert.Equal(t, 10, cfg.Postgres.ConnectionDetails.MaxOpenConns)
		assert.Equal(t, "redis", cfg.Redis.Host)
		assert.True(t, cfg.Redis.TLS.Enabled)
		assert.Equal(t, "media", cfg.Minio.Connection.BucketName)
		assert.Equal(t, "registry.local", cfg.Jobs.DockerRegistry)
		assert.Equal(t, 250*time.Millisecond, cfg.Jobs.PollInterval)
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("ANNOTATION_POSTGRES_HOST", "other-db")
		t.Setenv("ANNOTATION_REDIS_PORT", "6380")
		t.Setenv("ANNOTATION_REDIS_TLS_ENABLED", "false")
		t.Setenv("ANNOTATION_MINIO_MIN_PART_SIZE", "1024")
		t.Setenv("ANNOTATION_JOBS_STALL_TIMEOUT", "5m")
		t.Setenv("ANNOTATION_KUBE_NAMESPACE", "algorithms")

		cfg, err := Load(writeConfig(t, sample))
		require.NoError(t, err)

		assert.Equal(t, "other-db", cfg.Postgres.Connection.Host)
		assert.Equal(t, "5432", cfg.Postgres.Connection.Port)
		assert.Equal(t, 6380, cfg.Redis.Port)
		assert.False(t, cfg.Redis.TLS.Enabled)
		assert.Equal(t, uint64(1024), cfg.Minio.UploadConfig.MinPartSize)
		assert.Equal(t, 5*time.Minute, cfg.Jobs.StallTimeout)
		assert.Equal(t, "algorithms", cfg.Kube.NamespaceOrDefault())
	})

	t.Run("no file", func(t *testing.T) {
		t.Setenv("ANNOTATION_LOGGER_LEVEL", "warning")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "warning", cfg.Logger.Level)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := Load(writeConfig(t, ""))
		assert.NoError(t, err)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)

		_, err = Load(writeConfig(t, "postgres:\n  hots: db\n"))
		assert.Error(t, err)

		t.Setenv("ANNOTATION_REDIS_PORT", "not-a-number")
		_, err = Load("")
		assert.Error(t, err)
	})
}

func TestSplit(t *testing.T) {
	var cfg Config
	cfg.Jobs.MainHost = "example.com"
	cfg.Kube.Namespace = "algorithms"

	s := Split(cfg)
	assert.Equal(t, "example.com", s.Jobs.MainHost)
	assert.Equal(t, "algorithms", s.Kube.Namespace)
}
