package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/walset/internal/compress"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walsetctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "table", cfg.Output)
	assert.Equal(t, BackendNone, cfg.Checkpoints.Backend)
	assert.Equal(t, compress.ZSTD, cfg.CompressionType())
	assert.True(t, cfg.Checkpoints.MinIO.Secure)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
output: json
checkpoints:
  backend: s3
  compression: lz4
  max_concurrent: 4
  bytes_per_sec: 1048576
  s3:
    bucket: manifests
    prefix: prod/db1
    region: eu-central-1
    dynamodb_table: walset-commits
`)

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, BackendS3, cfg.Checkpoints.Backend)
	assert.Equal(t, compress.LZ4, cfg.CompressionType())
	assert.Equal(t, int64(4), cfg.Checkpoints.MaxConcurrent)
	assert.Equal(t, int64(1048576), cfg.Checkpoints.BytesPerSec)
	assert.Equal(t, "manifests", cfg.Checkpoints.S3.Bucket)
	assert.Equal(t, "prod/db1", cfg.Checkpoints.S3.Prefix)
	assert.Equal(t, "eu-central-1", cfg.Checkpoints.S3.Region)
	assert.Equal(t, "walset-commits", cfg.Checkpoints.S3.DynamoDBTable)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
checkpoints:
  backend: local
  local:
    dir: /from/file
`)
	t.Setenv("WALSETCTL_CHECKPOINTS_LOCAL_DIR", "/from/env")
	t.Setenv("WALSETCTL_LOG_LEVEL", "error")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Checkpoints.Local.Dir)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{LogLevel: "info", Output: "table", Checkpoints: CheckpointsConfig{Compression: "zstd"}}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"no backend", func(*Config) {}, false},
		{"local ok", func(c *Config) { c.Checkpoints.Backend = BackendLocal; c.Checkpoints.Local.Dir = "/tmp/cp" }, false},
		{"local missing dir", func(c *Config) { c.Checkpoints.Backend = BackendLocal }, true},
		{"minio ok", func(c *Config) {
			c.Checkpoints.Backend = BackendMinIO
			c.Checkpoints.MinIO.Endpoint = "localhost:9000"
			c.Checkpoints.MinIO.Bucket = "b"
		}, false},
		{"minio missing bucket", func(c *Config) {
			c.Checkpoints.Backend = BackendMinIO
			c.Checkpoints.MinIO.Endpoint = "localhost:9000"
		}, true},
		{"s3 missing bucket", func(c *Config) { c.Checkpoints.Backend = BackendS3 }, true},
		{"unknown backend", func(c *Config) { c.Checkpoints.Backend = "gcs" }, true},
		{"bad compression", func(c *Config) { c.Checkpoints.Compression = "snappy" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"negative rate", func(c *Config) { c.Checkpoints.BytesPerSec = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
