// Package config loads walsetctl configuration from a file, the environment
// and command-line flags.
//
// Precedence, highest first: flags bound by the caller, WALSETCTL_* environment
// variables, the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/hupe1980/walset/internal/compress"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "WALSETCTL"

// Backend names.
const (
	BackendNone  = ""
	BackendLocal = "local"
	BackendMinIO = "minio"
	BackendS3    = "s3"
)

// Config is the walsetctl configuration.
type Config struct {
	LogLevel    string            `mapstructure:"log_level" yaml:"log_level"`
	Output      string            `mapstructure:"output" yaml:"output"`
	Checkpoints CheckpointsConfig `mapstructure:"checkpoints" yaml:"checkpoints"`
}

// CheckpointsConfig selects and configures the checkpoint blob store.
type CheckpointsConfig struct {
	// Backend is one of local, minio, s3, or empty for no checkpoints.
	Backend     string `mapstructure:"backend" yaml:"backend"`
	Compression string `mapstructure:"compression" yaml:"compression"`

	// MaxConcurrent bounds in-flight blob operations; 0 is unbounded.
	MaxConcurrent int64 `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	// BytesPerSec bounds checkpoint transfer throughput; 0 is unlimited.
	BytesPerSec   int64 `mapstructure:"bytes_per_sec" yaml:"bytes_per_sec"`

	Local LocalConfig `mapstructure:"local" yaml:"local"`
	MinIO MinIOConfig `mapstructure:"minio" yaml:"minio"`
	S3    S3Config    `mapstructure:"s3" yaml:"s3"`
}

// LocalConfig configures a directory-backed store.
type LocalConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// MinIOConfig configures a MinIO store.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Secure    bool   `mapstructure:"secure" yaml:"secure"`
	Region    string `mapstructure:"region" yaml:"region"`
}

// S3Config configures an S3 store, optionally with a DynamoDB commit table
// guarding the CURRENT pointer.
type S3Config struct {
	Bucket        string `mapstructure:"bucket" yaml:"bucket"`
	Prefix        string `mapstructure:"prefix" yaml:"prefix"`
	Region        string `mapstructure:"region" yaml:"region"`
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint"`
	DynamoDBTable string `mapstructure:"dynamodb_table" yaml:"dynamodb_table"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// setDefaults registers every key so that AutomaticEnv can resolve nested
// keys during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("output", "table")

	v.SetDefault("checkpoints.backend", BackendNone)
	v.SetDefault("checkpoints.compression", compress.ZSTD.String())
	v.SetDefault("checkpoints.max_concurrent", 0)
	v.SetDefault("checkpoints.bytes_per_sec", 0)
	v.SetDefault("checkpoints.local.dir", "")

	v.SetDefault("checkpoints.minio.endpoint", "")
	v.SetDefault("checkpoints.minio.access_key", "")
	v.SetDefault("checkpoints.minio.secret_key", "")
	v.SetDefault("checkpoints.minio.bucket", "")
	v.SetDefault("checkpoints.minio.prefix", "")
	v.SetDefault("checkpoints.minio.secure", true)
	v.SetDefault("checkpoints.minio.region", "")

	v.SetDefault("checkpoints.s3.bucket", "")
	v.SetDefault("checkpoints.s3.prefix", "")
	v.SetDefault("checkpoints.s3.region", "")
	v.SetDefault("checkpoints.s3.endpoint", "")
	v.SetDefault("checkpoints.s3.dynamodb_table", "")
}

// Load reads the config file at path, if any, and unmarshals v into a
// validated Config. A missing file is an error only when path is set
// explicitly.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("walsetctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Validate checks that the selected backend is fully configured.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := compress.ParseType(c.Checkpoints.Compression); err != nil {
		return fmt.Errorf("checkpoints.compression: %w", err)
	}

	cp := c.Checkpoints
	if cp.MaxConcurrent < 0 || cp.BytesPerSec < 0 {
		return errors.New("checkpoints.max_concurrent and checkpoints.bytes_per_sec must not be negative")
	}
	switch cp.Backend {
	case BackendNone:
	case BackendLocal:
		if cp.Local.Dir == "" {
			return errors.New("checkpoints.local.dir is required for the local backend")
		}
	case BackendMinIO:
		if cp.MinIO.Endpoint == "" || cp.MinIO.Bucket == "" {
			return errors.New("checkpoints.minio.endpoint and checkpoints.minio.bucket are required for the minio backend")
		}
	case BackendS3:
		if cp.S3.Bucket == "" {
			return errors.New("checkpoints.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown checkpoints.backend %q (valid: local, minio, s3)", cp.Backend)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// CompressionType parses Checkpoints.Compression.
func (c *Config) CompressionType() compress.Type {
	t, _ := compress.ParseType(c.Checkpoints.Compression)
	return t
}
