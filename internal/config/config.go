// Package config loads LocalEMR settings from LOCALEMR_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Blob drivers.
const (
	BlobFilesystem = "fs"
	BlobMemory     = "memory"
	BlobS3         = "s3"
)

// Metrics backends.
const (
	MetricsNone       = "none"
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

type Config struct {
	Storage StorageConfig
	Blob    BlobConfig
	Log     LogConfig
	Metrics MetricsConfig
}

type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	// Timeout bounds every store operation issued by the CLI.
	Timeout time.Duration
}

type BlobConfig struct {
	Driver     string
	FSRoot     string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	// S3PathStyle is needed by most MinIO deployments.
	S3PathStyle bool
}

type LogConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type MetricsConfig struct {
	Backend string
}

// Load reads the environment, applies defaults and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			Driver:      strings.ToLower(getEnv("LOCALEMR_STORAGE_DRIVER", StorageSQLite)),
			SQLitePath:  getEnv("LOCALEMR_SQLITE_PATH", "localemr.db"),
			PostgresDSN: getEnv("LOCALEMR_POSTGRES_DSN", ""),
			Timeout:     getEnvDuration("LOCALEMR_STORE_TIMEOUT", 10*time.Second),
		},
		Blob: BlobConfig{
			Driver:      strings.ToLower(getEnv("LOCALEMR_BLOB_DRIVER", BlobFilesystem)),
			FSRoot:      getEnv("LOCALEMR_BLOB_FS_ROOT", "./backups"),
			S3Bucket:    getEnv("LOCALEMR_BLOB_S3_BUCKET", ""),
			S3Region:    getEnv("LOCALEMR_BLOB_S3_REGION", "us-east-1"),
			S3Endpoint:  getEnv("LOCALEMR_BLOB_S3_ENDPOINT", ""),
			S3PathStyle: getEnvBool("LOCALEMR_BLOB_S3_PATH_STYLE", false),
		},
		Log: LogConfig{
			Level:      getEnv("LOCALEMR_LOG_LEVEL", "warn"),
			Format:     getEnv("LOCALEMR_LOG_FORMAT", "console"),
			OutputPath: getEnv("LOCALEMR_LOG_OUTPUT", "stderr"),
		},
		Metrics: MetricsConfig{
			Backend: strings.ToLower(getEnv("LOCALEMR_METRICS", MetricsNone)),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	switch cfg.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			errs = append(errs, "LOCALEMR_POSTGRES_DSN is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown LOCALEMR_STORAGE_DRIVER %q (memory|sqlite|postgres)", cfg.Storage.Driver))
	}
	if cfg.Storage.Timeout <= 0 {
		errs = append(errs, "LOCALEMR_STORE_TIMEOUT must be positive")
	}

	switch cfg.Blob.Driver {
	case BlobFilesystem, BlobMemory:
	case BlobS3:
		if cfg.Blob.S3Bucket == "" {
			errs = append(errs, "LOCALEMR_BLOB_S3_BUCKET is required for the s3 driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown LOCALEMR_BLOB_DRIVER %q (fs|memory|s3)", cfg.Blob.Driver))
	}

	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOCALEMR_LOG_LEVEL %q", cfg.Log.Level))
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("invalid LOCALEMR_LOG_FORMAT %q (json|console)", cfg.Log.Format))
	}

	switch cfg.Metrics.Backend {
	case MetricsNone, MetricsExpvar, MetricsPrometheus:
	default:
		errs = append(errs, fmt.Sprintf("unknown LOCALEMR_METRICS %q (none|expvar|prometheus)", cfg.Metrics.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}
