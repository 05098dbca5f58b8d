package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfig is the environment variable mapping read by WithEnv
type EnvConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	CatalogURL       string        `env:"CATALOG_URL" env-default:"memory"`
	CatalogCacheSize int           `env:"CATALOG_CACHE_SIZE" env-default:"0"`
	CatalogCacheTTL  time.Duration `env:"CATALOG_CACHE_TTL" env-default:"5m"`

	StorageURL string `env:"STORAGE_URL" env-default:"memory://"`
	S3         S3Env

	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" env-default:"15m"`
	SweepGracePeriod  time.Duration `env:"SWEEP_GRACE_PERIOD" env-default:"1h"`
	SweepConfirmDelay time.Duration `env:"SWEEP_CONFIRM_DELAY" env-default:"10s"`

	StreamIdleTimeout time.Duration `env:"STREAM_IDLE_TIMEOUT" env-default:"1m"`
	MaxUploadBytes    int64         `env:"MAX_UPLOAD_BYTES" env-default:"0"`

	APIKeySHA256 string `env:"API_KEY_SHA256"`
}

// S3Env holds the S3/MinIO variables
type S3Env struct {
	Region          string `env:"S3_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	CreateBucket    bool   `env:"S3_CREATE_BUCKET" env-default:"false"`
	SSEAlgorithm    string `env:"S3_SSE_ALGORITHM"`
	SSEKMSKeyID     string `env:"S3_SSE_KMS_KEY_ID"`
}

// WithEnv applies configuration from environment variables.
//
// Server:
//
//	PORT, ENVIRONMENT, LOG_LEVEL
//
// Catalog:
//
//	CATALOG_URL - "memory" (default), "postgres://...", "sqlite:///path/db.sqlite", "redis://host:6379/0"
//	CATALOG_CACHE_SIZE, CATALOG_CACHE_TTL - record cache, disabled when size is 0
//
// Storage:
//
//	STORAGE_URL - "memory://" (default), "file:///path/to/data", "s3://bucket?region=us-east-1", "minio://bucket"
//	S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY, S3_USE_PATH_STYLE, S3_CREATE_BUCKET
//
// Sweep and streaming:
//
//	SWEEP_INTERVAL, SWEEP_GRACE_PERIOD, SWEEP_CONFIRM_DELAY,
//	STREAM_IDLE_TIMEOUT, MAX_UPLOAD_BYTES
//
// Auth:
//
//	API_KEY_SHA256
//
// Unset variables take their documented defaults, so options applied after
// WithEnv win over the environment.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env EnvConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		env.apply(c)
		return nil
	}
}

func (e EnvConfig) apply(c *ServerConfig) {
	c.Port = e.Port
	c.Environment = e.Environment
	c.LogLevel = e.LogLevel
	c.CatalogURL = e.CatalogURL
	c.CatalogCacheSize = e.CatalogCacheSize
	c.CatalogCacheTTL = e.CatalogCacheTTL
	c.StorageURL = e.StorageURL
	c.S3 = S3Config{
		Region:          e.S3.Region,
		Endpoint:        e.S3.Endpoint,
		AccessKeyID:     e.S3.AccessKeyID,
		SecretAccessKey: e.S3.SecretAccessKey,
		UsePathStyle:    e.S3.UsePathStyle,
		CreateBucket:    e.S3.CreateBucket,
		SSEAlgorithm:    e.S3.SSEAlgorithm,
		SSEKMSKeyID:     e.S3.SSEKMSKeyID,
	}
	c.SweepInterval = e.SweepInterval
	c.SweepGracePeriod = e.SweepGracePeriod
	c.SweepConfirmDelay = e.SweepConfirmDelay
	c.StreamIdleTimeout = e.StreamIdleTimeout
	c.MaxUploadBytes = e.MaxUploadBytes
	c.APIKeySHA256 = e.APIKeySHA256
}

// Usage returns a description of the environment variables read by WithEnv
func Usage() (string, error) {
	var env EnvConfig
	return cleanenv.GetDescription(&env, nil)
}
