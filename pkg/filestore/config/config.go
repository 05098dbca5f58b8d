package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Catalog and storage kinds derived from CatalogURL and StorageURL
const (
	CatalogMemory   = "memory"
	CatalogPostgres = "postgres"
	CatalogSQLite   = "sqlite"
	CatalogRedis    = "redis"

	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
	StorageMinio  = "minio"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:              "8080",
		Environment:       "development",
		LogLevel:          "info",
		CatalogURL:        "memory",
		CatalogCacheSize:  0,
		CatalogCacheTTL:   5 * time.Minute,
		StorageURL:        "memory://",
		S3:                S3Config{Region: "us-east-1"},
		SweepInterval:     15 * time.Minute,
		SweepGracePeriod:  time.Hour,
		SweepConfirmDelay: 10 * time.Second,
		StreamIdleTimeout: time.Minute,
		MaxUploadBytes:    0,
	}
}

// ServerConfig represents configuration for the file service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	LogLevel    string // debug, info, warn, error

	// CatalogURL selects the metadata catalog: "memory", "postgres://...",
	// "sqlite:///path/to/db" (or "sqlite://:memory:"), "redis://host:port/db"
	CatalogURL string
	// CatalogCacheSize enables a record cache in front of the catalog when > 0
	CatalogCacheSize int
	CatalogCacheTTL  time.Duration

	// StorageURL selects the blob store: "memory://", "file:///path",
	// "s3://bucket", "minio://bucket"
	StorageURL string
	S3         S3Config

	SweepInterval time.Duration

	// SweepGracePeriod must exceed the longest upload: multipart object
	// stores date a blob from when its upload started
	SweepGracePeriod time.Duration

	// SweepConfirmDelay separates the two catalog checks made before an
	// unreferenced blob is deleted
	SweepConfirmDelay time.Duration

	// StreamIdleTimeout bounds the wait for each chunk of an upload or download
	StreamIdleTimeout time.Duration
	// MaxUploadBytes limits request bodies when > 0
	MaxUploadBytes int64

	// APIKeySHA256 enables API key auth when set (hex SHA-256 of the key)
	APIKeySHA256 string
}

// S3Config holds settings shared by the s3 and minio backends
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	CreateBucket    bool
	SSEAlgorithm    string
	SSEKMSKeyID     string
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := c.CatalogKind(); err != nil {
		return err
	}
	kind, err := c.StorageKind()
	if err != nil {
		return err
	}
	if kind == StorageFS && c.storagePath() == "" {
		return errors.New("filesystem path cannot be empty in STORAGE_URL")
	}
	if (kind == StorageS3 || kind == StorageMinio) && c.bucket() == "" {
		return fmt.Errorf("bucket is required in STORAGE_URL %q", c.StorageURL)
	}
	if kind == StorageMinio && c.S3.Endpoint == "" {
		return errors.New("S3_ENDPOINT is required for minio storage")
	}
	if c.CatalogCacheSize < 0 {
		return errors.New("catalog cache size cannot be negative")
	}
	if c.CatalogCacheSize > 0 && c.CatalogCacheTTL <= 0 {
		return errors.New("catalog cache TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.SweepGracePeriod <= 0 {
		return errors.New("sweep grace period must be positive")
	}
	if c.SweepConfirmDelay < 0 {
		return errors.New("sweep confirm delay cannot be negative")
	}
	if c.MaxUploadBytes < 0 {
		return errors.New("max upload bytes cannot be negative")
	}
	return nil
}

// CatalogKind classifies CatalogURL
func (c *ServerConfig) CatalogKind() (string, error) {
	u := c.CatalogURL
	switch {
	case u == "" || u == "memory" || u == "memory://":
		return CatalogMemory, nil
	case strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://"):
		return CatalogPostgres, nil
	case strings.HasPrefix(u, "sqlite://"):
		if strings.TrimPrefix(u, "sqlite://") == "" {
			return "", errors.New("sqlite path cannot be empty in CATALOG_URL")
		}
		return CatalogSQLite, nil
	case strings.HasPrefix(u, "redis://") || strings.HasPrefix(u, "rediss://"):
		return CatalogRedis, nil
	}
	return "", fmt.Errorf("unsupported CATALOG_URL format: %s (use 'memory', 'postgres://...', 'sqlite://...' or 'redis://...')", u)
}

// StorageKind classifies StorageURL
func (c *ServerConfig) StorageKind() (string, error) {
	u := c.StorageURL
	switch {
	case u == "" || u == "memory" || u == "memory://":
		return StorageMemory, nil
	case strings.HasPrefix(u, "file://"):
		return StorageFS, nil
	case strings.HasPrefix(u, "s3://"):
		return StorageS3, nil
	case strings.HasPrefix(u, "minio://"):
		return StorageMinio, nil
	}
	return "", fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', 's3://...' or 'minio://...')", u)
}

func (c *ServerConfig) sqlitePath() string {
	return strings.TrimPrefix(c.CatalogURL, "sqlite://")
}

// storagePath returns the directory of a file:// StorageURL
func (c *ServerConfig) storagePath() string {
	return strings.TrimPrefix(c.StorageURL, "file://")
}

// bucket returns the bucket of an s3:// or minio:// StorageURL
func (c *ServerConfig) bucket() string {
	u, err := url.Parse(c.StorageURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// storageRegion prefers a ?region= query parameter over S3.Region
func (c *ServerConfig) storageRegion() string {
	if u, err := url.Parse(c.StorageURL); err == nil {
		if region := u.Query().Get("region"); region != "" {
			return region
		}
	}
	return c.S3.Region
}
