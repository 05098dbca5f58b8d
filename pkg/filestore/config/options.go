package config

import (
	"errors"
	"time"
)

// WithPort sets the HTTP port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return errors.New("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the runtime environment
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithLogLevel sets the log level
func WithLogLevel(level string) Option {
	return func(c *ServerConfig) error {
		c.LogLevel = level
		return nil
	}
}

// WithCatalogURL selects the metadata catalog
func WithCatalogURL(u string) Option {
	return func(c *ServerConfig) error {
		c.CatalogURL = u
		return nil
	}
}

// WithCatalogCache puts an LRU record cache in front of the catalog
func WithCatalogCache(size int, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		c.CatalogCacheSize = size
		c.CatalogCacheTTL = ttl
		return nil
	}
}

// WithStorageURL selects the blob store
func WithStorageURL(u string) Option {
	return func(c *ServerConfig) error {
		c.StorageURL = u
		return nil
	}
}

// WithS3 replaces the S3/MinIO connection settings
func WithS3(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		c.S3 = s3
		return nil
	}
}

// WithSweep sets the orphan sweep schedule
func WithSweep(interval, gracePeriod time.Duration) Option {
	return func(c *ServerConfig) error {
		c.SweepInterval = interval
		c.SweepGracePeriod = gracePeriod
		return nil
	}
}

// WithSweepConfirmDelay sets the wait between the two catalog checks the
// sweeper makes before deleting an unreferenced blob
func WithSweepConfirmDelay(d time.Duration) Option {
	return func(c *ServerConfig) error {
		c.SweepConfirmDelay = d
		return nil
	}
}

// WithStreamIdleTimeout sets the per-chunk read and write deadline
func WithStreamIdleTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		c.StreamIdleTimeout = d
		return nil
	}
}

// WithMaxUploadBytes limits upload request bodies
func WithMaxUploadBytes(n int64) Option {
	return func(c *ServerConfig) error {
		c.MaxUploadBytes = n
		return nil
	}
}

// WithAPIKeyHash enables API key authentication
func WithAPIKeyHash(sha256Hex string) Option {
	return func(c *ServerConfig) error {
		c.APIKeySHA256 = sha256Hex
		return nil
	}
}
