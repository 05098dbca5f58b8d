package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-files/pkg/filestore"
	"github.com/tendant/simple-files/pkg/filestore/catalog/cache"
	memorycatalog "github.com/tendant/simple-files/pkg/filestore/catalog/memory"
	pgcatalog "github.com/tendant/simple-files/pkg/filestore/catalog/postgres"
	rediscatalog "github.com/tendant/simple-files/pkg/filestore/catalog/redis"
	sqlitecatalog "github.com/tendant/simple-files/pkg/filestore/catalog/sqlite"
	fsstorage "github.com/tendant/simple-files/pkg/filestore/storage/fs"
	memorystorage "github.com/tendant/simple-files/pkg/filestore/storage/memory"
	miniostorage "github.com/tendant/simple-files/pkg/filestore/storage/minio"
	s3storage "github.com/tendant/simple-files/pkg/filestore/storage/s3"
	"github.com/tendant/simple-files/pkg/filestore/sweep"
)

// Runtime holds the wired service and the resources behind it
type Runtime struct {
	Service   filestore.Service
	Sweeper   *sweep.Sweeper
	BlobStore filestore.BlobStore
	Catalog   filestore.Catalog

	closers []func() error
}

// Ready reports whether the catalog is reachable
func (r *Runtime) Ready(ctx context.Context) error {
	if p, ok := r.Catalog.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close stops the sweeper and releases catalog connections
func (r *Runtime) Close() error {
	if r.Sweeper != nil {
		r.Sweeper.Stop()
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build creates the blob store, catalog, sweeper and service described by
// the configuration. The sweeper is not started.
func (c *ServerConfig) Build(ctx context.Context) (*Runtime, error) {
	logger := slog.Default()
	rt := &Runtime{}

	blobs, err := c.buildBlobStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build blob store: %w", err)
	}
	rt.BlobStore = blobs

	catalog, err := c.buildCatalog(ctx, rt, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}
	if c.CatalogCacheSize > 0 {
		catalog = cache.New(catalog, c.CatalogCacheSize, c.CatalogCacheTTL)
	}
	rt.Catalog = catalog

	rt.Sweeper = sweep.New(blobs, catalog, sweep.Config{
		Interval:     c.SweepInterval,
		GracePeriod:  c.SweepGracePeriod,
		ConfirmDelay: c.SweepConfirmDelay,
		Logger:       logger,
	})

	svc, err := filestore.New(
		filestore.WithBlobStore(blobs),
		filestore.WithCatalog(catalog),
		filestore.WithOrphanTracker(rt.Sweeper),
		filestore.WithEventSink(filestore.NewLoggingEventSink(logger)),
		filestore.WithLogger(logger),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc

	catalogKind, _ := c.CatalogKind()
	storageKind, _ := c.StorageKind()
	logger.Info("File service configured",
		"catalog", catalogKind,
		"storage", storageKind,
		"catalog_cache_size", c.CatalogCacheSize)

	return rt, nil
}

func (c *ServerConfig) buildCatalog(ctx context.Context, rt *Runtime, logger *slog.Logger) (filestore.Catalog, error) {
	kind, err := c.CatalogKind()
	if err != nil {
		return nil, err
	}

	switch kind {
	case CatalogMemory:
		return memorycatalog.New(), nil

	case CatalogPostgres:
		if err := pgcatalog.Migrate(c.CatalogURL, logger); err != nil {
			return nil, err
		}
		poolCfg, err := pgxpool.ParseConfig(c.CatalogURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse CATALOG_URL: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		return pgcatalog.NewWithPool(pool), nil

	case CatalogSQLite:
		catalog, err := sqlitecatalog.Open(ctx, c.sqlitePath())
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, catalog.Close)
		return catalog, nil

	case CatalogRedis:
		catalog, err := rediscatalog.NewFromURL(ctx, c.CatalogURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, catalog.Close)
		return catalog, nil
	}
	return nil, fmt.Errorf("unsupported catalog: %s", kind)
}

func (c *ServerConfig) buildBlobStore(ctx context.Context) (filestore.BlobStore, error) {
	kind, err := c.StorageKind()
	if err != nil {
		return nil, err
	}

	switch kind {
	case StorageMemory:
		return memorystorage.New(), nil

	case StorageFS:
		return fsstorage.New(fsstorage.Config{BaseDir: c.storagePath()})

	case StorageS3:
		return s3storage.New(s3storage.Config{
			Region:                 c.storageRegion(),
			Bucket:                 c.bucket(),
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			EnableSSE:              c.S3.SSEAlgorithm != "",
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})

	case StorageMinio:
		endpoint, useSSL := minioEndpoint(c.S3.Endpoint)
		return miniostorage.New(miniostorage.Config{
			Endpoint:               endpoint,
			Bucket:                 c.bucket(),
			Region:                 c.storageRegion(),
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			UseSSL:                 useSSL,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
	}
	return nil, fmt.Errorf("unsupported storage: %s", kind)
}

// minioEndpoint strips the scheme from an endpoint URL. The MinIO client
// takes host:port plus a TLS flag.
func minioEndpoint(endpoint string) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), false
	}
	return endpoint, false
}
