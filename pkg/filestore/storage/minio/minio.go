package minio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/simple-files/pkg/filestore"
)

// Config options for the MinIO backend
type Config struct {
	Endpoint        string // host:port of the MinIO server
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string // Key prefix listed by the sweep (default: "files/")

	CreateBucketIfNotExist bool
}

// Backend stores blobs through the MinIO client
type Backend struct {
	client *minio.Client
	bucket string
	prefix string
}

// New creates a new MinIO storage backend
func New(config Config) (*Backend, error) {
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Prefix == "" {
		config.Prefix = "files/"
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure:       config.UseSSL,
		Region:       config.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	backend := &Backend{client: client, bucket: config.Bucket, prefix: config.Prefix}

	if config.CreateBucketIfNotExist {
		if err := backend.ensureBucket(context.Background(), config.Region); err != nil {
			return nil, err
		}
	}
	return backend, nil
}

func (b *Backend) ensureBucket(ctx context.Context, region string) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Put streams the payload with an unknown length. MinIO only exposes the
// object once the upload completes.
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader) (int64, error) {
	_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return 0, filestore.ErrBlobExists
	}
	if !isNotFound(err) {
		return 0, b.storageError("put", key, err)
	}

	info, err := b.client.PutObject(ctx, b.bucket, key, reader, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return 0, b.storageError("put", key, err)
	}
	return info.Size, nil
}

// Get opens the object. The stat call surfaces a missing key before any
// bytes are returned.
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, filestore.ErrBlobNotFound
		}
		return nil, b.storageError("get", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, filestore.ErrBlobNotFound
		}
		return nil, b.storageError("get", key, err)
	}
	return obj, nil
}

// Delete removes the object. Missing keys are not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return b.storageError("delete", key, err)
	}
	return nil
}

// ListBlobs lists every object under the configured prefix
func (b *Backend) ListBlobs(ctx context.Context) ([]filestore.BlobInfo, error) {
	result := []filestore.BlobInfo{}
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: b.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, b.storageError("list", b.prefix, obj.Err)
		}
		result = append(result, filestore.BlobInfo{
			Key:     obj.Key,
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
	}
	return result, nil
}

func (b *Backend) storageError(op, key string, err error) error {
	return &filestore.StorageError{Backend: "minio", Key: key, Op: op, Err: err}
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
