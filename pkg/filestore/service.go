package filestore

import (
	"context"
	"io"
)

// Service defines the main interface for the simple-files library
type Service interface {
	// Upload streams the request body into the blob store and commits a record
	Upload(ctx context.Context, req UploadRequest) (*FileRecord, error)

	// Download returns the record for id and a stream of its content.
	// The caller must close the stream.
	Download(ctx context.Context, id string) (*FileRecord, io.ReadCloser, error)

	// DeleteFile removes the record for id, then its blob
	DeleteFile(ctx context.Context, id string) error

	// ListFiles returns every record currently in the catalog
	ListFiles(ctx context.Context) ([]*FileRecord, error)

	// GetFile returns the record for id without touching the blob store
	GetFile(ctx context.Context, id string) (*FileRecord, error)
}
