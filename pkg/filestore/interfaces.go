package filestore

import (
	"context"
	"io"
)

// BlobStore defines the interface for blob storage backends.
//
// Put must be atomic: on any error nothing is visible under key. Put on a key
// that already holds a blob returns ErrBlobExists. Get on an unknown key
// returns ErrBlobNotFound. Delete on an unknown key returns nil.
type BlobStore interface {
	// Put streams reader into the store under key and returns the number of bytes written
	Put(ctx context.Context, key string, reader io.Reader) (int64, error)

	// Get opens a streamed read of the blob stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob stored under key
	Delete(ctx context.Context, key string) error
}

// BlobLister is implemented by blob stores that can enumerate their keys.
// The sweep uses it to find orphans.
type BlobLister interface {
	ListBlobs(ctx context.Context) ([]BlobInfo, error)
}

// Catalog defines the interface for file metadata persistence.
//
// Delete must be exclusive: when two callers delete the same id concurrently,
// exactly one gets nil and the other ErrRecordNotFound.
type Catalog interface {
	// Insert stores a new record, returning ErrDuplicateID if the id exists
	Insert(ctx context.Context, record *FileRecord) error

	// Get returns the record for id or ErrRecordNotFound
	Get(ctx context.Context, id string) (*FileRecord, error)

	// List returns all records ordered by CreatedAt, then ID
	List(ctx context.Context) ([]*FileRecord, error)

	// Delete removes the record for id or returns ErrRecordNotFound
	Delete(ctx context.Context, id string) error
}

// IDGenerator produces file identifiers
type IDGenerator interface {
	NewID() (string, error)
}

// OrphanTracker receives blob keys that could not be removed inline
type OrphanTracker interface {
	MarkOrphan(ctx context.Context, key string, reason OrphanReason)
}

// EventSink defines the interface for event handling
type EventSink interface {
	// FileUploaded is fired after a record has been committed
	FileUploaded(ctx context.Context, record *FileRecord) error

	// FileDeleted is fired after a record has been removed
	FileDeleted(ctx context.Context, id string) error
}

// FreshGetter is implemented by catalogs that may answer Get from a local
// cache. GetFresh reads the backing catalog and brings the cache in line
// with what it found.
type FreshGetter interface {
	GetFresh(ctx context.Context, id string) (*FileRecord, error)
}

// GetFresh reads id from c, bypassing any record cache c keeps
func GetFresh(ctx context.Context, c Catalog, id string) (*FileRecord, error) {
	if fg, ok := c.(FreshGetter); ok {
		return fg.GetFresh(ctx, id)
	}
	return c.Get(ctx, id)
}
