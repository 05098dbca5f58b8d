package filestore

import (
	"errors"
	"fmt"
)

// Error kinds returned by Service operations. Use errors.Is to test for them.
var (
	// ErrNotFound indicates the requested file does not exist
	ErrNotFound = errors.New("file not found")

	// ErrValidation indicates missing or malformed input, including an empty
	// or aborted payload stream
	ErrValidation = errors.New("invalid request")

	// ErrStoreUnavailable indicates a transient blob store or catalog failure.
	// Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInternal indicates a consistency fault (dangling catalog reference,
	// identifier collision). Not retryable.
	ErrInternal = errors.New("internal error")
)

// Store-level errors returned by BlobStore and Catalog implementations
var (
	// ErrBlobNotFound is returned by BlobStore.Get for an unknown key
	ErrBlobNotFound = errors.New("blob not found")

	// ErrBlobExists is returned by BlobStore.Put when the key is already written
	ErrBlobExists = errors.New("blob already exists")

	// ErrRecordNotFound is returned by Catalog.Get and Catalog.Delete for an unknown id
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateID is returned by Catalog.Insert when the id is already present
	ErrDuplicateID = errors.New("duplicate file id")
)

// FileError is the error type returned by Service operations.
//
// Unwrap exposes only the error kind. The underlying store error is kept for
// logging and is available through Cause.
type FileError struct {
	Op   string
	ID   string
	Kind error
	Err  error
}

func (e *FileError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Kind)
}

func (e *FileError) Unwrap() error {
	return e.Kind
}

// Cause returns the underlying error that produced this failure, if any
func (e *FileError) Cause() error {
	return e.Err
}

// KindOf returns the error kind of err, or nil when err is not a Service error
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrValidation, ErrStoreUnavailable, ErrInternal} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func newError(op, id string, kind, cause error) *FileError {
	return &FileError{Op: op, ID: id, Kind: kind, Err: cause}
}

// StorageError wraps a backend failure with the key it concerned.
// Backends return it so callers can log the key.
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
