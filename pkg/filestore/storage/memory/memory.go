package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-files/pkg/filestore"
)

type blob struct {
	data    []byte
	modTime time.Time
}

// Backend is an in-memory implementation of the filestore.BlobStore interface
type Backend struct {
	mu    sync.RWMutex
	blobs map[string]blob
	now   func() time.Time
}

// Option configures the in-memory backend
type Option func(*Backend)

// WithClock sets the time source used for blob modification times
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// New creates a new in-memory storage backend
func New(opts ...Option) *Backend {
	b := &Backend{
		blobs: make(map[string]blob),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Put stages the stream in a private buffer and publishes it only after the
// stream ended cleanly
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader) (int64, error) {
	b.mu.RLock()
	_, exists := b.blobs[key]
	b.mu.RUnlock()
	if exists {
		return 0, filestore.ErrBlobExists
	}

	var staged bytes.Buffer
	n, err := io.Copy(&staged, reader)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.blobs[key]; exists {
		return 0, filestore.ErrBlobExists
	}
	b.blobs[key] = blob{data: staged.Bytes(), modTime: b.now()}
	return n, nil
}

// Get returns a reader over the stored bytes
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stored, exists := b.blobs[key]
	if !exists {
		return nil, filestore.ErrBlobNotFound
	}

	return io.NopCloser(bytes.NewReader(stored.data)), nil
}

// Delete removes the blob. Unknown keys are ignored.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.blobs, key)
	return nil
}

// ListBlobs returns every stored blob sorted by key
func (b *Backend) ListBlobs(ctx context.Context) ([]filestore.BlobInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]filestore.BlobInfo, 0, len(b.blobs))
	for key, stored := range b.blobs {
		result = append(result, filestore.BlobInfo{
			Key:     key,
			Size:    int64(len(stored.data)),
			ModTime: stored.modTime,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result, nil
}

// Exists reports whether a blob is stored under key
func (b *Backend) Exists(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blobs[key]
	return ok
}

// Len returns the number of stored blobs
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
