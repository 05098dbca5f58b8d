package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-files/pkg/filestore"
)

const stagingDir = ".staging"

// Backend is a filesystem implementation of the filestore.BlobStore interface
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing blobs
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, stagingDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: baseDir}, nil
}

func (b *Backend) pathFor(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, stagingDir) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	p := filepath.Join(b.baseDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(b.baseDir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return p, nil
}

// Put writes the stream to a staging file and links it into place once it
// is complete and synced. The link fails if the key already exists.
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader) (int64, error) {
	filePath, err := b.pathFor(key)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(filePath); err == nil {
		return 0, filestore.ErrBlobExists
	}

	tmp, err := os.CreateTemp(filepath.Join(b.baseDir, stagingDir), "*.tmp")
	if err != nil {
		return 0, b.storageError("put", key, fmt.Errorf("failed to create staging file: %w", err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, reader)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, b.storageError("put", key, fmt.Errorf("failed to sync staging file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return 0, b.storageError("put", key, fmt.Errorf("failed to close staging file: %w", err))
	}

	if err := b.publish(tmpPath, filePath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, filestore.ErrBlobExists
		}
		return 0, b.storageError("put", key, err)
	}

	return n, nil
}

// publish links the staged file to its final path. A concurrent Delete may
// remove the shard directory between MkdirAll and Link, so that case is retried.
func (b *Backend) publish(tmpPath, filePath string) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		err = os.Link(tmpPath, filePath)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return fmt.Errorf("failed to publish blob: %w", err)
}

// Get opens the blob for reading
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := b.pathFor(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, filestore.ErrBlobNotFound
	} else if err != nil {
		return nil, b.storageError("get", key, err)
	}

	return file, nil
}

// Delete removes the blob and any directories it leaves empty. Unknown keys
// are ignored.
func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath, err := b.pathFor(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return b.storageError("delete", key, err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// ListBlobs walks the base directory and returns every published blob
func (b *Backend) ListBlobs(ctx context.Context) ([]filestore.BlobInfo, error) {
	var result []filestore.BlobInfo
	err := filepath.WalkDir(b.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == stagingDir && filepath.Dir(p) == b.baseDir {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(b.baseDir, p)
		if err != nil {
			return err
		}
		result = append(result, filestore.BlobInfo{
			Key:     filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, b.storageError("list", "", err)
	}
	if result == nil {
		result = []filestore.BlobInfo{}
	}
	return result, nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

func (b *Backend) storageError(op, key string, err error) error {
	return &filestore.StorageError{Backend: "fs", Key: key, Op: op, Err: err}
}
