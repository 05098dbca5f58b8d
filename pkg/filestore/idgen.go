package filestore

import (
	"fmt"
	"path"

	"github.com/google/uuid"
)

// UUIDGenerator generates random (version 4) UUIDs
type UUIDGenerator struct{}

// NewID returns a new random UUID string
func (UUIDGenerator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

// BlobKeyFor derives the blob store key for a file id.
// Keys are fanned out by the first two characters of the id.
func BlobKeyFor(id string) string {
	if len(id) < 2 {
		return path.Join("files", id)
	}
	return path.Join("files", id[:2], id)
}

// IDFromBlobKey reverses BlobKeyFor. ok is false for keys not produced by it.
func IDFromBlobKey(key string) (id string, ok bool) {
	_, id = path.Split(key)
	if id == "" || BlobKeyFor(id) != key {
		return "", false
	}
	return id, true
}
