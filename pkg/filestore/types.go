package filestore

import (
	"io"
	"time"
)

// FileRecord is the catalog entry describing one stored file.
// Records are immutable once inserted.
type FileRecord struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	BlobKey     string    `json:"blob_key"`
}

// Clone returns a copy of the record
func (r *FileRecord) Clone() *FileRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// BlobInfo describes a blob as reported by a BlobLister
type BlobInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// UploadRequest contains parameters for uploading a file
type UploadRequest struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// OrphanReason tells the sweep why a blob was left without a catalog record
type OrphanReason string

const (
	// OrphanCompensateFailed marks a blob whose upload failed at catalog insert
	// and whose compensating delete also failed.
	OrphanCompensateFailed OrphanReason = "compensate_failed"

	// OrphanDeleteFailed marks a blob whose record was deleted but whose
	// blob delete failed.
	OrphanDeleteFailed OrphanReason = "delete_failed"
)
