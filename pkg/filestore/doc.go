// Package filestore binds a blob store to a metadata catalog so that file
// upload, download, deletion and listing behave as atomic operations across
// two independently failing stores.
//
// It exposes a single Service interface. Blob store implementations (memory,
// filesystem, S3, MinIO) live under storage/, catalog implementations
// (memory, Postgres, SQLite, Redis, LRU cache decorator) under catalog/.
//
// Consistency Rules
//
// A FileRecord is inserted into the catalog only after its blob has been
// fully written, and removed from the catalog before its blob is deleted.
// Readers resolve blobs exclusively through the catalog, so a record always
// points at a complete blob. Blobs left without a record (failed insert,
// failed blob delete) are handed to an OrphanTracker, normally the sweep
// package, for later removal.
package filestore
