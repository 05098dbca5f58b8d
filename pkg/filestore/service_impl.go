package filestore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// compensateTimeout bounds cleanup work that runs after the caller's context
// may already be gone
const compensateTimeout = 30 * time.Second

// service implements the Service interface
type service struct {
	blobStore BlobStore
	catalog   Catalog
	idGen     IDGenerator
	eventSink EventSink
	orphans   OrphanTracker
	logger    *slog.Logger
	now       func() time.Time

	clockMu  sync.Mutex
	lastTime time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithBlobStore sets the blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithCatalog sets the metadata catalog
func WithCatalog(catalog Catalog) Option {
	return func(s *service) {
		s.catalog = catalog
	}
}

// WithIDGenerator replaces the default UUID generator
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *service) {
		s.idGen = gen
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithOrphanTracker sets where orphaned blob keys are reported
func WithOrphanTracker(tracker OrphanTracker) Option {
	return func(s *service) {
		s.orphans = tracker
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for CreatedAt
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		idGen: UUIDGenerator{},
		now:   time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "filestore")

	return s, nil
}

// Upload operations

func (s *service) Upload(ctx context.Context, req UploadRequest) (*FileRecord, error) {
	const op = "upload"

	if req.Filename == "" {
		return nil, newError(op, "", ErrValidation, errors.New("filename is required"))
	}
	if req.ContentType == "" {
		return nil, newError(op, "", ErrValidation, errors.New("content type is required"))
	}
	if req.Body == nil {
		return nil, newError(op, "", ErrValidation, errors.New("payload is required"))
	}

	// Reject empty payloads before anything is written
	body := bufio.NewReader(req.Body)
	if _, err := body.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, newError(op, "", ErrValidation, errors.New("payload is empty"))
		}
		return nil, newError(op, "", ErrValidation, fmt.Errorf("read payload: %w", err))
	}

	id, err := s.newUniqueID(ctx)
	if err != nil {
		return nil, err
	}
	key := BlobKeyFor(id)

	src := newSourceReader(ctx, body)
	written, err := s.blobStore.Put(ctx, key, src)
	if err != nil {
		return nil, s.classifyPutError(ctx, id, key, src, err)
	}

	if counted := src.Count(); written != counted {
		s.logger.ErrorContext(ctx, "Blob size mismatch", "id", id, "key", key, "written", written, "read", counted)
		s.compensate(ctx, id, key)
		return nil, newError(op, id, ErrInternal, fmt.Errorf("blob store wrote %d bytes, source produced %d", written, counted))
	}

	record := &FileRecord{
		ID:          id,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		SizeBytes:   written,
		CreatedAt:   s.commitTime(),
		BlobKey:     key,
	}

	if err := s.catalog.Insert(ctx, record); err != nil {
		kind := ErrStoreUnavailable
		if errors.Is(err, ErrDuplicateID) {
			kind = ErrInternal
		}
		s.logger.ErrorContext(ctx, "Catalog insert failed, removing blob", "id", id, "key", key, "error", err)
		s.compensate(ctx, id, key)
		return nil, newError(op, id, kind, err)
	}

	if s.eventSink != nil {
		if err := s.eventSink.FileUploaded(ctx, record); err != nil {
			s.logger.WarnContext(ctx, "Event sink failed", "event", "file_uploaded", "id", id, "error", err)
		}
	}

	return record.Clone(), nil
}

// newUniqueID generates an id not yet present in the catalog. A collision is
// retried once; a second collision is reported as an internal error.
func (s *service) newUniqueID(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= 2; attempt++ {
		id, err := s.idGen.NewID()
		if err != nil {
			return "", newError("upload", "", ErrInternal, err)
		}

		_, err = s.catalog.Get(ctx, id)
		if errors.Is(err, ErrRecordNotFound) {
			return id, nil
		}
		if err != nil {
			return "", newError("upload", id, ErrStoreUnavailable, err)
		}
		s.logger.ErrorContext(ctx, "Generated file id already in catalog", "id", id, "attempt", attempt)
	}
	return "", newError("upload", "", ErrInternal, errors.New("file id collision after retry"))
}

func (s *service) classifyPutError(ctx context.Context, id, key string, src *sourceReader, err error) error {
	const op = "upload"

	srcErr := src.Err()
	if srcErr == nil {
		srcErr = ctx.Err()
	}
	if srcErr != nil {
		s.logger.WarnContext(ctx, "Upload stream aborted", "id", id, "key", key, "bytes_read", src.Count(), "error", srcErr)
		return newError(op, id, ErrValidation, fmt.Errorf("payload stream aborted: %w", srcErr))
	}

	if errors.Is(err, ErrBlobExists) {
		s.logger.ErrorContext(ctx, "Blob key already written", "id", id, "key", key)
		return newError(op, id, ErrInternal, err)
	}

	s.logger.ErrorContext(ctx, "Blob write failed", "id", id, "key", key, "error", err)
	return newError(op, id, ErrStoreUnavailable, err)
}

// compensate removes a blob whose record could not be committed
func (s *service) compensate(ctx context.Context, id, key string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	if err := s.blobStore.Delete(cctx, key); err != nil {
		s.logger.ErrorContext(ctx, "Compensating blob delete failed", "id", id, "key", key, "error", err)
		s.markOrphan(cctx, key, OrphanCompensateFailed)
	}
}

func (s *service) markOrphan(ctx context.Context, key string, reason OrphanReason) {
	if s.orphans == nil {
		s.logger.WarnContext(ctx, "Orphan blob left for sweep", "key", key, "reason", reason)
		return
	}
	s.orphans.MarkOrphan(ctx, key, reason)
}

// commitTime returns the current UTC time, never earlier than a value it
// returned before
func (s *service) commitTime() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	t := s.now().UTC()
	if t.Before(s.lastTime) {
		t = s.lastTime
	}
	s.lastTime = t
	return t
}

// Download operations

func (s *service) Download(ctx context.Context, id string) (*FileRecord, io.ReadCloser, error) {
	const op = "download"

	record, err := s.lookup(ctx, op, id, s.catalog.Get)
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.blobStore.Get(ctx, record.BlobKey)
	if err != nil {
		if !errors.Is(err, ErrBlobNotFound) {
			s.logger.ErrorContext(ctx, "Blob read failed", "id", id, "key", record.BlobKey, "error", err)
			return nil, nil, newError(op, id, ErrStoreUnavailable, err)
		}

		// A deletion that committed after our lookup removes the record
		// before the blob, so a missing record here is an ordinary race.
		// The lookup may have come from a cache that has not seen a delete
		// made by another instance, so the re-check reads the backing catalog.
		_, recheck := GetFresh(ctx, s.catalog, id)
		if errors.Is(recheck, ErrRecordNotFound) {
			return nil, nil, newError(op, id, ErrNotFound, err)
		}
		if recheck != nil {
			return nil, nil, newError(op, id, ErrStoreUnavailable, recheck)
		}

		s.logger.ErrorContext(ctx, "Catalog record references missing blob",
			"id", id,
			"key", record.BlobKey,
			"size_bytes", record.SizeBytes,
			"created_at", record.CreatedAt)
		return nil, nil, newError(op, id, ErrInternal, err)
	}

	return record, newSizedReadCloser(reader, record.SizeBytes), nil
}

// Delete operations

func (s *service) DeleteFile(ctx context.Context, id string) error {
	const op = "delete"

	record, err := s.lookup(ctx, op, id, func(ctx context.Context, id string) (*FileRecord, error) {
		return GetFresh(ctx, s.catalog, id)
	})
	if err != nil {
		return err
	}

	// The record goes first so no reader can resolve id to a blob that is
	// about to disappear.
	if err := s.catalog.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return newError(op, id, ErrNotFound, err)
		}
		s.logger.ErrorContext(ctx, "Catalog delete failed", "id", id, "error", err)
		return newError(op, id, ErrStoreUnavailable, err)
	}

	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()
	if err := s.blobStore.Delete(bctx, record.BlobKey); err != nil {
		s.logger.WarnContext(ctx, "Blob delete failed after record removal", "id", id, "key", record.BlobKey, "error", err)
		s.markOrphan(bctx, record.BlobKey, OrphanDeleteFailed)
	}

	if s.eventSink != nil {
		if err := s.eventSink.FileDeleted(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "Event sink failed", "event", "file_deleted", "id", id, "error", err)
		}
	}

	return nil
}

// Listing operations

func (s *service) ListFiles(ctx context.Context) ([]*FileRecord, error) {
	records, err := s.catalog.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Catalog list failed", "error", err)
		return nil, newError("list", "", ErrStoreUnavailable, err)
	}
	if records == nil {
		records = []*FileRecord{}
	}
	return records, nil
}

func (s *service) GetFile(ctx context.Context, id string) (*FileRecord, error) {
	return s.lookup(ctx, "get", id, s.catalog.Get)
}

func (s *service) lookup(ctx context.Context, op, id string, get func(context.Context, string) (*FileRecord, error)) (*FileRecord, error) {
	if id == "" {
		return nil, newError(op, id, ErrNotFound, ErrRecordNotFound)
	}
	record, err := get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, newError(op, id, ErrNotFound, err)
		}
		s.logger.ErrorContext(ctx, "Catalog lookup failed", "op", op, "id", id, "error", err)
		return nil, newError(op, id, ErrStoreUnavailable, err)
	}
	return record, nil
}
