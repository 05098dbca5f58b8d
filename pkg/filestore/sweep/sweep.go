// Package sweep removes blobs that no catalog record references.
//
// Orphans come from two places: keys reported by the service when a
// compensating or post-delete blob removal failed, and blobs found by listing
// the store that have no record and are older than the grace period.
//
// A listed blob's ModTime is when the store first saw it. For multipart
// object store uploads that is when the upload started, so the grace period
// must exceed the longest expected upload. Listed candidates are also checked
// against the catalog a second time, ConfirmDelay after the first check, which
// covers an upload that completed its blob and is about to insert its record.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tendant/simple-files/pkg/filestore"
)

const (
	DefaultInterval     = 15 * time.Minute
	DefaultGracePeriod  = time.Hour
	DefaultConfirmDelay = 10 * time.Second
)

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filestore_sweep_runs_total",
		Help: "Number of completed sweep runs.",
	})
	sweepBlobsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filestore_sweep_blobs_deleted_total",
		Help: "Orphaned blobs removed by the sweep.",
	}, []string{"source"})
	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filestore_sweep_errors_total",
		Help: "Errors encountered while sweeping.",
	})
	sweepOrphansMarkedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filestore_sweep_orphans_marked_total",
		Help: "Blob keys reported as orphaned by the service.",
	}, []string{"reason"})
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filestore_sweep_duration_seconds",
		Help:    "Duration of sweep runs in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// Result summarizes one sweep run
type Result struct {
	// PendingDeleted counts reported orphans that were removed
	PendingDeleted int
	// ScannedDeleted counts unreferenced blobs found by listing
	ScannedDeleted int
	// Scanned is the number of blobs listed, zero when the store cannot list
	Scanned  int
	Errors   int
	Duration time.Duration
}

// Config options for the Sweeper
type Config struct {
	Interval    time.Duration
	GracePeriod time.Duration
	// ConfirmDelay separates the two catalog checks made before a listed
	// blob is deleted
	ConfirmDelay time.Duration
	Logger       *slog.Logger
	// Now overrides the clock used for grace period checks
	Now func() time.Time
}

// Sweeper implements filestore.OrphanTracker and periodically deletes
// orphaned blobs
type Sweeper struct {
	blobs   filestore.BlobStore
	catalog filestore.Catalog
	config  Config
	logger  *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]filestore.OrphanReason

	runMu  sync.Mutex // serializes RunOnce
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Sweeper over the given stores
func New(blobs filestore.BlobStore, catalog filestore.Catalog, config Config) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.ConfirmDelay <= 0 {
		config.ConfirmDelay = DefaultConfirmDelay
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		blobs:   blobs,
		catalog: catalog,
		config:  config,
		logger:  logger.With("component", "sweep"),
		pending: make(map[string]filestore.OrphanReason),
	}
}

// MarkOrphan records key for deletion on the next run
func (s *Sweeper) MarkOrphan(ctx context.Context, key string, reason filestore.OrphanReason) {
	s.pendingMu.Lock()
	s.pending[key] = reason
	s.pendingMu.Unlock()

	sweepOrphansMarkedTotal.WithLabelValues(string(reason)).Inc()
	s.logger.WarnContext(ctx, "Orphan blob queued", "key", key, "reason", reason)
}

// Pending returns the keys waiting for deletion
func (s *Sweeper) Pending() []string {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	keys := make([]string, 0, len(s.pending))
	for key := range s.pending {
		keys = append(keys, key)
	}
	return keys
}

// Start runs a sweep immediately and then every Interval until ctx is done
// or Stop is called
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx, s.done)

	s.logger.Info("Sweep started",
		"interval", s.config.Interval.String(),
		"grace_period", s.config.GracePeriod.String())
}

// Stop cancels the background loop and waits for it to exit
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Sweep stopped")
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.runLogged(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Sweeper) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "Sweep run failed", "error", err)
	}
}

// RunOnce retries reported orphans and then scans the blob store if it can
// be listed. Blobs younger than the grace period are left alone since their
// upload may still be about to commit its record.
func (s *Sweeper) RunOnce(ctx context.Context) (*Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	result := &Result{}

	s.sweepPending(ctx, result)
	scanErr := s.sweepListed(ctx, result)

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepBlobsDeletedTotal.WithLabelValues("pending").Add(float64(result.PendingDeleted))
	sweepBlobsDeletedTotal.WithLabelValues("scan").Add(float64(result.ScannedDeleted))
	sweepErrorsTotal.Add(float64(result.Errors))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.InfoContext(ctx, "Sweep finished",
		"pending_deleted", result.PendingDeleted,
		"scanned", result.Scanned,
		"scanned_deleted", result.ScannedDeleted,
		"errors", result.Errors,
		"duration", result.Duration)

	return result, scanErr
}

func (s *Sweeper) sweepPending(ctx context.Context, result *Result) {
	s.pendingMu.Lock()
	work := make(map[string]filestore.OrphanReason, len(s.pending))
	for key, reason := range s.pending {
		work[key] = reason
	}
	s.pendingMu.Unlock()

	for key, reason := range work {
		if ctx.Err() != nil {
			return
		}

		referenced, err := s.referenced(ctx, key)
		if err != nil {
			result.Errors++
			s.logger.WarnContext(ctx, "Catalog check failed for orphan", "key", key, "error", err)
			continue
		}
		if !referenced {
			if err := s.blobs.Delete(ctx, key); err != nil {
				result.Errors++
				s.logger.WarnContext(ctx, "Orphan delete failed, will retry", "key", key, "reason", reason, "error", err)
				continue
			}
			result.PendingDeleted++
			s.logger.InfoContext(ctx, "Orphan blob deleted", "key", key, "reason", reason)
		}

		s.pendingMu.Lock()
		delete(s.pending, key)
		s.pendingMu.Unlock()
	}
}

func (s *Sweeper) sweepListed(ctx context.Context, result *Result) error {
	lister, ok := s.blobs.(filestore.BlobLister)
	if !ok {
		return nil
	}

	blobs, err := lister.ListBlobs(ctx)
	if err != nil {
		result.Errors++
		return fmt.Errorf("list blobs: %w", err)
	}
	result.Scanned = len(blobs)

	cutoff := s.config.Now().Add(-s.config.GracePeriod)
	var candidates []filestore.BlobInfo
	for _, blob := range blobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !blob.ModTime.Before(cutoff) {
			continue
		}
		if _, ok := filestore.IDFromBlobKey(blob.Key); !ok {
			s.logger.DebugContext(ctx, "Skipping blob outside the file key space", "key", blob.Key)
			continue
		}
		if s.unreferenced(ctx, blob.Key, result) {
			candidates = append(candidates, blob)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.config.ConfirmDelay):
	}

	for _, blob := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.unreferenced(ctx, blob.Key, result) {
			s.logger.InfoContext(ctx, "Blob gained a record before deletion", "key", blob.Key)
			continue
		}

		if err := s.blobs.Delete(ctx, blob.Key); err != nil {
			result.Errors++
			s.logger.WarnContext(ctx, "Unreferenced blob delete failed", "key", blob.Key, "error", err)
			continue
		}
		result.ScannedDeleted++
		s.logger.InfoContext(ctx, "Unreferenced blob deleted", "key", blob.Key, "size", blob.Size, "mod_time", blob.ModTime)
	}
	return nil
}

// unreferenced reports whether key has no catalog record. A failed catalog
// check counts as referenced.
func (s *Sweeper) unreferenced(ctx context.Context, key string, result *Result) bool {
	referenced, err := s.referenced(ctx, key)
	if err != nil {
		result.Errors++
		s.logger.WarnContext(ctx, "Catalog check failed during scan", "key", key, "error", err)
		return false
	}
	return !referenced
}

// referenced reports whether a catalog record points at key
func (s *Sweeper) referenced(ctx context.Context, key string) (bool, error) {
	id, ok := filestore.IDFromBlobKey(key)
	if !ok {
		return false, nil
	}
	record, err := filestore.GetFresh(ctx, s.catalog, id)
	if errors.Is(err, filestore.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.BlobKey == key, nil
}
