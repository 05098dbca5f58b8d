// Package cache provides a read-through LRU cache in front of a
// filestore.Catalog.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tendant/simple-files/pkg/filestore"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filestore_catalog_cache_hits_total",
		Help: "Catalog lookups served from the record cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filestore_catalog_cache_misses_total",
		Help: "Catalog lookups that went to the underlying catalog.",
	})
)

// Catalog caches inserted records and positive Get results. Misses are never cached, and a
// delete invalidates the entry once the underlying record is gone.
type Catalog struct {
	inner filestore.Catalog
	cache *expirable.LRU[string, *filestore.FileRecord]

	// mu orders cache fills against invalidations. epoch changes on every
	// delete so a Get that raced a delete does not refill a stale entry.
	mu    sync.Mutex
	epoch uint64
}

// New wraps inner with an LRU of at most maxSize entries, each living ttl
func New(inner filestore.Catalog, maxSize int, ttl time.Duration) *Catalog {
	return &Catalog{
		inner: inner,
		cache: expirable.NewLRU[string, *filestore.FileRecord](maxSize, nil, ttl),
	}
}

func (c *Catalog) Insert(ctx context.Context, record *filestore.FileRecord) error {
	if err := c.inner.Insert(ctx, record); err != nil {
		return err
	}
	c.cache.Add(record.ID, record.Clone())
	return nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*filestore.FileRecord, error) {
	if record, ok := c.cache.Get(id); ok {
		cacheHitsTotal.Inc()
		return record.Clone(), nil
	}
	cacheMissesTotal.Inc()

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	record, err := c.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.cache.Add(id, record.Clone())
	}
	c.mu.Unlock()

	return record, nil
}

// GetFresh reads id from the wrapped catalog, skipping the cache. A record
// that is gone there is evicted, so a delete made through another cache
// stops being served here.
func (c *Catalog) GetFresh(ctx context.Context, id string) (*filestore.FileRecord, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	record, err := c.inner.Get(ctx, id)
	if errors.Is(err, filestore.ErrRecordNotFound) {
		c.mu.Lock()
		c.epoch++
		c.cache.Remove(id)
		c.mu.Unlock()
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.cache.Add(id, record.Clone())
	}
	c.mu.Unlock()

	return record, nil
}

func (c *Catalog) List(ctx context.Context) ([]*filestore.FileRecord, error) {
	return c.inner.List(ctx)
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	err := c.inner.Delete(ctx, id)

	c.mu.Lock()
	c.epoch++
	c.cache.Remove(id)
	c.mu.Unlock()

	return err
}

// Ping forwards to the wrapped catalog when it supports health checks
func (c *Catalog) Ping(ctx context.Context) error {
	if p, ok := c.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Len returns the number of cached records
func (c *Catalog) Len() int {
	return c.cache.Len()
}
