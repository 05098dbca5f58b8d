package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tendant/simple-files/pkg/filestore"
)

// Catalog implements filestore.Catalog using in-memory storage
type Catalog struct {
	mu      sync.RWMutex
	records map[string]*filestore.FileRecord
}

// New creates a new in-memory catalog
func New() *Catalog {
	return &Catalog{
		records: make(map[string]*filestore.FileRecord),
	}
}

func (c *Catalog) Insert(ctx context.Context, record *filestore.FileRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.records[record.ID]; exists {
		return filestore.ErrDuplicateID
	}
	// Store a copy so callers cannot mutate the committed record
	c.records[record.ID] = record.Clone()
	return nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*filestore.FileRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, exists := c.records[id]
	if !exists {
		return nil, filestore.ErrRecordNotFound
	}
	return record.Clone(), nil
}

// List returns every record ordered by creation time, then id
func (c *Catalog) List(ctx context.Context) ([]*filestore.FileRecord, error) {
	c.mu.RLock()
	result := make([]*filestore.FileRecord, 0, len(c.records))
	for _, record := range c.records {
		result = append(result, record.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.records[id]; !exists {
		return filestore.ErrRecordNotFound
	}
	delete(c.records, id)
	return nil
}
