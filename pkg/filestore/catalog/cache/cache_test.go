package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-files/pkg/filestore"
	"github.com/tendant/simple-files/pkg/filestore/catalog/cache"
	"github.com/tendant/simple-files/pkg/filestore/catalog/memory"
)

type countingCatalog struct {
	filestore.Catalog
	gets int
}

func (c *countingCatalog) Get(ctx context.Context, id string) (*filestore.FileRecord, error) {
	c.gets++
	return c.Catalog.Get(ctx, id)
}

func newRecord(id string) *filestore.FileRecord {
	return &filestore.FileRecord{
		ID:          id,
		Filename:    "a.txt",
		ContentType: "text/plain",
		SizeBytes:   1,
		CreatedAt:   time.Now().UTC(),
		BlobKey:     filestore.BlobKeyFor(id),
	}
}

func TestCache_ServesRepeatedGets(t *testing.T) {
	inner := &countingCatalog{Catalog: memory.New()}
	catalog := cache.New(inner, 16, time.Minute)
	ctx := context.Background()

	require.NoError(t, catalog.Insert(ctx, newRecord("abc")))

	for i := 0; i < 3; i++ {
		got, err := catalog.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", got.ID)
	}
	assert.Equal(t, 0, inner.gets)
	assert.Equal(t, 1, catalog.Len())
}

func TestCache_ReturnsCopies(t *testing.T) {
	catalog := cache.New(memory.New(), 16, time.Minute)
	ctx := context.Background()
	require.NoError(t, catalog.Insert(ctx, newRecord("abc")))

	first, err := catalog.Get(ctx, "abc")
	require.NoError(t, err)
	first.Filename = "mutated"

	second, err := catalog.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", second.Filename)
}

func TestCache_DoesNotCacheMisses(t *testing.T) {
	inner := &countingCatalog{Catalog: memory.New()}
	catalog := cache.New(inner, 16, time.Minute)
	ctx := context.Background()

	_, err := catalog.Get(ctx, "missing")
	assert.ErrorIs(t, err, filestore.ErrRecordNotFound)

	require.NoError(t, catalog.Insert(ctx, newRecord("missing")))
	got, err := catalog.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "missing", got.ID)
	assert.Equal(t, 2, inner.gets)
}

func TestCache_DeleteInvalidates(t *testing.T) {
	catalog := cache.New(memory.New(), 16, time.Minute)
	ctx := context.Background()

	require.NoError(t, catalog.Insert(ctx, newRecord("abc")))
	_, err := catalog.Get(ctx, "abc")
	require.NoError(t, err)

	require.NoError(t, catalog.Delete(ctx, "abc"))
	_, err = catalog.Get(ctx, "abc")
	assert.ErrorIs(t, err, filestore.ErrRecordNotFound)
	assert.Equal(t, 0, catalog.Len())

	assert.ErrorIs(t, catalog.Delete(ctx, "abc"), filestore.ErrRecordNotFound)
}

func TestCache_Expiry(t *testing.T) {
	inner := &countingCatalog{Catalog: memory.New()}
	catalog := cache.New(inner, 16, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, catalog.Insert(ctx, newRecord("abc")))

	time.Sleep(50 * time.Millisecond)
	_, err := catalog.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.gets)
}

func TestCache_GetFreshSeesDeletesFromOtherCaches(t *testing.T) {
	shared := memory.New()
	replicaA := cache.New(shared, 16, time.Minute)
	replicaB := cache.New(shared, 16, time.Minute)
	ctx := context.Background()

	require.NoError(t, replicaA.Insert(ctx, newRecord("abc")))
	_, err := replicaB.Get(ctx, "abc")
	require.NoError(t, err)

	require.NoError(t, replicaA.Delete(ctx, "abc"))

	// B still serves its cached copy until it reads the backing catalog
	_, err = replicaB.Get(ctx, "abc")
	require.NoError(t, err)

	_, err = replicaB.GetFresh(ctx, "abc")
	assert.ErrorIs(t, err, filestore.ErrRecordNotFound)
	assert.Equal(t, 0, replicaB.Len())

	_, err = replicaB.Get(ctx, "abc")
	assert.ErrorIs(t, err, filestore.ErrRecordNotFound)
}

func TestCache_GetFreshRefreshesEntry(t *testing.T) {
	inner := &countingCatalog{Catalog: memory.New()}
	catalog := cache.New(inner, 16, time.Minute)
	ctx := context.Background()
	require.NoError(t, inner.Catalog.Insert(ctx, newRecord("abc")))

	got, err := catalog.GetFresh(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)

	_, err = catalog.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.gets)
	assert.Equal(t, 1, catalog.Len())
}
