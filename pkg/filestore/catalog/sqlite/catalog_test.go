package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-files/pkg/filestore"
	"github.com/tendant/simple-files/pkg/filestore/catalog/sqlite"
)

func newRecord(id string, created time.Time) *filestore.FileRecord {
	return &filestore.FileRecord{
		ID:          id,
		Filename:    id + ".txt",
		ContentType: "text/plain",
		SizeBytes:   3,
		CreatedAt:   created,
		BlobKey:     filestore.BlobKeyFor(id),
	}
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	catalog, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "catalog.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	require.NoError(t, catalog.Ping(ctx))

	base := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

	t.Run("EmptyList", func(t *testing.T) {
		list, err := catalog.List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("InsertAndGet", func(t *testing.T) {
		require.NoError(t, catalog.Insert(ctx, newRecord("bbb", base)))

		got, err := catalog.Get(ctx, "bbb")
		require.NoError(t, err)
		assert.Equal(t, "bbb.txt", got.Filename)
		assert.Equal(t, int64(3), got.SizeBytes)
		assert.True(t, base.Equal(got.CreatedAt))
	})

	t.Run("DuplicateID", func(t *testing.T) {
		err := catalog.Insert(ctx, newRecord("bbb", base))
		assert.ErrorIs(t, err, filestore.ErrDuplicateID)
	})

	t.Run("ListOrder", func(t *testing.T) {
		require.NoError(t, catalog.Insert(ctx, newRecord("ccc", base.Add(-time.Second))))
		require.NoError(t, catalog.Insert(ctx, newRecord("aaa", base)))

		list, err := catalog.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"ccc", "aaa", "bbb"}, []string{list[0].ID, list[1].ID, list[2].ID})
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, catalog.Delete(ctx, "aaa"))
		assert.ErrorIs(t, catalog.Delete(ctx, "aaa"), filestore.ErrRecordNotFound)

		_, err := catalog.Get(ctx, "aaa")
		assert.ErrorIs(t, err, filestore.ErrRecordNotFound)
	})
}

func TestCatalog_ReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.sqlite")

	first, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Insert(ctx, newRecord("persist", time.Now())))
	require.NoError(t, first.Close())

	second, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, "persist")
	require.NoError(t, err)
	assert.Equal(t, "persist.txt", got.Filename)
}
