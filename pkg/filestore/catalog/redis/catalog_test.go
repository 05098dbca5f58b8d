package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-files/pkg/filestore"
)

func TestIndexMemberOrdersByCreation(t *testing.T) {
	early := &filestore.FileRecord{ID: "zzz", CreatedAt: time.Unix(9, 0)}
	late := &filestore.FileRecord{ID: "aaa", CreatedAt: time.Unix(10, 0)}
	assert.Less(t, indexMember(early), indexMember(late))
}

func TestKeys(t *testing.T) {
	c := NewWithClient(nil, "")
	assert.Equal(t, "filestore:file:abc", c.recordKey("abc"))
	assert.Equal(t, "filestore:files", c.indexKey())
}

// TestCatalog_Integration needs a Redis server. Set REDIS_TEST_ADDR
// (e.g. localhost:6379) to enable it.
func TestCatalog_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("filestore-test-%s", uuid.NewString())
	catalog, err := New(ctx, Config{Addr: addr, Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() {
		keys, _ := catalog.client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			catalog.client.Del(ctx, keys...)
		}
		catalog.Close()
	})

	list, err := catalog.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"ccc", "aaa", "bbb"} {
		require.NoError(t, catalog.Insert(ctx, &filestore.FileRecord{
			ID:          id,
			Filename:    id,
			ContentType: "text/plain",
			SizeBytes:   1,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
			BlobKey:     filestore.BlobKeyFor(id),
		}))
	}

	err = catalog.Insert(ctx, &filestore.FileRecord{ID: "aaa", CreatedAt: base})
	assert.ErrorIs(t, err, filestore.ErrDuplicateID)

	list, err = catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"ccc", "aaa", "bbb"}, []string{list[0].ID, list[1].ID, list[2].ID})

	got, err := catalog.Get(ctx, "aaa")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Second), got.CreatedAt)

	require.NoError(t, catalog.Delete(ctx, "aaa"))
	assert.ErrorIs(t, catalog.Delete(ctx, "aaa"), filestore.ErrRecordNotFound)
	_, err = catalog.Get(ctx, "aaa")
	assert.ErrorIs(t, err, filestore.ErrRecordNotFound)

	list, err = catalog.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
