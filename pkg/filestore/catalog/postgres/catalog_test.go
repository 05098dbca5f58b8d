package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tendant/simple-files/pkg/filestore"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/files", migrateURL("postgres://u:p@db:5432/files"))
	assert.Equal(t, "pgx5://db/files", migrateURL("postgresql://db/files"))
	assert.Equal(t, "pgx5://db/files", migrateURL("pgx5://db/files"))
}

func TestHandlePostgresError(t *testing.T) {
	err := handlePostgresError("insert", &pgconn.PgError{Code: "23505", ConstraintName: "files_pkey"})
	assert.ErrorIs(t, err, filestore.ErrDuplicateID)

	err = handlePostgresError("get", errors.New("connection refused"))
	assert.ErrorContains(t, err, "database error in get")
	assert.NotErrorIs(t, err, filestore.ErrDuplicateID)
}

// setupTestDB starts PostgreSQL in a container and applies migrations.
// Requires TEST_INTEGRATION to be set.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("files_test"),
		tcpostgres.WithUsername("files"),
		tcpostgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate(dsn, slog.Default()))
	// A second run is a no-op
	require.NoError(t, Migrate(dsn, nil))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestCatalog_Integration(t *testing.T) {
	pool := setupTestDB(t)
	catalog := NewWithPool(pool)
	ctx := context.Background()
	require.NoError(t, catalog.Ping(ctx))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	newRecord := func(id string, created time.Time) *filestore.FileRecord {
		return &filestore.FileRecord{
			ID:          id,
			Filename:    id + ".bin",
			ContentType: "application/octet-stream",
			SizeBytes:   10,
			CreatedAt:   created,
			BlobKey:     filestore.BlobKeyFor(id),
		}
	}

	list, err := catalog.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	require.NoError(t, catalog.Insert(ctx, newRecord("ccc", base.Add(time.Second))))
	require.NoError(t, catalog.Insert(ctx, newRecord("bbb", base)))
	require.NoError(t, catalog.Insert(ctx, newRecord("aaa", base)))

	err = catalog.Insert(ctx, newRecord("aaa", base))
	assert.ErrorIs(t, err, filestore.ErrDuplicateID)

	got, err := catalog.Get(ctx, "bbb")
	require.NoError(t, err)
	assert.Equal(t, "bbb.bin", got.Filename)
	assert.Equal(t, base, got.CreatedAt)

	list, err = catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, []string{list[0].ID, list[1].ID, list[2].ID})

	require.NoError(t, catalog.Delete(ctx, "bbb"))
	assert.ErrorIs(t, catalog.Delete(ctx, "bbb"), filestore.ErrRecordNotFound)
	_, err = catalog.Get(ctx, "bbb")
	assert.ErrorIs(t, err, filestore.ErrRecordNotFound)
}

// stubDB answers every statement with fixed results
type stubDB struct {
	tag    pgconn.CommandTag
	execs  []string
	rowErr error
}

func (s *stubDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, sql)
	return s.tag, nil
}

func (s *stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("connection reset")
}

func (s *stubDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return stubRow{err: s.rowErr}
}

type stubRow struct{ err error }

func (r stubRow) Scan(...any) error { return r.err }

func TestCatalog_OverDBTX(t *testing.T) {
	ctx := context.Background()

	db := &stubDB{tag: pgconn.NewCommandTag("DELETE 0"), rowErr: pgx.ErrNoRows}
	catalog := New(db)

	assert.ErrorIs(t, catalog.Delete(ctx, "missing"), filestore.ErrRecordNotFound)
	_, err := catalog.Get(ctx, "missing")
	assert.ErrorIs(t, err, filestore.ErrRecordNotFound)
	_, err = catalog.List(ctx)
	assert.ErrorContains(t, err, "database error in list")
	assert.NoError(t, catalog.Ping(ctx))

	db.tag = pgconn.NewCommandTag("DELETE 1")
	assert.NoError(t, catalog.Delete(ctx, "present"))
	assert.Len(t, db.execs, 2)
}

func TestCatalog_TransactionIntegration(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	committed := NewWithPool(pool)

	record := &filestore.FileRecord{
		ID:          "in-tx",
		Filename:    "in-tx.bin",
		ContentType: "application/octet-stream",
		SizeBytes:   4,
		CreatedAt:   time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
		BlobKey:     filestore.BlobKeyFor("in-tx"),
	}

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	inTx := New(tx)
	require.NoError(t, inTx.Insert(ctx, record))

	got, err := inTx.Get(ctx, "in-tx")
	require.NoError(t, err)
	assert.Equal(t, record.BlobKey, got.BlobKey)

	// Not visible outside the transaction until commit
	_, err = committed.Get(ctx, "in-tx")
	assert.ErrorIs(t, err, filestore.ErrRecordNotFound)

	require.NoError(t, tx.Rollback(ctx))
	_, err = committed.Get(ctx, "in-tx")
	assert.ErrorIs(t, err, filestore.ErrRecordNotFound)

	tx, err = pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, New(tx).Insert(ctx, record))
	require.NoError(t, tx.Commit(ctx))

	got, err = committed.Get(ctx, "in-tx")
	require.NoError(t, err)
	assert.Equal(t, record.Filename, got.Filename)
}
