package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-files/pkg/filestore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Catalog implements filestore.Catalog using PostgreSQL
type Catalog struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a catalog over an arbitrary connection or transaction
func New(db DBTX) *Catalog {
	return &Catalog{db: db}
}

// NewWithPool creates a catalog backed by a connection pool
func NewWithPool(pool *pgxpool.Pool) *Catalog {
	return &Catalog{db: pool, pool: pool}
}

// Migrate applies the embedded schema migrations to the database at
// databaseURL (postgres:// or postgresql://)
func Migrate(databaseURL string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if logger != nil {
		version, dirty, _ := m.Version()
		logger.Info("Catalog migrations applied", "version", version, "dirty", dirty)
	}
	return nil
}

// migrateURL rewrites a libpq style URL to the scheme registered by the
// pgx/v5 migrate driver
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

func (c *Catalog) Insert(ctx context.Context, record *filestore.FileRecord) error {
	query := `
		INSERT INTO files (id, filename, content_type, size_bytes, created_at, blob_key)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := c.db.Exec(ctx, query,
		record.ID, record.Filename, record.ContentType,
		record.SizeBytes, record.CreatedAt, record.BlobKey)
	if err != nil {
		return handlePostgresError("insert", err)
	}
	return nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*filestore.FileRecord, error) {
	query := `
		SELECT id, filename, content_type, size_bytes, created_at, blob_key
		FROM files WHERE id = $1`

	record, err := scanRecord(c.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, filestore.ErrRecordNotFound
		}
		return nil, handlePostgresError("get", err)
	}
	return record, nil
}

func (c *Catalog) List(ctx context.Context) ([]*filestore.FileRecord, error) {
	query := `
		SELECT id, filename, content_type, size_bytes, created_at, blob_key
		FROM files ORDER BY created_at, id`

	rows, err := c.db.Query(ctx, query)
	if err != nil {
		return nil, handlePostgresError("list", err)
	}
	defer rows.Close()

	result := []*filestore.FileRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, handlePostgresError("list", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list", err)
	}
	return result, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	tag, err := c.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return filestore.ErrRecordNotFound
	}
	return nil
}

// Ping checks the pool connection. Catalogs built with New always succeed.
func (c *Catalog) Ping(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}
	return c.pool.Ping(ctx)
}

func scanRecord(row pgx.Row) (*filestore.FileRecord, error) {
	var record filestore.FileRecord
	err := row.Scan(
		&record.ID, &record.Filename, &record.ContentType,
		&record.SizeBytes, &record.CreatedAt, &record.BlobKey)
	if err != nil {
		return nil, err
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}

func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", filestore.ErrDuplicateID, pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}
