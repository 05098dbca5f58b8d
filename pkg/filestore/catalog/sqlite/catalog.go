package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/tendant/simple-files/pkg/filestore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Catalog implements filestore.Catalog on a SQLite database
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

// initSchema applies the embedded migrations in lexicographical order
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readErr := migrationsFS.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("error reading SQL file: %w", readErr)
		}

		slog.Debug("Running migration", "path", path)
		if _, execErr := db.ExecContext(ctx, string(content)); execErr != nil {
			return fmt.Errorf("migration %s: %w", path, execErr)
		}
		return nil
	})
}

// Close closes the underlying database
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Ping checks the database connection
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Catalog) Insert(ctx context.Context, record *filestore.FileRecord) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO files (id, filename, content_type, size_bytes, created_at_ns, blob_key)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.Filename, record.ContentType,
		record.SizeBytes, record.CreatedAt.UnixNano(), record.BlobKey)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %v", filestore.ErrDuplicateID, err)
		}
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*filestore.FileRecord, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, filename, content_type, size_bytes, created_at_ns, blob_key
		 FROM files WHERE id = ?`, id)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, filestore.ErrRecordNotFound
		}
		return nil, fmt.Errorf("get file record: %w", err)
	}
	return record, nil
}

func (c *Catalog) List(ctx context.Context) ([]*filestore.FileRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, filename, content_type, size_bytes, created_at_ns, blob_key
		 FROM files ORDER BY created_at_ns, id`)
	if err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}
	defer rows.Close()

	result := []*filestore.FileRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file record: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}
	return result, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	if n == 0 {
		return filestore.ErrRecordNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*filestore.FileRecord, error) {
	var (
		record    filestore.FileRecord
		createdNs int64
	)
	if err := s.Scan(&record.ID, &record.Filename, &record.ContentType,
		&record.SizeBytes, &createdNs, &record.BlobKey); err != nil {
		return nil, err
	}
	record.CreatedAt = time.Unix(0, createdNs).UTC()
	return &record, nil
}
