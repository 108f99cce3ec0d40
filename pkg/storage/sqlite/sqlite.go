// Package sqlite provides a single-file SQLite implementation of the storage backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/RuFFyGTLP/TC/pkg/storage"
	"github.com/RuFFyGTLP/TC/pkg/storage/sqlite/migrations"
)

// Store implements storage.Backend on a SQLite database file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the database at path, creating parent directories and running
// pending migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Save inserts or replaces a record.
func (s *Store) Save(ctx context.Context, collection string, rec *storage.Record) error {
	if err := storage.ValidateRecord(collection, rec); err != nil {
		return err
	}

	meta := rec.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return &storage.SerializationError{Operation: "marshal", Cause: err}
	}

	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (collection, key, type, content, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET
			type = excluded.type,
			content = excluded.content,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, collection, rec.Key, rec.Type, rec.Content, string(metaJSON), updated.Format(time.RFC3339Nano))
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Get retrieves a record by key.
func (s *Store) Get(ctx context.Context, collection, key string) (*storage.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, type, content, metadata, updated_at FROM records
		WHERE collection = ? AND key = ?
	`, collection, key)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{Collection: collection, Key: key}
	}
	return rec, err
}

// GetAll returns matching records ordered by key. Type queries hit the
// type index; metadata queries are filtered after decoding.
func (s *Store) GetAll(ctx context.Context, collection string, q *storage.Query) ([]*storage.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if q != nil && q.Index == storage.IndexType {
		rows, err = s.db.QueryContext(ctx, `
			SELECT key, type, content, metadata, updated_at FROM records
			WHERE collection = ? AND type = ? ORDER BY key
		`, collection, q.Value)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT key, type, content, metadata, updated_at FROM records
			WHERE collection = ? ORDER BY key
		`, collection)
	}
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	defer rows.Close()

	var out []*storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if q.Matches(rec) {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	return out, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE collection = ? AND key = ?", collection, key); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Clear removes every record of the collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE collection = ?", collection); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*storage.Record, error) {
	var (
		rec      storage.Record
		metaJSON string
		updated  string
	)
	if err := row.Scan(&rec.Key, &rec.Type, &rec.Content, &metaJSON, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
			return nil, &storage.SerializationError{Operation: "unmarshal", Cause: err}
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

var _ storage.Backend = (*Store)(nil)
