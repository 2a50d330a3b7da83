package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Zereker/storekit/pkg/errdefs"
)

// SQLiteConfig configures the file-backed SQLite store.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// Validate checks SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// SQLiteStore implements Store on a single kv_store table.
type SQLiteStore struct {
	db     *sql.DB
	owned  bool
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (or creates) the database file and ensures the schema.
func OpenSQLiteStore(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// single writer, sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteStore wraps an existing handle. Close does not close db.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("module", "kvstore.sqlite"),
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS kv_store (
    namespace TEXT NOT NULL,
    key       TEXT NOT NULL,
    value     TEXT NOT NULL,
    PRIMARY KEY (namespace, key)
);`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value Value, namespace string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	query := `
INSERT INTO kv_store (namespace, key, value) VALUES (?, ?, ?)
ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, query, namespaceOr(namespace), key, string(raw)); err != nil {
		return errdefs.Unavailable(err, "sqlite put")
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string, namespace string) (Value, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE namespace = ? AND key = ?`,
		namespaceOr(namespace), key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Unavailable(err, "sqlite get")
	}
	return decodeValue([]byte(raw))
}

func (s *SQLiteStore) GetAll(ctx context.Context, namespace string) (map[string]Value, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv_store WHERE namespace = ?`, namespaceOr(namespace))
	if err != nil {
		return nil, errdefs.Unavailable(err, "sqlite get all")
	}
	defer rows.Close()

	out := make(map[string]Value)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, errdefs.Unavailable(err, "sqlite scan")
		}
		value, err := decodeValue([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Unavailable(err, "sqlite rows")
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string, namespace string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE namespace = ? AND key = ?`, namespaceOr(namespace), key)
	if err != nil {
		return false, errdefs.Unavailable(err, "sqlite delete")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errdefs.Unavailable(err, "sqlite rows affected")
	}
	return n > 0, nil
}

// Close releases the database if the store opened it.
func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	s.logger.Debug("closing sqlite kv store")
	return s.db.Close()
}

func decodeValue(raw []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	if v == nil {
		v = Value{}
	}
	return v, nil
}
