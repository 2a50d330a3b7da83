package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zereker/storekit/pkg/errdefs"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"ssl_mode"`
	Table    string `toml:"table"`
}

// ConnString returns DSN when set, otherwise builds one from the discrete fields.
func (c *PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// Validate checks PostgreSQL configuration.
func (c *PostgresConfig) Validate() error {
	if c.DSN != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}

// PostgresStore implements Store on a JSONB table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
	owned bool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgresStore creates a pool, pings it and ensures the schema.
func OpenPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, errdefs.Unavailable(err, "failed to create pgx pool")
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, errdefs.Unavailable(err, "failed to ping postgres")
	}

	store, err := NewPostgresStore(connectCtx, pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewPostgresStore wraps an existing pool. Close does not close pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, table string) (*PostgresStore, error) {
	if table == "" {
		table = "kv_store"
	}
	s := &PostgresStore{pool: pool, table: pgx.Identifier{table}.Sanitize()}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return s, nil
}

// ensureSchema creates the kv table if it doesn't exist.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    namespace  TEXT        NOT NULL,
    key        TEXT        NOT NULL,
    value      JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (namespace, key)
);`, s.table)
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// Put inserts or updates a value (UPSERT).
func (s *PostgresStore) Put(ctx context.Context, key string, value Value, namespace string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (namespace, key, value, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (namespace, key)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`, s.table)
	if _, err := s.pool.Exec(ctx, query, namespaceOr(namespace), key, raw); err != nil {
		return errdefs.Unavailable(err, "postgres put")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string, namespace string) (Value, error) {
	var raw []byte
	query := fmt.Sprintf(`SELECT value FROM %s WHERE namespace = $1 AND key = $2`, s.table)
	err := s.pool.QueryRow(ctx, query, namespaceOr(namespace), key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Unavailable(err, "postgres get")
	}
	return decodeValue(raw)
}

func (s *PostgresStore) GetAll(ctx context.Context, namespace string) (map[string]Value, error) {
	query := fmt.Sprintf(`SELECT key, value FROM %s WHERE namespace = $1`, s.table)
	rows, err := s.pool.Query(ctx, query, namespaceOr(namespace))
	if err != nil {
		return nil, errdefs.Unavailable(err, "postgres get all")
	}
	defer rows.Close()

	out := make(map[string]Value)
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, errdefs.Unavailable(err, "postgres scan")
		}
		value, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Unavailable(err, "postgres rows")
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string, namespace string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND key = $2`, s.table)
	tag, err := s.pool.Exec(ctx, query, namespaceOr(namespace), key)
	if err != nil {
		return false, errdefs.Unavailable(err, "postgres delete")
	}
	return tag.RowsAffected() > 0, nil
}

// Close releases the connection pool if the store created it.
func (s *PostgresStore) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}
