package kvstore

import (
	"context"
	"fmt"
	"io"
)

// Backend types accepted by Config.Type.
const (
	TypeSimple     = "simple"
	TypeSQLite     = "sqlite"
	TypeRedis      = "redis"
	TypePostgres   = "postgres"
	TypeOpenSearch = "opensearch"
	TypeNeo4j      = "neo4j"
)

// Config selects and configures a backend.
type Config struct {
	Type       string           `toml:"type"`
	SQLite     SQLiteConfig     `toml:"sqlite"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	OpenSearch OpenSearchConfig `toml:"opensearch"`
	Neo4j      Neo4jConfig      `toml:"neo4j"`
}

// Validate checks the section of the selected backend only.
func (c *Config) Validate() error {
	switch c.Type {
	case "", TypeSimple:
		return nil
	case TypeSQLite:
		return wrapSection("sqlite", c.SQLite.Validate())
	case TypeRedis:
		return wrapSection("redis", c.Redis.Validate())
	case TypePostgres:
		return wrapSection("postgres", c.Postgres.Validate())
	case TypeOpenSearch:
		return wrapSection("opensearch", c.OpenSearch.Validate())
	case TypeNeo4j:
		return wrapSection("neo4j", c.Neo4j.Validate())
	default:
		return fmt.Errorf("unknown kvstore type %q", c.Type)
	}
}

func wrapSection(name string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Open builds the configured backend. The returned store owns its client,
// release it with Close.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", TypeSimple:
		return NewSimpleStore(), nil
	case TypeSQLite:
		return opened(OpenSQLiteStore(ctx, cfg.SQLite))
	case TypeRedis:
		return opened(OpenRedisStore(ctx, cfg.Redis))
	case TypePostgres:
		return opened(OpenPostgresStore(ctx, cfg.Postgres))
	case TypeOpenSearch:
		return opened(OpenOpenSearchStore(ctx, cfg.OpenSearch))
	case TypeNeo4j:
		return opened(OpenNeo4jStore(ctx, cfg.Neo4j))
	default:
		return nil, fmt.Errorf("unknown kvstore type %q", cfg.Type)
	}
}

// opened avoids returning a typed nil inside the interface.
func opened[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes s when the backend holds resources.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
