package kvstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Zereker/storekit/pkg/errdefs"
)

// Neo4jConfig holds Neo4j connection configuration
type Neo4jConfig struct {
	URI      string `toml:"uri"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	Label    string `toml:"label"`
}

// Validate checks Neo4j configuration.
func (c *Neo4jConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("uri is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}

// Neo4jStore stores each entry as a node (:KVEntry {namespace, key, value}),
// value holding the JSON encoding of the dictionary.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	label    string
	owned    bool
}

var _ Store = (*Neo4jStore)(nil)

// OpenNeo4jStore creates a driver and verifies connectivity.
func OpenNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		driver.Close(ctx)
		return nil, errdefs.Unavailable(err, "failed to verify Neo4j connectivity")
	}

	s, err := NewNeo4jStore(ctx, driver, cfg.Database, cfg.Label)
	if err != nil {
		driver.Close(ctx)
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewNeo4jStore wraps an existing driver. Close does not close driver.
func NewNeo4jStore(ctx context.Context, driver neo4j.DriverWithContext, database, label string) (*Neo4jStore, error) {
	if label == "" {
		label = "KVEntry"
	}
	s := &Neo4jStore{driver: driver, database: database, label: label}

	index := fmt.Sprintf("CREATE INDEX %s_key IF NOT EXISTS FOR (n:%s) ON (n.namespace, n.key)", strings.ToLower(label), label)
	if err := s.runWrite(ctx, index, nil); err != nil {
		return nil, errdefs.Unavailable(err, "failed to ensure neo4j index")
	}
	return s, nil
}

// run executes a read query and returns one map per record
func (s *Neo4jStore) run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("cypher execution failed: %w", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect results: %w", err)
	}

	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.AsMap())
	}
	return rows, nil
}

// runWrite executes a write query in a transaction
func (s *Neo4jStore) runWrite(ctx context.Context, cypher string, params map[string]any) error {
	_, err := s.execWrite(ctx, cypher, params)
	return err
}

// execWrite is runWrite returning the number of deleted nodes
func (s *Neo4jStore) execWrite(ctx context.Context, cypher string, params map[string]any) (int, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return 0, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return 0, err
		}
		return summary.Counters().NodesDeleted(), nil
	})
	if err != nil {
		return 0, err
	}
	n, _ := deleted.(int)
	return n, nil
}

func (s *Neo4jStore) Put(ctx context.Context, key string, value Value, namespace string) error {
	raw, err := encodeJSON(value)
	if err != nil {
		return err
	}

	cypher := fmt.Sprintf(`
		MERGE (n:%s {namespace: $namespace, key: $key})
		SET n.value = $value
	`, s.label)

	err = s.runWrite(ctx, cypher, map[string]any{
		"namespace": namespaceOr(namespace),
		"key":       key,
		"value":     raw,
	})
	if err != nil {
		return errdefs.Unavailable(err, "neo4j put")
	}
	return nil
}

func (s *Neo4jStore) Get(ctx context.Context, key string, namespace string) (Value, error) {
	cypher := fmt.Sprintf(`
		MATCH (n:%s {namespace: $namespace, key: $key})
		RETURN n.value AS value
		LIMIT 1
	`, s.label)

	rows, err := s.run(ctx, cypher, map[string]any{"namespace": namespaceOr(namespace), "key": key})
	if err != nil {
		return nil, errdefs.Unavailable(err, "neo4j get")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	raw, _ := rows[0]["value"].(string)
	return decodeValue([]byte(raw))
}

func (s *Neo4jStore) GetAll(ctx context.Context, namespace string) (map[string]Value, error) {
	cypher := fmt.Sprintf(`
		MATCH (n:%s {namespace: $namespace})
		RETURN n.key AS key, n.value AS value
	`, s.label)

	rows, err := s.run(ctx, cypher, map[string]any{"namespace": namespaceOr(namespace)})
	if err != nil {
		return nil, errdefs.Unavailable(err, "neo4j get all")
	}

	out := make(map[string]Value, len(rows))
	for _, row := range rows {
		key, _ := row["key"].(string)
		raw, _ := row["value"].(string)
		value, err := decodeValue([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func (s *Neo4jStore) Delete(ctx context.Context, key string, namespace string) (bool, error) {
	cypher := fmt.Sprintf(`
		MATCH (n:%s {namespace: $namespace, key: $key})
		DETACH DELETE n
	`, s.label)

	n, err := s.execWrite(ctx, cypher, map[string]any{"namespace": namespaceOr(namespace), "key": key})
	if err != nil {
		return false, errdefs.Unavailable(err, "neo4j delete")
	}
	return n > 0, nil
}

// Health checks Neo4j connection
func (s *Neo4jStore) Health(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close closes the driver if the store created it.
func (s *Neo4jStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.driver.Close(context.Background())
}
