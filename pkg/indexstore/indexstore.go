// Package indexstore persists index structures on top of a kvstore.Store.
package indexstore

import (
	"context"
	"fmt"

	"github.com/Zereker/storekit/pkg/errdefs"
	"github.com/Zereker/storekit/pkg/kvstore"
	"github.com/Zereker/storekit/pkg/schema"
)

// DefaultNamespace prefixes the index store collection.
const DefaultNamespace = "index_store"

// Store is an index store over any KV backend
type Store struct {
	kv         kvstore.Store
	collection string
}

// New creates an index store. An empty namespace means DefaultNamespace.
func New(kv kvstore.Store, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{kv: kv, collection: namespace + "/data"}
}

// KV returns the underlying key-value store.
func (s *Store) KV() kvstore.Store {
	return s.kv
}

// AddIndexStruct inserts or replaces a structure keyed by its IndexID.
func (s *Store) AddIndexStruct(ctx context.Context, is schema.IndexStruct) error {
	if is.IndexID == "" {
		return errdefs.Query("index_id is required")
	}
	value, err := schema.ToMap(is)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, is.IndexID, value, s.collection); err != nil {
		return fmt.Errorf("put index struct %s: %w", is.IndexID, err)
	}
	return nil
}

// DeleteIndexStruct removes a structure, missing ids are ignored.
func (s *Store) DeleteIndexStruct(ctx context.Context, id string) error {
	if _, err := s.kv.Delete(ctx, id, s.collection); err != nil {
		return fmt.Errorf("delete index struct %s: %w", id, err)
	}
	return nil
}

// GetIndexStruct returns the structure with id, or nil when absent.
// An empty id returns the only stored structure and fails when there are zero or many.
func (s *Store) GetIndexStruct(ctx context.Context, id string) (*schema.IndexStruct, error) {
	if id == "" {
		all, err := s.GetIndexStructs(ctx)
		if err != nil {
			return nil, err
		}
		if len(all) != 1 {
			return nil, errdefs.Query("expected exactly one index struct, found %d", len(all))
		}
		return &all[0], nil
	}

	value, err := s.kv.Get(ctx, id, s.collection)
	if err != nil {
		return nil, fmt.Errorf("get index struct %s: %w", id, err)
	}
	if value == nil {
		return nil, nil
	}
	return decode(value)
}

// GetIndexStructs returns every stored structure.
func (s *Store) GetIndexStructs(ctx context.Context) ([]schema.IndexStruct, error) {
	values, err := s.kv.GetAll(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("get all index structs: %w", err)
	}

	out := make([]schema.IndexStruct, 0, len(values))
	for _, value := range values {
		is, err := decode(value)
		if err != nil {
			return nil, err
		}
		out = append(out, *is)
	}
	return out, nil
}

func decode(value kvstore.Value) (*schema.IndexStruct, error) {
	var is schema.IndexStruct
	if err := schema.Decode(value, &is); err != nil {
		return nil, fmt.Errorf("decode index struct: %w", err)
	}
	return &is, nil
}
