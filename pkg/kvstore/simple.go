package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// SimpleStore is an in-memory Store that can be persisted to a JSON file.
type SimpleStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Value
}

var (
	_ Store     = (*SimpleStore)(nil)
	_ Persister = (*SimpleStore)(nil)
)

// NewSimpleStore creates an empty in-memory store.
func NewSimpleStore() *SimpleStore {
	return &SimpleStore{data: make(map[string]map[string]Value)}
}

// LoadSimpleStore reads a store previously written by Persist.
// A missing file yields an empty store.
func LoadSimpleStore(path string) (*SimpleStore, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewSimpleStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read kv store %s: %w", path, err)
	}

	s := NewSimpleStore()
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decode kv store %s: %w", path, err)
	}
	if s.data == nil {
		s.data = make(map[string]map[string]Value)
	}
	return s, nil
}

func (s *SimpleStore) Put(ctx context.Context, key string, value Value, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	namespace = namespaceOr(namespace)
	stored := cloneValue(value)
	if stored == nil {
		stored = Value{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.data[namespace]
	if !ok {
		bucket = make(map[string]Value)
		s.data[namespace] = bucket
	}
	bucket[key] = stored
	return nil
}

func (s *SimpleStore) Get(ctx context.Context, key string, namespace string) (Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[namespaceOr(namespace)][key]
	if !ok {
		return nil, nil
	}
	return cloneValue(value), nil
}

func (s *SimpleStore) GetAll(ctx context.Context, namespace string) (map[string]Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.data[namespaceOr(namespace)]
	out := make(map[string]Value, len(bucket))
	for k, v := range bucket {
		out[k] = cloneValue(v)
	}
	return out, nil
}

func (s *SimpleStore) Delete(ctx context.Context, key string, namespace string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	namespace = namespaceOr(namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.data[namespace]
	if _, ok := bucket[key]; !ok {
		return false, nil
	}
	delete(bucket, key)
	return true, nil
}

// Persist writes the full store to path, creating parent directories as needed.
func (s *SimpleStore) Persist(path string) error {
	s.mu.RLock()
	raw, err := json.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode kv store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create persist dir: %w", err)
	}

	// write then rename, readers never see a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write kv store %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
