// Package kvstore provides a namespaced key-value abstraction with swappable backends.
//
// Every backend honors the same contract: Put overwrites, Get of a missing key
// returns (nil, nil), Delete reports whether the key existed, and an empty
// namespace means DefaultNamespace.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
)

// DefaultNamespace is used when the caller passes an empty namespace.
const DefaultNamespace = "data"

// Value is a JSON-like dictionary stored under a key.
type Value = map[string]any

// Store is the key-value contract shared by all backends.
type Store interface {
	// Put inserts or overwrites key in namespace.
	Put(ctx context.Context, key string, value Value, namespace string) error

	// Get returns the value for key, or nil if absent.
	Get(ctx context.Context, key string, namespace string) (Value, error)

	// GetAll returns every entry of namespace. An empty map is returned for unknown namespaces.
	GetAll(ctx context.Context, namespace string) (map[string]Value, error)

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string, namespace string) (bool, error)
}

// Persister is implemented by backends that can snapshot themselves to a file.
type Persister interface {
	Persist(path string) error
}

func namespaceOr(namespace string) string {
	if namespace == "" {
		return DefaultNamespace
	}
	return namespace
}

// cloneValue deep copies the JSON-like containers of v so stored state cannot be aliased.
func cloneValue(v Value) Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	for k, item := range v {
		out[k] = cloneAny(item)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneValue(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneAny(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []float32:
		return append([]float32(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case map[string]string:
		return maps.Clone(t)
	default:
		return v
	}
}

func encodeJSON(v Value) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return string(raw), nil
}
