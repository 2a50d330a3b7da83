package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract exercises the behavior every backend must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k1", Value{"a": "b", "n": float64(1)}, "ns1"))

		got, err := s.Get(ctx, "k1", "ns1")
		require.NoError(t, err)
		assert.Equal(t, Value{"a": "b", "n": float64(1)}, got)
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k1", Value{"v": "old"}, "ns1"))
		require.NoError(t, s.Put(ctx, "k1", Value{"v": "new"}, "ns1"))

		got, err := s.Get(ctx, "k1", "ns1")
		require.NoError(t, err)
		assert.Equal(t, "new", got["v"])
	})

	t.Run("missing key is not an error", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Get(ctx, "nope", "ns1")
		require.NoError(t, err)
		assert.Nil(t, got)

		existed, err := s.Delete(ctx, "nope", "ns1")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", Value{"ns": "one"}, "ns1"))
		require.NoError(t, s.Put(ctx, "k", Value{"ns": "two"}, "ns2"))

		got, err := s.Get(ctx, "k", "ns1")
		require.NoError(t, err)
		assert.Equal(t, "one", got["ns"])

		existed, err := s.Delete(ctx, "k", "ns2")
		require.NoError(t, err)
		assert.True(t, existed)

		got, err = s.Get(ctx, "k", "ns1")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("empty namespace is the default", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", Value{"x": "y"}, ""))

		got, err := s.Get(ctx, "k", DefaultNamespace)
		require.NoError(t, err)
		assert.Equal(t, "y", got["x"])
	})

	t.Run("delete reports existence once", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", Value{}, "ns1"))

		existed, err := s.Delete(ctx, "k", "ns1")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = s.Delete(ctx, "k", "ns1")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("get all", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "a", Value{"i": float64(1)}, "all"))
		require.NoError(t, s.Put(ctx, "b", Value{"i": float64(2)}, "all"))
		require.NoError(t, s.Put(ctx, "c", Value{"i": float64(3)}, "other"))

		all, err := s.GetAll(ctx, "all")
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Equal(t, float64(2), all["b"]["i"])

		empty, err := s.GetAll(ctx, "unknown")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("nested values", func(t *testing.T) {
		s := newStore(t)
		value := Value{
			"node_ids":   []any{"n1", "n2"},
			"extra_info": map[string]any{"author": "x"},
		}
		require.NoError(t, s.Put(ctx, "ref", value, "ns1"))

		got, err := s.Get(ctx, "ref", "ns1")
		require.NoError(t, err)
		assert.Equal(t, value, got)
	})
}
