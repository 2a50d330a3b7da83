package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/storekit/pkg/errdefs"
	"github.com/Zereker/storekit/pkg/schema"
)

// backend returns a constructor whose stores all share one underlying collection.
type backend func(t *testing.T) func(opts Options) Store

func embedded(id, text string, vec ...float32) schema.Node {
	n := schema.NewTextNode(id, text, "")
	n.Embedding = vec
	return n
}

func topK(vec []float32, k int, filters ...schema.MetadataFilter) schema.VectorStoreQuery {
	q := schema.VectorStoreQuery{QueryEmbedding: vec, SimilarityTopK: k}
	if len(filters) > 0 {
		q.Filters = &schema.MetadataFilters{Filters: filters}
	}
	return q
}

func exact(key string, value any) schema.MetadataFilter {
	return schema.MetadataFilter{Key: key, Value: value, FilterType: schema.ExactMatch}
}

func runContract(t *testing.T, newBackend backend) {
	t.Run("example scenario", func(t *testing.T) {
		s := newBackend(t)(Options{})
		ctx := t.Context()

		ids, err := s.Add(ctx, []schema.Node{
			embedded("a", "cat", 1, 0),
			embedded("b", "dog", 0, 1),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)

		res, err := s.Query(ctx, topK([]float32{1, 0}, 1))
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, res.IDs)
		require.Len(t, res.Nodes, 1)
		require.Len(t, res.Similarities, 1)
		assert.Equal(t, "cat", res.Nodes[0].Text)
		assert.Equal(t, "a", res.Nodes[0].ID)
		assert.Nil(t, res.Nodes[0].Embedding)
		assert.InDelta(t, 1.0, res.Similarities[0], 1e-6)
	})

	t.Run("round trip keeps node fields", func(t *testing.T) {
		s := newBackend(t)(Options{})
		ctx := t.Context()

		node := schema.NewTextNode("n1", "hello world", "doc1")
		node.Embedding = []float32{0.6, 0.8}
		node.Metadata = map[string]any{"author": "ann", "page": 3}

		_, err := s.Add(ctx, []schema.Node{node})
		require.NoError(t, err)

		res, err := s.Query(ctx, topK([]float32{0.6, 0.8}, 1))
		require.NoError(t, err)
		require.Equal(t, 1, res.Len())

		got := res.Nodes[0]
		assert.Equal(t, "n1", got.ID)
		assert.Equal(t, "hello world", got.Text)
		assert.Equal(t, "doc1", got.RefDocID)
		assert.Equal(t, schema.NodeTypeText, got.Type)
		assert.Equal(t, "ann", got.Metadata["author"])
		assert.EqualValues(t, 3, got.Metadata["page"])
	})

	t.Run("missing ids are generated in order", func(t *testing.T) {
		s := newBackend(t)(Options{})
		nodes := []schema.Node{embedded("", "x", 1, 0), embedded("fixed", "y", 0, 1)}

		ids, err := s.Add(t.Context(), nodes)
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.NotEmpty(t, ids[0])
		assert.Equal(t, "fixed", ids[1])
		assert.Empty(t, nodes[0].ID, "caller nodes must not be mutated")
	})

	t.Run("empty add", func(t *testing.T) {
		s := newBackend(t)(Options{})
		ids, err := s.Add(t.Context(), nil)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("node without embedding", func(t *testing.T) {
		s := newBackend(t)(Options{})
		_, err := s.Add(t.Context(), []schema.Node{schema.NewTextNode("x", "no vector", "")})
		assert.ErrorIs(t, err, errdefs.ErrQuery)
	})

	t.Run("stores are isolated by index id", func(t *testing.T) {
		open := newBackend(t)
		a := open(Options{StoreInstanceID: "store-a"})
		b := open(Options{StoreInstanceID: "store-b"})
		ctx := t.Context()

		_, err := a.Add(ctx, []schema.Node{embedded("a1", "only a", 1, 0)})
		require.NoError(t, err)

		res, err := b.Query(ctx, topK([]float32{1, 0}, 10))
		require.NoError(t, err)
		assert.Zero(t, res.Len())

		res, err = a.Query(ctx, topK([]float32{1, 0}, 10))
		require.NoError(t, err)
		assert.Equal(t, []string{"a1"}, res.IDs)

		// delete from b does not reach a's entries
		require.NoError(t, b.Delete(ctx, "a1"))
		res, err = a.Query(ctx, topK([]float32{1, 0}, 10))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Len())
	})

	t.Run("equal node ids in different stores are kept apart", func(t *testing.T) {
		open := newBackend(t)
		a := open(Options{StoreInstanceID: "store-a"})
		b := open(Options{StoreInstanceID: "store-b"})
		ctx := t.Context()

		_, err := a.Add(ctx, []schema.Node{embedded("x", "written by a", 1, 0)})
		require.NoError(t, err)
		_, err = b.Add(ctx, []schema.Node{embedded("x", "written by b", 0, 1)})
		require.NoError(t, err)

		res, err := a.Query(ctx, topK([]float32{1, 0}, 10))
		require.NoError(t, err)
		require.Equal(t, []string{"x"}, res.IDs)
		assert.Equal(t, "written by a", res.Nodes[0].Text)

		res, err = b.Query(ctx, topK([]float32{1, 0}, 10))
		require.NoError(t, err)
		require.Equal(t, []string{"x"}, res.IDs)
		assert.Equal(t, "written by b", res.Nodes[0].Text)

		// a's delete leaves b's entry with the same id
		require.NoError(t, a.Delete(ctx, "x"))
		res, err = b.Query(ctx, topK([]float32{1, 0}, 10))
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, res.IDs)

		res, err = a.Query(ctx, topK([]float32{1, 0}, 10))
		require.NoError(t, err)
		assert.Zero(t, res.Len())
	})

	t.Run("delete cascades over ref doc", func(t *testing.T) {
		s := newBackend(t)(Options{})
		ctx := t.Context()

		n1 := schema.NewTextNode("n1", "one", "doc1")
		n1.Embedding = []float32{1, 0}
		n2 := schema.NewTextNode("n2", "two", "doc1")
		n2.Embedding = []float32{0.9, 0.1}
		n3 := schema.NewTextNode("n3", "three", "doc2")
		n3.Embedding = []float32{0.8, 0.2}

		_, err := s.Add(ctx, []schema.Node{n1, n2, n3})
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "doc1"))

		res, err := s.Query(ctx, topK([]float32{1, 0}, 10))
		require.NoError(t, err)
		assert.Equal(t, []string{"n3"}, res.IDs)
	})

	t.Run("node without ref doc is its own source", func(t *testing.T) {
		s := newBackend(t)(Options{})
		ctx := t.Context()

		_, err := s.Add(ctx, []schema.Node{embedded("solo", "self", 1, 0)})
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "solo"))

		res, err := s.Query(ctx, topK([]float32{1, 0}, 10))
		require.NoError(t, err)
		assert.Zero(t, res.Len())
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newBackend(t)(Options{})
		ctx := t.Context()

		require.NoError(t, s.Delete(ctx, "never-added"))
		_, err := s.Add(ctx, []schema.Node{embedded("x", "x", 1, 0)})
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "x"))
		require.NoError(t, s.Delete(ctx, "x"))
	})

	t.Run("filter conjunction", func(t *testing.T) {
		s := newBackend(t)(Options{})
		ctx := t.Context()

		n1 := embedded("1", "first", 1, 0)
		n1.Metadata = map[string]any{"category": "X"}
		n2 := embedded("2", "second", 1, 0)
		n2.Metadata = map[string]any{"category": "Y"}
		_, err := s.Add(ctx, []schema.Node{n1, n2})
		require.NoError(t, err)

		filters := &schema.MetadataFilters{Filters: []schema.MetadataFilter{exact("category", "X")}}
		res, err := s.Query(ctx, schema.VectorStoreQuery{
			QueryEmbedding: []float32{1, 0},
			SimilarityTopK: 10,
			Filters:        filters,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, res.IDs)
		assert.Equal(t, 1, filters.Len(), "caller filters must not be mutated")

		res, err = s.Query(ctx, topK([]float32{1, 0}, 10, exact("category", "X"), exact("category", "Y")))
		require.NoError(t, err)
		assert.Zero(t, res.Len())
	})

	t.Run("top k bound", func(t *testing.T) {
		s := newBackend(t)(Options{})
		ctx := t.Context()

		var nodes []schema.Node
		for i, v := range []float32{1, 0.9, 0.8, 0.7, 0.6} {
			nodes = append(nodes, embedded(string(rune('a'+i)), "n", v, 1-v))
		}
		_, err := s.Add(ctx, nodes)
		require.NoError(t, err)

		res, err := s.Query(ctx, topK([]float32{1, 0}, 2))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, res.IDs)
		assert.Len(t, res.Nodes, 2)
		assert.Len(t, res.Similarities, 2)
		assert.GreaterOrEqual(t, res.Similarities[0], res.Similarities[1])
	})

	t.Run("invalid query", func(t *testing.T) {
		s := newBackend(t)(Options{})

		_, err := s.Query(t.Context(), topK([]float32{1, 0}, 0))
		assert.ErrorIs(t, err, errdefs.ErrQuery)

		_, err = s.Query(t.Context(), topK(nil, 1))
		assert.ErrorIs(t, err, errdefs.ErrQuery)

		_, err = s.Query(t.Context(), topK([]float32{1, 0}, 1, schema.MetadataFilter{Value: "v", FilterType: schema.ExactMatch}))
		assert.ErrorIs(t, err, errdefs.ErrQuery)
	})

	t.Run("unsupported filter type", func(t *testing.T) {
		ctx := t.Context()
		open := newBackend(t)
		fuzzy := schema.MetadataFilter{Key: "category", Value: "X", FilterType: "Fuzzy"}

		lenient := open(Options{StoreInstanceID: "lenient"})
		n := embedded("1", "first", 1, 0)
		n.Metadata = map[string]any{"category": "Y"}
		_, err := lenient.Add(ctx, []schema.Node{n})
		require.NoError(t, err)

		res, err := lenient.Query(ctx, topK([]float32{1, 0}, 10, fuzzy))
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, res.IDs)

		strict := open(Options{StoreInstanceID: "strict", FilterPolicy: FilterPolicyStrict})
		_, err = strict.Query(ctx, topK([]float32{1, 0}, 10, fuzzy))
		assert.ErrorIs(t, err, errdefs.ErrQuery)
	})

	t.Run("text removed from blob is restored", func(t *testing.T) {
		s := newBackend(t)(Options{RemoveTextFromBlob: true})
		ctx := t.Context()

		_, err := s.Add(ctx, []schema.Node{embedded("t", "restored text", 1, 0)})
		require.NoError(t, err)

		res, err := s.Query(ctx, topK([]float32{1, 0}, 1))
		require.NoError(t, err)
		require.Equal(t, 1, res.Len())
		assert.Equal(t, "restored text", res.Nodes[0].Text)
	})
}
