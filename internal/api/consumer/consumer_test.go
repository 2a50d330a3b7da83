package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/storekit/pkg/mq"
	"github.com/Zereker/storekit/pkg/schema"
	"github.com/Zereker/storekit/pkg/storage"
)

func newStorage(t *testing.T) *storage.Context {
	sc, err := storage.FromDefaults(t.Context(), storage.Config{})
	require.NoError(t, err)

	n := schema.NewTextNode("n1", "text", "doc1")
	n.Embedding = []float32{1, 0}
	require.NoError(t, sc.DocStore.AddDocuments(t.Context(), []schema.Node{n}, false))
	_, err = sc.VectorStore.Add(t.Context(), []schema.Node{n})
	require.NoError(t, err)
	return sc
}

func TestHandle_DeleteRefDoc(t *testing.T) {
	sc := newStorage(t)
	c, err := NewConsumer(sc, Config{})
	require.NoError(t, err)

	require.NoError(t, c.Handle(t.Context(), "commands", []byte(`{"type":"ref_doc.delete","ref_doc_id":"doc1"}`)))

	exists, err := sc.DocStore.RefDocExists(t.Context(), "doc1")
	require.NoError(t, err)
	assert.False(t, exists)

	res, err := sc.VectorStore.Query(t.Context(), schema.VectorStoreQuery{QueryEmbedding: []float32{1, 0}, SimilarityTopK: 1})
	require.NoError(t, err)
	assert.Zero(t, res.Len())
}

func TestHandle_Invalid(t *testing.T) {
	c, err := NewConsumer(newStorage(t), Config{})
	require.NoError(t, err)

	assert.Error(t, c.Handle(t.Context(), "commands", []byte(`not json`)))
	assert.Error(t, c.Handle(t.Context(), "commands", []byte(`{"type":"ref_doc.purge","ref_doc_id":"doc1"}`)))
	assert.Error(t, c.Handle(t.Context(), "commands", []byte(`{"type":"ref_doc.delete"}`)))
}

func TestSubscribe_InMemoryQueue(t *testing.T) {
	sc := newStorage(t)
	c, err := NewConsumer(sc, Config{})
	require.NoError(t, err)

	q := mq.NewInMemoryQueue()
	require.NoError(t, c.Subscribe(q, "storekit.commands"))
	require.NoError(t, q.Publish("storekit.commands", []byte(`{"type":"ref_doc.delete","ref_doc_id":"doc1"}`)))

	exists, err := sc.DocStore.DocumentExists(t.Context(), "n1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConsumer_Disabled(t *testing.T) {
	c, err := NewConsumer(newStorage(t), Config{Kafka: mq.KafkaConfig{Enabled: false, CommandsTopic: "cmds"}})
	require.NoError(t, err)
	assert.NoError(t, c.Start(t.Context()))
	assert.NoError(t, c.Stop())
}
