package http

import (
	"bytes"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/storekit/pkg/errdefs"
	"github.com/Zereker/storekit/pkg/genkit"
	"github.com/Zereker/storekit/pkg/schema"
	"github.com/Zereker/storekit/pkg/storage"
)

type testAPI struct {
	t       *testing.T
	hertz   *server.Hertz
	storage *storage.Context
}

func newTestAPI(t *testing.T, opts ...Option) *testAPI {
	sc, err := storage.FromDefaults(t.Context(), storage.Config{})
	require.NoError(t, err)

	h := server.New()
	NewHandler(sc, opts...).RegisterRoutes(h)
	return &testAPI{t: t, hertz: h, storage: sc}
}

func (a *testAPI) do(method, url string, body any) (int, Response) {
	a.t.Helper()

	var reqBody *ut.Body
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reqBody = &ut.Body{Body: bytes.NewReader(raw), Len: len(raw)}
	}

	w := ut.PerformRequest(a.hertz.Engine, method, url, reqBody,
		ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()

	var out Response
	require.NoError(a.t, json.Unmarshal(resp.Body(), &out), string(resp.Body()))
	return resp.StatusCode(), out
}

// decode re-reads a response payload into v.
func decode(t *testing.T, data any, v any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func node(id, text, refDocID string, vec ...float32) schema.Node {
	n := schema.NewTextNode(id, text, refDocID)
	n.Embedding = vec
	return n
}

func TestVectors_AddQueryDelete(t *testing.T) {
	api := newTestAPI(t)

	status, resp := api.do("POST", "/api/v1/vectors/add", AddVectorsRequest{
		Nodes:          []schema.Node{node("a", "cat", "doc1", 1, 0), node("b", "dog", "doc2", 0, 1)},
		StoreDocuments: true,
	})
	require.Equal(t, stdhttp.StatusOK, status, resp.Error)

	status, resp = api.do("POST", "/api/v1/vectors/query", QueryRequest{
		QueryEmbedding: []float32{1, 0},
		SimilarityTopK: 1,
	})
	require.Equal(t, stdhttp.StatusOK, status, resp.Error)

	var res schema.VectorStoreQueryResult
	decode(t, resp.Data, &res)
	assert.Equal(t, []string{"a"}, res.IDs)
	assert.Equal(t, "cat", res.Nodes[0].Text)
	assert.InDelta(t, 1.0, res.Similarities[0], 1e-6)

	status, _ = api.do("DELETE", "/api/v1/vectors/ref/doc1", nil)
	require.Equal(t, stdhttp.StatusOK, status)

	_, resp = api.do("POST", "/api/v1/vectors/query", QueryRequest{QueryEmbedding: []float32{1, 0}, SimilarityTopK: 5})
	decode(t, resp.Data, &res)
	assert.Equal(t, []string{"b"}, res.IDs)

	// documents were stored alongside and survive a vector-only delete
	status, _ = api.do("GET", "/api/v1/docs/a", nil)
	assert.Equal(t, stdhttp.StatusOK, status)
}

func TestVectors_InvalidQuery(t *testing.T) {
	api := newTestAPI(t)

	status, resp := api.do("POST", "/api/v1/vectors/query", QueryRequest{QueryEmbedding: []float32{1, 0}})
	assert.Equal(t, stdhttp.StatusBadRequest, status)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "similarity_top_k")

	status, _ = api.do("POST", "/api/v1/vectors/query", QueryRequest{QueryText: "cat", SimilarityTopK: 1})
	assert.Equal(t, stdhttp.StatusBadRequest, status, "query_text without an embedder")
}

func TestVectors_QueryText(t *testing.T) {
	mock := genkit.InitForTest(t.Context(), genkit.DefaultMockConfig())
	mock.SetVector("test-embedding", "cat", []float32{1, 0, 0})
	mock.SetVector("test-embedding", "feline", []float32{1, 0, 0})
	mock.SetVector("test-embedding", "dog", []float32{0, 1, 0})

	api := newTestAPI(t, WithEmbedder(genkit.NewEmbedder(genkit.Genkit(), "mock/test-embedding", 3)))

	status, resp := api.do("POST", "/api/v1/vectors/add", AddVectorsRequest{
		Nodes: []schema.Node{schema.NewTextNode("a", "cat", ""), schema.NewTextNode("b", "dog", "")},
	})
	require.Equal(t, stdhttp.StatusOK, status, resp.Error)

	status, resp = api.do("POST", "/api/v1/vectors/query", QueryRequest{QueryText: "feline", SimilarityTopK: 1})
	require.Equal(t, stdhttp.StatusOK, status, resp.Error)

	var res schema.VectorStoreQueryResult
	decode(t, resp.Data, &res)
	assert.Equal(t, []string{"a"}, res.IDs)
}

func TestDocs(t *testing.T) {
	api := newTestAPI(t)

	req := AddDocumentsRequest{Nodes: []schema.Node{
		schema.NewTextNode("n1", "one", "doc1"),
		schema.NewTextNode("n2", "two", "doc1"),
	}}
	status, resp := api.do("POST", "/api/v1/docs", req)
	require.Equal(t, stdhttp.StatusOK, status, resp.Error)

	status, _ = api.do("POST", "/api/v1/docs", req)
	assert.Equal(t, stdhttp.StatusConflict, status)

	status, resp = api.do("GET", "/api/v1/docs/n1", nil)
	require.Equal(t, stdhttp.StatusOK, status)
	var got schema.Node
	decode(t, resp.Data, &got)
	assert.Equal(t, "one", got.Text)

	status, resp = api.do("GET", "/api/v1/ref_docs/doc1", nil)
	require.Equal(t, stdhttp.StatusOK, status)
	var info struct {
		NodeIDs []string `json:"node_ids"`
	}
	decode(t, resp.Data, &info)
	assert.Equal(t, []string{"n1", "n2"}, info.NodeIDs)

	status, _ = api.do("DELETE", "/api/v1/docs/n1", nil)
	assert.Equal(t, stdhttp.StatusOK, status)
	status, _ = api.do("DELETE", "/api/v1/docs/n1", nil)
	assert.Equal(t, stdhttp.StatusNotFound, status)
	status, _ = api.do("GET", "/api/v1/docs/missing", nil)
	assert.Equal(t, stdhttp.StatusNotFound, status)
	status, _ = api.do("GET", "/api/v1/ref_docs/missing", nil)
	assert.Equal(t, stdhttp.StatusNotFound, status)
}

func TestRefDocs_DeleteCascadesIntoVectors(t *testing.T) {
	api := newTestAPI(t)
	ctx := t.Context()

	nodes := []schema.Node{node("n1", "one", "doc1", 1, 0), node("n2", "two", "doc2", 0, 1)}
	require.NoError(t, api.storage.DocStore.AddDocuments(ctx, nodes, false))
	_, err := api.storage.VectorStore.Add(ctx, nodes)
	require.NoError(t, err)

	status, _ := api.do("DELETE", "/api/v1/ref_docs/doc1", nil)
	require.Equal(t, stdhttp.StatusOK, status)

	res, err := api.storage.VectorStore.Query(ctx, schema.VectorStoreQuery{QueryEmbedding: []float32{1, 0}, SimilarityTopK: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"n2"}, res.IDs)

	exists, err := api.storage.DocStore.DocumentExists(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIndexStructs(t *testing.T) {
	api := newTestAPI(t)

	is := schema.NewIndexStruct(schema.IndexStructList)
	is.AddNode("n1", "")
	status, resp := api.do("PUT", "/api/v1/index_structs", is)
	require.Equal(t, stdhttp.StatusOK, status, resp.Error)

	status, resp = api.do("GET", "/api/v1/index_structs/"+is.IndexID, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	var got schema.IndexStruct
	decode(t, resp.Data, &got)
	assert.Equal(t, []string{"n1"}, got.NodeIDs)

	status, _ = api.do("GET", "/api/v1/index_structs/unknown", nil)
	assert.Equal(t, stdhttp.StatusNotFound, status)

	status, _ = api.do("PUT", "/api/v1/index_structs", schema.IndexStruct{})
	assert.Equal(t, stdhttp.StatusBadRequest, status)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "storekit_test_total", Help: "test"}))
	api := newTestAPI(t, WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	status, resp := api.do("GET", "/health", nil)
	require.Equal(t, stdhttp.StatusOK, status)
	assert.True(t, resp.Success)

	w := ut.PerformRequest(api.hertz.Engine, "GET", "/metrics", nil)
	assert.Equal(t, stdhttp.StatusOK, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "storekit_test_total")
}

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		errdefs.Query("bad"):                              stdhttp.StatusBadRequest,
		errdefs.DimensionMismatch(2, 3):                   stdhttp.StatusBadRequest,
		errdefs.NotFound("doc", "x"):                      stdhttp.StatusNotFound,
		errdefs.Duplicate("doc", "x"):                     stdhttp.StatusConflict,
		errdefs.Unavailable(errors.New("dial"), "search"): stdhttp.StatusServiceUnavailable,
		errors.New("boom"):                                stdhttp.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusOf(err), err.Error())
	}
}
