package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	stdhttp "net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/route"

	"github.com/Zereker/storekit/pkg/errdefs"
	"github.com/Zereker/storekit/pkg/genkit"
	"github.com/Zereker/storekit/pkg/log"
	"github.com/Zereker/storekit/pkg/schema"
	"github.com/Zereker/storekit/pkg/storage"
)

// Handler handles HTTP API requests
type Handler struct {
	logger   *slog.Logger
	storage  *storage.Context
	embedder genkit.Embedder
	metrics  stdhttp.Handler

	metricsPath string
}

// Option configures a Handler.
type Option func(*Handler)

// WithEmbedder enables query_text and embedding of nodes sent without vectors.
func WithEmbedder(e genkit.Embedder) Option {
	return func(h *Handler) { h.embedder = e }
}

// WithMetricsHandler serves m on GET /metrics.
func WithMetricsHandler(m stdhttp.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithMetricsPath moves the metrics endpoint away from /metrics.
func WithMetricsPath(path string) Option {
	return func(h *Handler) {
		if path != "" {
			h.metricsPath = path
		}
	}
}

// NewHandler creates a new HTTP handler
func NewHandler(sc *storage.Context, opts ...Option) *Handler {
	h := &Handler{
		logger:      log.Logger("http.handler"),
		storage:     sc,
		metricsPath: "/metrics",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AddVectorsRequest is the body of POST /api/v1/vectors/add.
type AddVectorsRequest struct {
	Nodes []schema.Node `json:"nodes"`

	// StoreDocuments also writes the nodes into the document store.
	StoreDocuments bool `json:"store_documents,omitempty"`
}

// QueryRequest is the body of POST /api/v1/vectors/query.
type QueryRequest struct {
	QueryEmbedding []float32               `json:"query_embedding,omitempty"`
	QueryText      string                  `json:"query_text,omitempty"`
	SimilarityTopK int                     `json:"similarity_top_k"`
	Filters        *schema.MetadataFilters `json:"filters,omitempty"`
}

// AddDocumentsRequest is the body of POST /api/v1/docs.
type AddDocumentsRequest struct {
	Nodes       []schema.Node `json:"nodes"`
	AllowUpdate bool          `json:"allow_update"`
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r route.IRoutes) {
	// Vector operations
	r.POST("/api/v1/vectors/add", h.AddVectors)
	r.POST("/api/v1/vectors/query", h.QueryVectors)
	r.DELETE("/api/v1/vectors/ref/:ref_doc_id", h.DeleteVectors)

	// Document store
	r.POST("/api/v1/docs", h.AddDocuments)
	r.GET("/api/v1/docs/:id", h.GetDocument)
	r.DELETE("/api/v1/docs/:id", h.DeleteDocument)
	r.GET("/api/v1/ref_docs/:ref_doc_id", h.GetRefDoc)
	r.DELETE("/api/v1/ref_docs/:ref_doc_id", h.DeleteRefDoc)

	// Index store
	r.PUT("/api/v1/index_structs", h.PutIndexStruct)
	r.GET("/api/v1/index_structs/:id", h.GetIndexStruct)

	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET(h.metricsPath, adaptor.HertzHandler(h.metrics))
	}
}

// AddVectors handles POST /api/v1/vectors/add
func (h *Handler) AddVectors(ctx context.Context, c *app.RequestContext) {
	var req AddVectorsRequest
	if !h.bind(c, &req) {
		return
	}

	nodes, err := h.embedMissing(ctx, req.Nodes)
	if err != nil {
		h.fail(c, "embed nodes", err)
		return
	}

	ids, err := h.storage.VectorStore.Add(ctx, nodes)
	if err != nil {
		h.fail(c, "add vectors", err)
		return
	}

	if req.StoreDocuments {
		for i := range nodes {
			nodes[i].ID = ids[i]
		}
		if err := h.storage.DocStore.AddDocuments(ctx, nodes, true); err != nil {
			h.fail(c, "add documents", err)
			return
		}
	}

	h.ok(c, map[string]any{"ids": ids})
}

// QueryVectors handles POST /api/v1/vectors/query
func (h *Handler) QueryVectors(ctx context.Context, c *app.RequestContext) {
	var req QueryRequest
	if !h.bind(c, &req) {
		return
	}

	embedding := req.QueryEmbedding
	if len(embedding) == 0 && req.QueryText != "" {
		if h.embedder == nil {
			h.writeError(c, stdhttp.StatusBadRequest, "query_text requires an embedder")
			return
		}
		var err error
		if embedding, err = h.embedder.Embed(ctx, req.QueryText); err != nil {
			h.fail(c, "embed query", err)
			return
		}
	}

	res, err := h.storage.VectorStore.Query(ctx, schema.VectorStoreQuery{
		QueryEmbedding: embedding,
		SimilarityTopK: req.SimilarityTopK,
		Filters:        req.Filters,
	})
	if err != nil {
		h.fail(c, "query vectors", err)
		return
	}

	h.ok(c, res)
}

// DeleteVectors handles DELETE /api/v1/vectors/ref/:ref_doc_id
func (h *Handler) DeleteVectors(ctx context.Context, c *app.RequestContext) {
	refDocID := c.Param("ref_doc_id")
	if err := h.storage.VectorStore.Delete(ctx, refDocID); err != nil {
		h.fail(c, "delete vectors", err)
		return
	}
	h.ok(c, map[string]string{"deleted": refDocID})
}

// AddDocuments handles POST /api/v1/docs
func (h *Handler) AddDocuments(ctx context.Context, c *app.RequestContext) {
	var req AddDocumentsRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.storage.DocStore.AddDocuments(ctx, req.Nodes, req.AllowUpdate); err != nil {
		h.fail(c, "add documents", err)
		return
	}
	h.ok(c, map[string]int{"added": len(req.Nodes)})
}

// GetDocument handles GET /api/v1/docs/:id
func (h *Handler) GetDocument(ctx context.Context, c *app.RequestContext) {
	node, err := h.storage.DocStore.GetDocument(ctx, c.Param("id"), true)
	if err != nil {
		h.fail(c, "get document", err)
		return
	}
	h.ok(c, node)
}

// DeleteDocument handles DELETE /api/v1/docs/:id
func (h *Handler) DeleteDocument(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	if err := h.storage.DocStore.DeleteDocument(ctx, id, true, true); err != nil {
		h.fail(c, "delete document", err)
		return
	}
	h.ok(c, map[string]string{"deleted": id})
}

// GetRefDoc handles GET /api/v1/ref_docs/:ref_doc_id
func (h *Handler) GetRefDoc(ctx context.Context, c *app.RequestContext) {
	refDocID := c.Param("ref_doc_id")
	info, err := h.storage.DocStore.GetRefDocInfo(ctx, refDocID)
	if err != nil {
		h.fail(c, "get ref doc", err)
		return
	}
	if info == nil {
		h.fail(c, "get ref doc", errdefs.NotFound("ref doc", refDocID))
		return
	}
	h.ok(c, info)
}

// DeleteRefDoc handles DELETE /api/v1/ref_docs/:ref_doc_id, vectors included.
func (h *Handler) DeleteRefDoc(ctx context.Context, c *app.RequestContext) {
	refDocID := c.Param("ref_doc_id")
	if err := h.storage.DeleteRefDoc(ctx, refDocID); err != nil {
		h.fail(c, "delete ref doc", err)
		return
	}
	h.ok(c, map[string]string{"deleted": refDocID})
}

// PutIndexStruct handles PUT /api/v1/index_structs
func (h *Handler) PutIndexStruct(ctx context.Context, c *app.RequestContext) {
	var is schema.IndexStruct
	if !h.bind(c, &is) {
		return
	}
	if err := h.storage.IndexStore.AddIndexStruct(ctx, is); err != nil {
		h.fail(c, "put index struct", err)
		return
	}
	h.ok(c, map[string]string{"index_id": is.IndexID})
}

// GetIndexStruct handles GET /api/v1/index_structs/:id
func (h *Handler) GetIndexStruct(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	is, err := h.storage.IndexStore.GetIndexStruct(ctx, id)
	if err != nil {
		h.fail(c, "get index struct", err)
		return
	}
	if is == nil {
		h.fail(c, "get index struct", errdefs.NotFound("index struct", id))
		return
	}
	h.ok(c, is)
}

// Health handles GET /health
func (h *Handler) Health(ctx context.Context, c *app.RequestContext) {
	h.ok(c, map[string]string{
		"status":   "healthy",
		"index_id": h.storage.VectorStore.IndexID(),
	})
}

// embedMissing fills in embeddings for nodes sent without one.
func (h *Handler) embedMissing(ctx context.Context, nodes []schema.Node) ([]schema.Node, error) {
	if h.embedder == nil {
		return nodes, nil
	}
	out := make([]schema.Node, len(nodes))
	for i, n := range nodes {
		if len(n.Embedding) == 0 {
			vec, err := h.embedder.Embed(ctx, n.Content())
			if err != nil {
				return nil, err
			}
			n.Embedding = vec
		}
		out[i] = n
	}
	return out, nil
}

func (h *Handler) bind(c *app.RequestContext, v any) bool {
	if err := json.Unmarshal(c.Request.Body(), v); err != nil {
		h.writeError(c, stdhttp.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) ok(c *app.RequestContext, data any) {
	c.JSON(stdhttp.StatusOK, Response{Success: true, Data: data})
}

func (h *Handler) fail(c *app.RequestContext, op string, err error) {
	status := StatusOf(err)
	if status >= stdhttp.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err)
	} else {
		h.logger.Debug(op+" rejected", "status", status, "error", err)
	}
	h.writeError(c, status, err.Error())
}

func (h *Handler) writeError(c *app.RequestContext, status int, message string) {
	c.JSON(status, Response{Success: false, Error: message})
}

// StatusOf maps the error taxonomy onto HTTP status codes.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrQuery), errors.Is(err, errdefs.ErrDimensionMismatch):
		return stdhttp.StatusBadRequest
	case errors.Is(err, errdefs.ErrNotFound):
		return stdhttp.StatusNotFound
	case errors.Is(err, errdefs.ErrDuplicate):
		return stdhttp.StatusConflict
	case errors.Is(err, errdefs.ErrStoreUnavailable):
		return stdhttp.StatusServiceUnavailable
	default:
		return stdhttp.StatusInternalServerError
	}
}
