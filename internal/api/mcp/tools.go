package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Zereker/storekit/pkg/schema"
)

const (
	vectorQueryToolName    = "vector_query"
	vectorQueryDescription = "Find the stored nodes most similar to a query. Pass query_embedding, or query_text when an embedder is configured. Filters are exact matches on node metadata and are combined with AND."

	getDocumentToolName    = "get_document"
	getDocumentDescription = "Fetch one node from the document store by id."

	deleteRefDocToolName    = "delete_ref_doc"
	deleteRefDocDescription = "Delete a reference document with every node and vector derived from it."

	defaultTopK = 5
)

// FilterInput is one exact-match metadata predicate.
type FilterInput struct {
	Key        string `json:"key" jsonschema:"metadata key"`
	Value      any    `json:"value" jsonschema:"value the metadata key must equal"`
	FilterType string `json:"filter_type,omitempty" jsonschema:"filter type, only ExactMatch is supported"`
}

// VectorQueryInput represents the input arguments for the vector_query tool.
type VectorQueryInput struct {
	QueryEmbedding []float32     `json:"query_embedding,omitempty" jsonschema:"query vector"`
	QueryText      string        `json:"query_text,omitempty" jsonschema:"query text, embedded server side"`
	SimilarityTopK int           `json:"similarity_top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
	Filters        []FilterInput `json:"filters,omitempty" jsonschema:"metadata filters"`
}

// Hit is one query result.
type Hit struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	RefDocID string         `json:"ref_doc_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorQueryOutput represents the output of the vector_query tool.
type VectorQueryOutput struct {
	Hits  []Hit `json:"hits"`
	Count int   `json:"count"`
}

// GetDocumentInput represents the input arguments for the get_document tool.
type GetDocumentInput struct {
	ID string `json:"id" jsonschema:"node id"`
}

// DocumentOutput is a stored node without its embedding.
type DocumentOutput struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Text     string         `json:"text"`
	RefDocID string         `json:"ref_doc_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DeleteRefDocInput represents the input arguments for the delete_ref_doc tool.
type DeleteRefDocInput struct {
	RefDocID string `json:"ref_doc_id" jsonschema:"reference document id"`
}

// DeleteRefDocOutput represents the output of the delete_ref_doc tool.
type DeleteRefDocOutput struct {
	RefDocID string `json:"ref_doc_id"`
	Deleted  bool   `json:"deleted"`
}

func (s *Server) handleVectorQuery(ctx context.Context, _ *mcp.CallToolRequest, input VectorQueryInput) (*mcp.CallToolResult, VectorQueryOutput, error) {
	topK := input.SimilarityTopK
	if topK <= 0 {
		topK = defaultTopK
	}

	embedding := input.QueryEmbedding
	if len(embedding) == 0 {
		if input.QueryText == "" {
			return nil, VectorQueryOutput{}, fmt.Errorf("query_embedding or query_text is required")
		}
		if s.embedder == nil {
			return nil, VectorQueryOutput{}, fmt.Errorf("query_text requires an embedder")
		}
		var err error
		if embedding, err = s.embedder.Embed(ctx, input.QueryText); err != nil {
			s.logger.Error("failed to embed query", "error", err)
			return nil, VectorQueryOutput{}, fmt.Errorf("embed query: %w", err)
		}
	}

	q := schema.VectorStoreQuery{QueryEmbedding: embedding, SimilarityTopK: topK}
	if len(input.Filters) > 0 {
		q.Filters = &schema.MetadataFilters{}
		for _, f := range input.Filters {
			ft := schema.FilterType(f.FilterType)
			if ft == "" {
				ft = schema.ExactMatch
			}
			q.Filters.Filters = append(q.Filters.Filters, schema.MetadataFilter{Key: f.Key, Value: f.Value, FilterType: ft})
		}
	}

	s.logger.Debug("vector query", "top_k", topK, "filters", len(input.Filters))

	res, err := s.storage.VectorStore.Query(ctx, q)
	if err != nil {
		return nil, VectorQueryOutput{}, fmt.Errorf("query vector store: %w", err)
	}

	out := VectorQueryOutput{Hits: make([]Hit, 0, res.Len()), Count: res.Len()}
	for i, node := range res.Nodes {
		out.Hits = append(out.Hits, Hit{
			ID:       res.IDs[i],
			Score:    res.Similarities[i],
			Text:     node.Text,
			RefDocID: node.RefDocID,
			Metadata: node.Metadata,
		})
	}
	return nil, out, nil
}

func (s *Server) handleGetDocument(ctx context.Context, _ *mcp.CallToolRequest, input GetDocumentInput) (*mcp.CallToolResult, DocumentOutput, error) {
	node, err := s.storage.DocStore.GetDocument(ctx, input.ID, true)
	if err != nil {
		return nil, DocumentOutput{}, err
	}
	return nil, DocumentOutput{
		ID:       node.ID,
		Type:     string(node.Type),
		Text:     node.Text,
		RefDocID: node.RefDocID,
		Metadata: node.Metadata,
	}, nil
}

func (s *Server) handleDeleteRefDoc(ctx context.Context, _ *mcp.CallToolRequest, input DeleteRefDocInput) (*mcp.CallToolResult, DeleteRefDocOutput, error) {
	if input.RefDocID == "" {
		return nil, DeleteRefDocOutput{}, fmt.Errorf("ref_doc_id is required")
	}

	existed, err := s.storage.DocStore.RefDocExists(ctx, input.RefDocID)
	if err != nil {
		return nil, DeleteRefDocOutput{}, err
	}
	if err := s.storage.DeleteRefDoc(ctx, input.RefDocID); err != nil {
		return nil, DeleteRefDocOutput{}, err
	}

	s.logger.Info("ref doc deleted", "ref_doc_id", input.RefDocID, "existed", existed)
	return nil, DeleteRefDocOutput{RefDocID: input.RefDocID, Deleted: existed}, nil
}
