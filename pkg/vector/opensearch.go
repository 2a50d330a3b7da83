package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/Zereker/storekit/pkg/errdefs"
	"github.com/Zereker/storekit/pkg/osclient"
	"github.com/Zereker/storekit/pkg/schema"
)

// OpenSearchStore implements Store on an OpenSearch k-NN index.
//
// Stored record:
//
//	{<id>: ..., <embedding>: [...], <text>: ..., <metadata>: {..., node_content, ref_doc_id}, indexId: ...}
//
// The document _id is "<indexId>:<node id>".
type OpenSearchStore struct {
	client *opensearchapi.Client
	opts   Options
	logger *slog.Logger
}

var _ Store = (*OpenSearchStore)(nil)

// NewOpenSearchStore creates a store over client, writing into opts.CollectionName.
// The client is never closed by the store.
func NewOpenSearchStore(client *opensearchapi.Client, opts Options) *OpenSearchStore {
	opts = opts.withDefaults()
	return &OpenSearchStore{
		client: client,
		opts:   opts,
		logger: slog.Default().With(
			"module", "vector.opensearch",
			"index", opts.CollectionName,
			"index_id", opts.StoreInstanceID,
		),
	}
}

func (s *OpenSearchStore) StoresText() bool { return true }

func (s *OpenSearchStore) IndexID() string { return s.opts.StoreInstanceID }

// EnsureIndex creates the k-NN index when it does not exist yet.
// String metadata is mapped as keyword so exact-match filters compare whole values.
func (s *OpenSearchStore) EnsureIndex(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	body := map[string]any{
		"settings": map[string]any{"index": map[string]any{"knn": true}},
		"mappings": map[string]any{
			"dynamic_templates": []map[string]any{{
				"metadata_strings": map[string]any{
					"path_match":         s.opts.MetadataField + ".*",
					"match_mapping_type": "string",
					"mapping":            map[string]any{"type": "keyword"},
				},
			}},
			"properties": map[string]any{
				s.opts.IDField:   map[string]any{"type": "keyword"},
				s.opts.TextField: map[string]any{"type": "text"},
				FilterKeyIndexID: map[string]any{"type": "keyword"},
				s.opts.EmbeddingField: map[string]any{
					"type":      "knn_vector",
					"dimension": dim,
					"method": map[string]any{
						"name":       "hnsw",
						"space_type": "cosinesimil",
						"engine":     "lucene",
					},
				},
				s.opts.MetadataField: map[string]any{
					"properties": map[string]any{
						MetadataKeyNodeContent: map[string]any{"type": "text", "index": false},
						MetadataKeyRefDocID:    map[string]any{"type": "keyword"},
					},
				},
			},
		},
	}
	raw, _ := json.Marshal(body)

	resp, err := s.client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: s.opts.CollectionName,
		Body:  bytes.NewReader(raw),
	})
	if err != nil {
		if osclient.IsAlreadyExists(err) {
			return nil
		}
		return osclient.Classify(err, osclient.StatusCode(resp), "create vector index")
	}

	s.logger.Info("vector index created", "dimension", dim)
	return nil
}

// docID is the document _id of a node, so stores sharing an index never overwrite each other.
func (s *OpenSearchStore) docID(nodeID string) string {
	return s.opts.StoreInstanceID + ":" + nodeID
}

func (s *OpenSearchStore) nodeID(docID string) string {
	return strings.TrimPrefix(docID, s.opts.StoreInstanceID+":")
}

// Add writes all nodes in one bulk request. When any item fails, the items
// that were written are reverted and the call fails: new records are deleted,
// overwritten records get their previous source back.
func (s *OpenSearchStore) Add(ctx context.Context, nodes []schema.Node) ([]string, error) {
	if len(nodes) == 0 {
		return []string{}, nil
	}

	nodes, ids := assignIDs(nodes)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	docIDs := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if len(node.Embedding) == 0 {
			return nil, errdefs.Query("node %s has no embedding", node.ID)
		}
		meta, err := nodeToMetadata(node, s.opts.RemoveTextFromBlob)
		if err != nil {
			return nil, err
		}

		action := map[string]any{"_index": s.opts.CollectionName, "_id": s.docID(node.ID)}
		maps.Copy(action, s.opts.InsertOptions)
		docIDs = append(docIDs, s.docID(node.ID))

		doc := map[string]any{
			s.opts.IDField:        node.ID,
			s.opts.EmbeddingField: node.Embedding,
			s.opts.TextField:      node.Text,
			s.opts.MetadataField:  meta,
			FilterKeyIndexID:      s.opts.StoreInstanceID,
		}

		if err := enc.Encode(map[string]any{"index": action}); err != nil {
			return nil, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode node %s: %w", node.ID, err)
		}
	}

	prior, err := s.snapshot(ctx, docIDs)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Bulk(ctx, opensearchapi.BulkReq{
		Index:  s.opts.CollectionName,
		Body:   &buf,
		Params: opensearchapi.BulkParams{Refresh: "true"},
	})
	if err != nil {
		return nil, osclient.Classify(err, osclient.StatusCode(resp), "bulk index")
	}

	if resp.Errors {
		return nil, s.rollback(ctx, resp, prior)
	}

	s.logger.Debug("nodes added", "count", len(ids))
	return ids, nil
}

// snapshot returns the stored source of the given documents that already exist.
func (s *OpenSearchStore) snapshot(ctx context.Context, docIDs []string) (map[string]json.RawMessage, error) {
	raw, _ := json.Marshal(map[string]any{
		"size":  len(docIDs),
		"query": map[string]any{"ids": map[string]any{"values": docIDs}},
	})

	resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.opts.CollectionName},
		Body:    bytes.NewReader(raw),
	})
	if osclient.StatusCode(resp) == http.StatusNotFound {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, osclient.Classify(err, osclient.StatusCode(resp), "read existing records")
	}

	prior := make(map[string]json.RawMessage, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		prior[hit.ID] = hit.Source
	}
	return prior, nil
}

// rollback reverts the written items of a partially failed bulk request and
// returns the error describing the failures.
func (s *OpenSearchStore) rollback(ctx context.Context, resp *opensearchapi.BulkResp, prior map[string]json.RawMessage) error {
	var (
		written  []string
		failures []string
		status   int
	)
	for _, item := range resp.Items {
		for _, result := range item {
			if result.Error == nil && result.Status < 300 {
				written = append(written, result.ID)
				continue
			}
			if status == 0 {
				status = result.Status
			}
			reason := "unknown"
			if result.Error != nil {
				reason = result.Error.Type + ": " + result.Error.Reason
			}
			failures = append(failures, fmt.Sprintf("%s (%s)", s.nodeID(result.ID), reason))
		}
	}

	failErr := osclient.Classify(
		fmt.Errorf("%d of %d items failed: %s", len(failures), len(resp.Items), strings.Join(failures, "; ")),
		status, "bulk index",
	)

	if len(written) == 0 {
		return failErr
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range written {
		target := map[string]any{"_index": s.opts.CollectionName, "_id": id}
		src, existed := prior[id]
		if !existed {
			if err := enc.Encode(map[string]any{"delete": target}); err != nil {
				return errors.Join(failErr, fmt.Errorf("failed to encode rollback of %s: %w", id, err))
			}
			continue
		}
		if err := enc.Encode(map[string]any{"index": target}); err != nil {
			return errors.Join(failErr, fmt.Errorf("failed to encode rollback of %s: %w", id, err))
		}
		if err := enc.Encode(src); err != nil {
			return errors.Join(failErr, fmt.Errorf("failed to encode rollback of %s: %w", id, err))
		}
	}

	undo, err := s.client.Bulk(ctx, opensearchapi.BulkReq{
		Index:  s.opts.CollectionName,
		Body:   &buf,
		Params: opensearchapi.BulkParams{Refresh: "true"},
	})
	if err != nil {
		s.logger.Error("bulk rollback failed", "ids", written, "error", err)
		return errors.Join(failErr, errdefs.Unavailable(err, "bulk rollback"))
	}
	if undo.Errors {
		s.logger.Error("bulk rollback incomplete", "ids", written)
		return errors.Join(failErr, fmt.Errorf("bulk rollback incomplete for %d items", len(written)))
	}

	s.logger.Warn("bulk index rolled back", "written", len(written), "failed", len(failures))
	return failErr
}

// Delete removes every entry of this store whose ref_doc_id equals refDocID.
// WithDeleteParams values are merged into the delete-by-query body.
func (s *OpenSearchStore) Delete(ctx context.Context, refDocID string, opts ...DeleteOption) error {
	o := buildDeleteOptions(opts)

	body := map[string]any{}
	maps.Copy(body, o.Params)
	body["query"] = map[string]any{
		"bool": map[string]any{
			"filter": []map[string]any{
				{"term": map[string]any{s.opts.MetadataField + "." + MetadataKeyRefDocID: refDocID}},
				{"term": map[string]any{FilterKeyIndexID: s.opts.StoreInstanceID}},
			},
		},
	}
	raw, _ := json.Marshal(body)

	resp, err := s.client.Document.DeleteByQuery(ctx, opensearchapi.DocumentDeleteByQueryReq{
		Indices: []string{s.opts.CollectionName},
		Body:    bytes.NewReader(raw),
		Params:  opensearchapi.DocumentDeleteByQueryParams{Refresh: opensearchapi.ToPointer(true)},
	})
	if err != nil {
		return osclient.Classify(err, osclient.StatusCode(resp), "delete by query")
	}

	s.logger.Debug("ref doc deleted", "ref_doc_id", refDocID, "removed", resp.Deleted)
	return nil
}

// Query runs a k-NN search with the translated filter applied inside the knn clause.
func (s *OpenSearchStore) Query(ctx context.Context, q schema.VectorStoreQuery) (schema.VectorStoreQueryResult, error) {
	if err := validateQuery(q); err != nil {
		return schema.VectorStoreQueryResult{}, err
	}

	clauses, dropped, err := OpenSearchClauses(scopedFilters(q.Filters, s.opts.StoreInstanceID), s.opts.MetadataField)
	if err != nil {
		return schema.VectorStoreQueryResult{}, err
	}
	if err := applyPolicy(s.opts.FilterPolicy, dropped, s.logger); err != nil {
		return schema.VectorStoreQueryResult{}, err
	}

	searchQuery := map[string]any{
		"size":    q.SimilarityTopK,
		"_source": map[string]any{"excludes": []string{s.opts.EmbeddingField}},
		"query": map[string]any{
			"knn": map[string]any{
				s.opts.EmbeddingField: map[string]any{
					"vector": q.QueryEmbedding,
					"k":      q.SimilarityTopK,
					"filter": map[string]any{"bool": map[string]any{"filter": clauses}},
				},
			},
		},
	}
	raw, _ := json.Marshal(searchQuery)

	resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.opts.CollectionName},
		Body:    bytes.NewReader(raw),
	})
	if err != nil {
		return schema.VectorStoreQueryResult{}, osclient.Classify(err, osclient.StatusCode(resp), "knn search")
	}

	result := schema.EmptyResult()
	for _, hit := range resp.Hits.Hits {
		var doc map[string]any
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return schema.VectorStoreQueryResult{}, fmt.Errorf("failed to unmarshal hit %s: %w", hit.ID, err)
		}

		meta, _ := doc[s.opts.MetadataField].(map[string]any)
		text, _ := doc[s.opts.TextField].(string)
		node, err := metadataToNode(meta, text)
		if err != nil {
			return schema.VectorStoreQueryResult{}, fmt.Errorf("decode hit %s: %w", hit.ID, err)
		}

		id, _ := doc[s.opts.IDField].(string)
		if id == "" {
			id = s.nodeID(hit.ID)
		}
		result.Append(node, float64(hit.Score), id)
	}
	return result, nil
}
