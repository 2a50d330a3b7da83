package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/Zereker/storekit/pkg/errdefs"
	"github.com/Zereker/storekit/pkg/osclient"
)

// OpenSearchConfig configures the OpenSearch-backed KV store.
type OpenSearchConfig struct {
	osclient.Config
	Index string `toml:"index"`
}

// Validate checks OpenSearch configuration
func (c *OpenSearchConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.Index == "" {
		return fmt.Errorf("index is required")
	}
	return nil
}

// GetAll page size.
var openSearchPageSize = 1000

// OpenSearchStore keeps every entry as one document with id <namespace>/<key>.
type OpenSearchStore struct {
	client *opensearchapi.Client
	index  string
}

var _ Store = (*OpenSearchStore)(nil)

type kvDocument struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     Value  `json:"value"`
}

// NewOpenSearchStore wraps client. The index is created lazily by EnsureIndex.
func NewOpenSearchStore(client *opensearchapi.Client, index string) *OpenSearchStore {
	return &OpenSearchStore{client: client, index: index}
}

// OpenOpenSearchStore builds a client from cfg and ensures the index exists.
func OpenOpenSearchStore(ctx context.Context, cfg OpenSearchConfig) (*OpenSearchStore, error) {
	client, err := osclient.New(cfg.Config)
	if err != nil {
		return nil, err
	}
	s := NewOpenSearchStore(client, cfg.Index)
	if err := s.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureIndex creates the index with keyword namespace/key fields and an unindexed value.
func (s *OpenSearchStore) EnsureIndex(ctx context.Context) error {
	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"namespace": map[string]any{"type": "keyword"},
				"key":       map[string]any{"type": "keyword"},
				"value":     map[string]any{"type": "object", "enabled": false},
			},
		},
	}
	body, _ := json.Marshal(mapping)

	resp, err := s.client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: s.index,
		Body:  bytes.NewReader(body),
	})
	if err != nil && !osclient.IsAlreadyExists(err) {
		return osclient.Classify(err, osclient.StatusCode(resp), "create kv index")
	}
	return nil
}

func docID(namespace, key string) string {
	// parts are escaped so "a/b"+"c" and "a"+"b/c" differ, the whole id is
	// escaped again since it is placed in the request path
	id := url.PathEscape(namespaceOr(namespace)) + "/" + url.PathEscape(key)
	return url.PathEscape(id)
}

func (s *OpenSearchStore) Put(ctx context.Context, key string, value Value, namespace string) error {
	doc := kvDocument{Namespace: namespaceOr(namespace), Key: key, Value: value}
	if doc.Value == nil {
		doc.Value = Value{}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	resp, err := s.client.Index(ctx, opensearchapi.IndexReq{
		Index:      s.index,
		DocumentID: docID(namespace, key),
		Body:       bytes.NewReader(body),
		Params:     opensearchapi.IndexParams{Refresh: "true"},
	})
	if err != nil {
		return osclient.Classify(err, osclient.StatusCode(resp), "opensearch kv put")
	}
	return nil
}

func (s *OpenSearchStore) Get(ctx context.Context, key string, namespace string) (Value, error) {
	resp, err := s.client.Document.Get(ctx, opensearchapi.DocumentGetReq{
		Index:      s.index,
		DocumentID: docID(namespace, key),
	})
	if status := osclient.StatusCode(resp); status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Unavailable(err, "opensearch kv get")
	}
	if !resp.Found {
		return nil, nil
	}

	var doc kvDocument
	if err := json.Unmarshal(resp.Source, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	if doc.Value == nil {
		doc.Value = Value{}
	}
	return doc.Value, nil
}

// GetAll pages through the namespace sorted by key, resuming each page after the last key seen.
func (s *OpenSearchStore) GetAll(ctx context.Context, namespace string) (map[string]Value, error) {
	out := map[string]Value{}

	var after []any
	for {
		query := map[string]any{
			"size":  openSearchPageSize,
			"sort":  []map[string]any{{"key": "asc"}},
			"query": map[string]any{"bool": map[string]any{"filter": []map[string]any{{"term": map[string]any{"namespace": namespaceOr(namespace)}}}}},
		}
		if after != nil {
			query["search_after"] = after
		}
		body, _ := json.Marshal(query)

		resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
			Indices: []string{s.index},
			Body:    bytes.NewReader(body),
		})
		if osclient.StatusCode(resp) == http.StatusNotFound {
			return out, nil
		}
		if err != nil {
			return nil, osclient.Classify(err, osclient.StatusCode(resp), "opensearch kv get all")
		}

		for _, hit := range resp.Hits.Hits {
			var doc kvDocument
			if err := json.Unmarshal(hit.Source, &doc); err != nil {
				return nil, fmt.Errorf("failed to unmarshal document: %w", err)
			}
			if doc.Value == nil {
				doc.Value = Value{}
			}
			out[doc.Key] = doc.Value
			after = []any{doc.Key}
		}

		if len(resp.Hits.Hits) < openSearchPageSize {
			return out, nil
		}
	}
}

func (s *OpenSearchStore) Delete(ctx context.Context, key string, namespace string) (bool, error) {
	resp, err := s.client.Document.Delete(ctx, opensearchapi.DocumentDeleteReq{
		Index:      s.index,
		DocumentID: docID(namespace, key),
		Params:     opensearchapi.DocumentDeleteParams{Refresh: "true"},
	})
	if osclient.StatusCode(resp) == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, errdefs.Unavailable(err, "opensearch kv delete")
	}
	return resp.Result == "deleted", nil
}

// Close is a no-op, the HTTP client holds no resources that need releasing.
func (s *OpenSearchStore) Close() error {
	return nil
}
