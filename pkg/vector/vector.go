// Package vector stores node embeddings and answers metadata-filtered top-K similarity queries.
//
// Every store carries an instance id (indexId) written onto each entry; queries
// and deletes only ever see the entries written by the same instance id, even
// when several stores share one collection.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/Zereker/storekit/pkg/schema"
)

// Metadata keys added to every stored entry.
const (
	MetadataKeyNodeContent = "node_content"
	MetadataKeyRefDocID    = "ref_doc_id"
)

// FilterKeyIndexID is the reserved filter key matching the store identity tag.
const FilterKeyIndexID = "indexId"

// Store is the vector store contract shared by all backends.
type Store interface {
	// Add stores nodes and returns their ids in input order.
	Add(ctx context.Context, nodes []schema.Node) ([]string, error)

	// Delete removes every entry of this store whose ref_doc_id equals refDocID.
	Delete(ctx context.Context, refDocID string, opts ...DeleteOption) error

	// Query returns the top-K entries most similar to q.QueryEmbedding that satisfy q.Filters.
	Query(ctx context.Context, q schema.VectorStoreQuery) (schema.VectorStoreQueryResult, error)

	// StoresText reports whether raw text is kept alongside the embedding.
	StoresText() bool

	// IndexID returns the store identity tag.
	IndexID() string
}

// DeleteOptions carries backend passthrough parameters.
type DeleteOptions struct {
	Params map[string]any
}

// DeleteOption configures a Delete call.
type DeleteOption func(*DeleteOptions)

// WithDeleteParams passes params to the backend delete request unchanged.
func WithDeleteParams(params map[string]any) DeleteOption {
	return func(o *DeleteOptions) {
		if o.Params == nil {
			o.Params = map[string]any{}
		}
		maps.Copy(o.Params, params)
	}
}

func buildDeleteOptions(opts []DeleteOption) DeleteOptions {
	var o DeleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Options are the construction options shared by the backends.
type Options struct {
	// CollectionName is the OpenSearch index the records are written to.
	CollectionName string
	// IndexName names the search index of stores that keep one apart from the
	// collection. Reserved, neither backend reads it.
	IndexName      string
	EmbeddingField string
	IDField        string
	TextField      string
	MetadataField  string

	// InsertOptions are merged into every backend write request.
	InsertOptions map[string]any

	// StoreInstanceID is the indexId tag, generated when empty.
	StoreInstanceID string

	// RemoveTextFromBlob blanks the text inside node_content, it is restored from TextField on read.
	RemoveTextFromBlob bool

	FilterPolicy FilterPolicy
}

// Default option values.
const (
	DefaultCollectionName = "default_collection"
	DefaultIndexName      = "default"
	DefaultEmbeddingField = "embedding"
	DefaultIDField        = "id"
	DefaultTextField      = "text"
	DefaultMetadataField  = "metadata"
)

func (o Options) withDefaults() Options {
	if o.CollectionName == "" {
		o.CollectionName = DefaultCollectionName
	}
	if o.IndexName == "" {
		o.IndexName = DefaultIndexName
	}
	if o.EmbeddingField == "" {
		o.EmbeddingField = DefaultEmbeddingField
	}
	if o.IDField == "" {
		o.IDField = DefaultIDField
	}
	if o.TextField == "" {
		o.TextField = DefaultTextField
	}
	if o.MetadataField == "" {
		o.MetadataField = DefaultMetadataField
	}
	if o.StoreInstanceID == "" {
		o.StoreInstanceID = uuid.NewString()
	}
	return o
}

// nodeToMetadata returns a copy of the node metadata augmented with the
// serialized node (embedding blanked) and its ref doc id.
func nodeToMetadata(node schema.Node, removeText bool) (map[string]any, error) {
	meta := make(map[string]any, len(node.Metadata)+2)
	maps.Copy(meta, node.Metadata)

	blob := node.Clone()
	blob.Embedding = nil
	if removeText {
		blob.Text = ""
	}

	raw, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node %s: %w", node.ID, err)
	}

	meta[MetadataKeyNodeContent] = string(raw)
	meta[MetadataKeyRefDocID] = node.SourceID()
	return meta, nil
}

// metadataToNode rebuilds a node from its stored blob, text restores the
// content when the blob was written without it.
func metadataToNode(meta map[string]any, text string) (schema.Node, error) {
	content, ok := meta[MetadataKeyNodeContent].(string)
	if !ok {
		return schema.Node{}, fmt.Errorf("entry has no %s", MetadataKeyNodeContent)
	}

	var node schema.Node
	if err := json.Unmarshal([]byte(content), &node); err != nil {
		return schema.Node{}, fmt.Errorf("failed to unmarshal %s: %w", MetadataKeyNodeContent, err)
	}
	if node.Text == "" {
		node.Text = text
	}
	return node, nil
}

// assignIDs returns a copy of nodes with every missing id generated, plus the ids in order.
func assignIDs(nodes []schema.Node) ([]schema.Node, []string) {
	out := slices.Clone(nodes)
	ids := make([]string, len(out))
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
		ids[i] = out[i].ID
	}
	return out, ids
}

// scopedFilters appends the indexId predicate to a copy of the caller filters.
func scopedFilters(filters *schema.MetadataFilters, indexID string) *schema.MetadataFilters {
	return filters.With(schema.MetadataFilter{
		Key:        FilterKeyIndexID,
		Value:      indexID,
		FilterType: schema.ExactMatch,
	})
}
