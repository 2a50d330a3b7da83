package vector

import (
	"context"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/Zereker/storekit/pkg/osclient"
)

// Backend types accepted by Config.Type.
const (
	TypeSimple     = "simple"
	TypeOpenSearch = "opensearch"
)

// Config 向量存储配置
type Config struct {
	Type       string     `toml:"type"`
	Dimension  int        `toml:"dimension"`
	Similarity Similarity `toml:"similarity"`

	CollectionName string `toml:"collection_name"`
	IndexName      string `toml:"index_name"` // reserved, see Options.IndexName
	EmbeddingField string `toml:"embedding_field"`
	IDField        string `toml:"id_field"`
	TextField      string `toml:"text_field"`
	MetadataField  string `toml:"metadata_field"`

	StoreInstanceID string         `toml:"store_instance_id"`
	InsertOptions   map[string]any `toml:"insert_options"`

	// RemoveTextFromBlob defaults to true for opensearch and false for simple.
	RemoveTextFromBlob *bool  `toml:"remove_text_from_blob"`
	FilterPolicy       string `toml:"filter_policy"`

	// EnsureIndex creates the OpenSearch index on startup, Dimension is required then.
	EnsureIndex bool            `toml:"ensure_index"`
	OpenSearch  osclient.Config `toml:"opensearch"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Dimension < 0 {
		return fmt.Errorf("dimension must not be negative")
	}
	switch c.Similarity {
	case "", SimilarityCosine, SimilarityDot:
	default:
		return fmt.Errorf("unknown similarity %q", c.Similarity)
	}
	if _, err := ParseFilterPolicy(c.FilterPolicy); err != nil {
		return err
	}

	switch c.Type {
	case "", TypeSimple:
		return nil
	case TypeOpenSearch:
		if c.EnsureIndex && c.Dimension == 0 {
			return fmt.Errorf("dimension is required when ensure_index is set")
		}
		if err := c.OpenSearch.Validate(); err != nil {
			return fmt.Errorf("opensearch: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown vector store type %q", c.Type)
	}
}

// Options converts the configuration into construction options.
func (c *Config) Options() Options {
	policy, _ := ParseFilterPolicy(c.FilterPolicy)

	removeText := c.Type == TypeOpenSearch
	if c.RemoveTextFromBlob != nil {
		removeText = *c.RemoveTextFromBlob
	}

	return Options{
		CollectionName:     c.CollectionName,
		IndexName:          c.IndexName,
		EmbeddingField:     c.EmbeddingField,
		IDField:            c.IDField,
		TextField:          c.TextField,
		MetadataField:      c.MetadataField,
		InsertOptions:      c.InsertOptions,
		StoreInstanceID:    c.StoreInstanceID,
		RemoveTextFromBlob: removeText,
		FilterPolicy:       policy,
	}
}

// Dependencies are handles injected into the factory, nil fields are created from Config.
type Dependencies struct {
	// Collection backs a simple store. Several stores may share one.
	Collection *Collection

	// OpenSearch is used instead of dialing Config.OpenSearch.
	OpenSearch *opensearchapi.Client
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config, deps Dependencies) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "", TypeSimple:
		coll := deps.Collection
		if coll == nil {
			coll = NewCollection(CollectionConfig{Dimension: cfg.Dimension, Similarity: cfg.Similarity})
		}
		return NewSimpleStore(coll, cfg.Options()), nil

	case TypeOpenSearch:
		client := deps.OpenSearch
		if client == nil {
			var err error
			if client, err = osclient.New(cfg.OpenSearch); err != nil {
				return nil, err
			}
		}

		store := NewOpenSearchStore(client, cfg.Options())
		if cfg.EnsureIndex {
			if err := store.EnsureIndex(ctx, cfg.Dimension); err != nil {
				return nil, err
			}
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown vector store type %q", cfg.Type)
	}
}
