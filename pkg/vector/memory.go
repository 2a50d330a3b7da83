package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/Zereker/storekit/pkg/errdefs"
	"github.com/Zereker/storekit/pkg/schema"
)

// Similarity names a scoring function of the in-memory backend.
type Similarity string

const (
	SimilarityCosine Similarity = "cosine"
	SimilarityDot    Similarity = "dot"
)

// CollectionConfig configures an in-memory collection.
type CollectionConfig struct {
	// Dimension fixes the embedding length, 0 takes it from the first insert.
	Dimension  int
	Similarity Similarity
}

type memoryEntry struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	IndexID   string         `json:"index_id"`
}

// key identifies an entry within a collection.
func (e memoryEntry) key() string {
	return e.IndexID + "\x00" + e.ID
}

// Collection is an in-memory set of entries that several SimpleStores may share.
// Entries keep insertion order, a duplicate id within one index id replaces the entry in place.
// Equal node ids written by different index ids are separate entries.
type Collection struct {
	mu         sync.RWMutex
	entries    []memoryEntry
	positions  map[string]int
	dim        int
	similarity Similarity
}

// NewCollection creates an empty collection.
func NewCollection(cfg CollectionConfig) *Collection {
	if cfg.Similarity == "" {
		cfg.Similarity = SimilarityCosine
	}
	return &Collection{
		positions:  make(map[string]int),
		dim:        cfg.Dimension,
		similarity: cfg.Similarity,
	}
}

type collectionFile struct {
	Dimension  int           `json:"dimension"`
	Similarity Similarity    `json:"similarity"`
	Entries    []memoryEntry `json:"entries"`
}

// LoadCollection reads a collection written by Persist. A missing file yields
// an empty collection configured by cfg.
func LoadCollection(path string, cfg CollectionConfig) (*Collection, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewCollection(cfg), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vector store %s: %w", path, err)
	}

	var file collectionFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode vector store %s: %w", path, err)
	}
	if cfg.Dimension > 0 && file.Dimension > 0 && cfg.Dimension != file.Dimension {
		return nil, errdefs.DimensionMismatch(cfg.Dimension, file.Dimension)
	}
	if file.Dimension == 0 {
		file.Dimension = cfg.Dimension
	}
	if file.Similarity == "" {
		file.Similarity = cfg.Similarity
	}

	c := NewCollection(CollectionConfig{Dimension: file.Dimension, Similarity: file.Similarity})
	for _, e := range file.Entries {
		c.positions[e.key()] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Persist writes the collection to path.
func (c *Collection) Persist(path string) error {
	c.mu.RLock()
	raw, err := json.Marshal(collectionFile{
		Dimension:  c.dim,
		Similarity: c.similarity,
		Entries:    c.entries,
	})
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode vector store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create persist dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write vector store %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// Dimension returns the fixed embedding length, 0 while unset.
func (c *Collection) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dim
}

// Len returns the number of entries across all stores.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// IndexIDs returns the distinct index ids present, in first-seen order.
func (c *Collection) IndexIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for _, e := range c.entries {
		if !slices.Contains(ids, e.IndexID) {
			ids = append(ids, e.IndexID)
		}
	}
	return ids
}

// upsert validates then applies the batch under one exclusive lock.
func (c *Collection) upsert(batch []memoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dim := c.dim
	for _, e := range batch {
		if dim == 0 {
			dim = len(e.Embedding)
		}
		if len(e.Embedding) != dim {
			return errdefs.DimensionMismatch(dim, len(e.Embedding))
		}
	}
	c.dim = dim

	for _, e := range batch {
		if pos, ok := c.positions[e.key()]; ok {
			c.entries[pos] = e
			continue
		}
		c.positions[e.key()] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return nil
}

// remove deletes the entries of indexID whose ref doc is refDocID and returns how many went.
func (c *Collection) remove(indexID, refDocID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.entries)
	c.entries = slices.DeleteFunc(c.entries, func(e memoryEntry) bool {
		return e.IndexID == indexID && e.Metadata[MetadataKeyRefDocID] == refDocID
	})
	if len(c.entries) == before {
		return 0
	}

	clear(c.positions)
	for i, e := range c.entries {
		c.positions[e.key()] = i
	}
	return before - len(c.entries)
}

type scored struct {
	entry memoryEntry
	score float64
}

// search scores every entry passing match and returns the best k, ties keep insertion order.
func (c *Collection) search(embedding []float32, k int, match Matcher) ([]scored, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.dim == 0 {
		return nil, nil
	}
	if len(embedding) != c.dim {
		return nil, errdefs.DimensionMismatch(c.dim, len(embedding))
	}

	hits := make([]scored, 0)
	for _, e := range c.entries {
		if !match(e.Metadata, e.IndexID) {
			continue
		}
		hits = append(hits, scored{entry: e, score: c.score(embedding, e.Embedding)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (c *Collection) score(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if c.similarity == SimilarityDot {
		return dot
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SimpleStore is the in-memory vector store, a view of one indexId over a Collection.
type SimpleStore struct {
	coll   *Collection
	opts   Options
	logger *slog.Logger
}

var _ Store = (*SimpleStore)(nil)

// NewSimpleStore creates a store over coll. A nil coll gets a private collection.
func NewSimpleStore(coll *Collection, opts Options) *SimpleStore {
	if coll == nil {
		coll = NewCollection(CollectionConfig{})
	}
	opts = opts.withDefaults()
	return &SimpleStore{
		coll:   coll,
		opts:   opts,
		logger: slog.Default().With("module", "vector.simple", "index_id", opts.StoreInstanceID),
	}
}

// Collection returns the backing collection.
func (s *SimpleStore) Collection() *Collection {
	return s.coll
}

func (s *SimpleStore) StoresText() bool { return true }

func (s *SimpleStore) IndexID() string { return s.opts.StoreInstanceID }

func (s *SimpleStore) Add(ctx context.Context, nodes []schema.Node) ([]string, error) {
	if len(nodes) == 0 {
		return []string{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nodes, ids := assignIDs(nodes)
	batch := make([]memoryEntry, 0, len(nodes))
	for _, node := range nodes {
		if len(node.Embedding) == 0 {
			return nil, errdefs.Query("node %s has no embedding", node.ID)
		}
		meta, err := nodeToMetadata(node, s.opts.RemoveTextFromBlob)
		if err != nil {
			return nil, err
		}
		batch = append(batch, memoryEntry{
			ID:        node.ID,
			Embedding: slices.Clone(node.Embedding),
			Text:      node.Text,
			Metadata:  meta,
			IndexID:   s.opts.StoreInstanceID,
		})
	}

	if err := s.coll.upsert(batch); err != nil {
		return nil, err
	}

	s.logger.Debug("nodes added", "count", len(ids))
	return ids, nil
}

func (s *SimpleStore) Delete(ctx context.Context, refDocID string, _ ...DeleteOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := s.coll.remove(s.opts.StoreInstanceID, refDocID)
	s.logger.Debug("ref doc deleted", "ref_doc_id", refDocID, "removed", n)
	return nil
}

func (s *SimpleStore) Query(ctx context.Context, q schema.VectorStoreQuery) (schema.VectorStoreQueryResult, error) {
	if err := validateQuery(q); err != nil {
		return schema.VectorStoreQueryResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return schema.VectorStoreQueryResult{}, err
	}

	match, dropped, err := MatchFunc(scopedFilters(q.Filters, s.opts.StoreInstanceID))
	if err != nil {
		return schema.VectorStoreQueryResult{}, err
	}
	if err := applyPolicy(s.opts.FilterPolicy, dropped, s.logger); err != nil {
		return schema.VectorStoreQueryResult{}, err
	}

	hits, err := s.coll.search(q.QueryEmbedding, q.SimilarityTopK, match)
	if err != nil {
		return schema.VectorStoreQueryResult{}, err
	}

	result := schema.EmptyResult()
	for _, hit := range hits {
		node, err := metadataToNode(hit.entry.Metadata, hit.entry.Text)
		if err != nil {
			return schema.VectorStoreQueryResult{}, fmt.Errorf("decode entry %s: %w", hit.entry.ID, err)
		}
		result.Append(node, hit.score, hit.entry.ID)
	}
	return result, nil
}

func validateQuery(q schema.VectorStoreQuery) error {
	if q.SimilarityTopK < 1 {
		return errdefs.Query("similarity_top_k must be at least 1, got %d", q.SimilarityTopK)
	}
	if len(q.QueryEmbedding) == 0 {
		return errdefs.Query("query_embedding is required")
	}
	return nil
}
