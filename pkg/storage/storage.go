// Package storage composes the document, index and vector stores of one application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/Zereker/storekit/pkg/docstore"
	"github.com/Zereker/storekit/pkg/indexstore"
	"github.com/Zereker/storekit/pkg/kvstore"
	"github.com/Zereker/storekit/pkg/vector"
)

// Persist file names inside a persist directory.
const (
	DocStoreFile    = "doc_store.json"
	IndexStoreFile  = "index_store.json"
	VectorStoreFile = "vector_store.json"
)

// Config 存储上下文配置
type Config struct {
	// PersistDir holds the snapshot files of the simple backends, empty keeps them in memory only.
	PersistDir string `toml:"persist_dir"`

	DocStoreNamespace   string `toml:"doc_store_namespace"`
	IndexStoreNamespace string `toml:"index_store_namespace"`

	KV     kvstore.Config `toml:"kvstore"`
	Vector vector.Config  `toml:"vector"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.KV.Validate(); err != nil {
		return fmt.Errorf("kvstore: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	return nil
}

func (c *Config) simpleKV() bool {
	return c.KV.Type == "" || c.KV.Type == kvstore.TypeSimple
}

func (c *Config) simpleVector() bool {
	return c.Vector.Type == "" || c.Vector.Type == vector.TypeSimple
}

// Context bundles the stores. Fields may be replaced before use, e.g. to decorate VectorStore.
type Context struct {
	DocStore    *docstore.Store
	IndexStore  *indexstore.Store
	VectorStore vector.Store

	persistDir string
	collection *vector.Collection
	closers    []kvstore.Store
	logger     *slog.Logger
}

// New wraps existing stores. Persist and Close are no-ops for such a context.
func New(docs *docstore.Store, index *indexstore.Store, vectors vector.Store) *Context {
	return &Context{
		DocStore:    docs,
		IndexStore:  index,
		VectorStore: vectors,
		logger:      slog.Default().With("module", "storage"),
	}
}

// FromDefaults builds every store from cfg. With simple backends and a persist
// directory, previously persisted snapshots are loaded, missing files start empty.
func FromDefaults(ctx context.Context, cfg Config) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sc := &Context{
		persistDir: cfg.PersistDir,
		logger:     slog.Default().With("module", "storage", "persist_dir", cfg.PersistDir),
	}

	docKV, indexKV, err := sc.openKV(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sc.DocStore = docstore.New(docKV, cfg.DocStoreNamespace)
	sc.IndexStore = indexstore.New(indexKV, cfg.IndexStoreNamespace)

	var deps vector.Dependencies
	if cfg.simpleVector() {
		coll, err := sc.loadCollection(cfg.Vector)
		if err != nil {
			sc.Close()
			return nil, err
		}
		sc.collection = coll
		deps.Collection = coll

		// a reloaded snapshot keeps answering for the index id it was written with
		if ids := coll.IndexIDs(); cfg.Vector.StoreInstanceID == "" && len(ids) == 1 {
			cfg.Vector.StoreInstanceID = ids[0]
		}
	}

	sc.VectorStore, err = vector.New(ctx, cfg.Vector, deps)
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("vector: %w", err)
	}

	sc.logger.Info("storage context ready",
		"kvstore", kvType(cfg.KV.Type),
		"vector", vectorType(cfg.Vector.Type),
		"index_id", sc.VectorStore.IndexID(),
	)
	return sc, nil
}

// openKV returns the doc and index KV stores. Simple backends get one snapshot
// file each, any other backend is opened once and shared.
func (sc *Context) openKV(ctx context.Context, cfg Config) (kvstore.Store, kvstore.Store, error) {
	if !cfg.simpleKV() {
		kv, err := kvstore.Open(ctx, cfg.KV)
		if err != nil {
			return nil, nil, fmt.Errorf("kvstore: %w", err)
		}
		sc.closers = append(sc.closers, kv)
		return kv, kv, nil
	}

	if sc.persistDir == "" {
		return kvstore.NewSimpleStore(), kvstore.NewSimpleStore(), nil
	}

	docKV, err := kvstore.LoadSimpleStore(filepath.Join(sc.persistDir, DocStoreFile))
	if err != nil {
		return nil, nil, err
	}
	indexKV, err := kvstore.LoadSimpleStore(filepath.Join(sc.persistDir, IndexStoreFile))
	if err != nil {
		return nil, nil, err
	}
	return docKV, indexKV, nil
}

func (sc *Context) loadCollection(cfg vector.Config) (*vector.Collection, error) {
	collCfg := vector.CollectionConfig{Dimension: cfg.Dimension, Similarity: cfg.Similarity}
	if sc.persistDir == "" {
		return vector.NewCollection(collCfg), nil
	}
	return vector.LoadCollection(filepath.Join(sc.persistDir, VectorStoreFile), collCfg)
}

// Persist writes every simple backend to dir, an empty dir means the directory
// the context was loaded from. Stores without a snapshot format are skipped.
func (sc *Context) Persist(dir string) error {
	if dir == "" {
		dir = sc.persistDir
	}
	if dir == "" {
		return fmt.Errorf("persist dir is required")
	}

	var g errgroup.Group
	if p, ok := sc.DocStore.KV().(kvstore.Persister); ok {
		g.Go(func() error { return p.Persist(filepath.Join(dir, DocStoreFile)) })
	}
	if p, ok := sc.IndexStore.KV().(kvstore.Persister); ok {
		g.Go(func() error { return p.Persist(filepath.Join(dir, IndexStoreFile)) })
	}
	if sc.collection != nil {
		g.Go(func() error { return sc.collection.Persist(filepath.Join(dir, VectorStoreFile)) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sc.logger.Info("storage persisted", "dir", dir)
	return nil
}

// DeleteRefDoc removes the vectors and the document store entries derived
// from refDocID. Missing documents are not an error.
func (sc *Context) DeleteRefDoc(ctx context.Context, refDocID string) error {
	if err := sc.VectorStore.Delete(ctx, refDocID); err != nil {
		return fmt.Errorf("delete vectors of %s: %w", refDocID, err)
	}
	if err := sc.DocStore.DeleteRefDoc(ctx, refDocID, false); err != nil {
		return fmt.Errorf("delete documents of %s: %w", refDocID, err)
	}
	return nil
}

// Stats summarizes the stored content.
type Stats struct {
	Documents    int `json:"documents"`
	RefDocs      int `json:"ref_docs"`
	IndexStructs int `json:"index_structs"`

	// Vectors counts entries of the in-memory collection across all index ids, -1 for other backends.
	Vectors int `json:"vectors"`
}

// Stats counts documents, ref docs, index structs and in-memory vectors.
func (sc *Context) Stats(ctx context.Context) (Stats, error) {
	docs, err := sc.DocStore.Docs(ctx)
	if err != nil {
		return Stats{}, err
	}
	refs, err := sc.DocStore.GetAllRefDocInfo(ctx)
	if err != nil {
		return Stats{}, err
	}
	structs, err := sc.IndexStore.GetIndexStructs(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Documents: len(docs), RefDocs: len(refs), IndexStructs: len(structs), Vectors: -1}
	if sc.collection != nil {
		stats.Vectors = sc.collection.Len()
	}
	return stats, nil
}

// Close releases the backends opened by FromDefaults.
func (sc *Context) Close() error {
	var errs []error
	for _, kv := range sc.closers {
		errs = append(errs, kvstore.Close(kv))
	}
	sc.closers = nil
	return errors.Join(errs...)
}

func kvType(t string) string {
	if t == "" {
		return kvstore.TypeSimple
	}
	return t
}

func vectorType(t string) string {
	if t == "" {
		return vector.TypeSimple
	}
	return t
}
