// Package docstore stores nodes, their reference documents and content hashes on top of a kvstore.Store.
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Zereker/storekit/pkg/errdefs"
	"github.com/Zereker/storekit/pkg/kvstore"
	"github.com/Zereker/storekit/pkg/schema"
)

// DefaultNamespace prefixes every collection of the document store.
const DefaultNamespace = "docstore"

const (
	typeKey = "__type__"
	dataKey = "__data__"
)

// RefDocInfo lists the nodes derived from one source document.
type RefDocInfo struct {
	NodeIDs   []string       `json:"node_ids"`
	ExtraInfo map[string]any `json:"extra_info"`
}

type docMetadata struct {
	DocHash  string `json:"doc_hash"`
	RefDocID string `json:"ref_doc_id,omitempty"`
}

// Store is a document store over any KV backend.
type Store struct {
	kv     kvstore.Store
	logger *slog.Logger

	dataCollection     string
	refDocCollection   string
	metadataCollection string
}

// New creates a document store. An empty namespace means DefaultNamespace.
func New(kv kvstore.Store, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{
		kv:                 kv,
		logger:             slog.Default().With("module", "docstore"),
		dataCollection:     namespace + "/data",
		refDocCollection:   namespace + "/ref_doc_info",
		metadataCollection: namespace + "/metadata",
	}
}

// KV returns the underlying key-value store.
func (s *Store) KV() kvstore.Store {
	return s.kv
}

// AddDocuments stores nodes with their hash and ref doc bookkeeping.
// With allowUpdate false an already stored id, or an id repeated within the
// batch, fails with errdefs.ErrDuplicate and nothing from the batch is written.
func (s *Store) AddDocuments(ctx context.Context, nodes []schema.Node, allowUpdate bool) error {
	if !allowUpdate {
		seen := make(map[string]struct{}, len(nodes))
		for _, node := range nodes {
			if _, dup := seen[node.ID]; dup {
				return errdefs.Duplicate("document", node.ID)
			}
			seen[node.ID] = struct{}{}

			exists, err := s.DocumentExists(ctx, node.ID)
			if err != nil {
				return err
			}
			if exists {
				return errdefs.Duplicate("document", node.ID)
			}
		}
	}

	for _, node := range nodes {
		if err := s.addDocument(ctx, node); err != nil {
			return err
		}
	}

	s.logger.Debug("documents added", "count", len(nodes))
	return nil
}

func (s *Store) addDocument(ctx context.Context, node schema.Node) error {
	if node.ID == "" {
		return errdefs.Query("document id is required")
	}

	data, err := schema.ToMap(node)
	if err != nil {
		return err
	}
	record := kvstore.Value{typeKey: string(node.Type), dataKey: data}
	if err := s.kv.Put(ctx, node.ID, record, s.dataCollection); err != nil {
		return fmt.Errorf("put document %s: %w", node.ID, err)
	}

	meta := docMetadata{DocHash: node.GetHash()}
	if node.RefDocID != "" && node.RefDocID != node.ID {
		meta.RefDocID = node.RefDocID
		if err := s.addToRefDoc(ctx, node.RefDocID, node.ID); err != nil {
			return err
		}
	}
	return s.putMetadata(ctx, node.ID, meta)
}

func (s *Store) addToRefDoc(ctx context.Context, refDocID, nodeID string) error {
	info, err := s.GetRefDocInfo(ctx, refDocID)
	if err != nil {
		return err
	}
	if info == nil {
		info = &RefDocInfo{ExtraInfo: map[string]any{}}
	}
	if !slices.Contains(info.NodeIDs, nodeID) {
		info.NodeIDs = append(info.NodeIDs, nodeID)
	}
	return s.putRefDocInfo(ctx, refDocID, info)
}

// GetDocument returns the node stored under id. A missing node is (nil, nil)
// unless raiseError is set, then errdefs.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string, raiseError bool) (*schema.Node, error) {
	record, err := s.kv.Get(ctx, id, s.dataCollection)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	if record == nil {
		if raiseError {
			return nil, errdefs.NotFound("document", id)
		}
		return nil, nil
	}

	node, err := decodeRecord(record)
	if err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return node, nil
}

// Docs returns every stored node keyed by id.
func (s *Store) Docs(ctx context.Context) (map[string]schema.Node, error) {
	records, err := s.kv.GetAll(ctx, s.dataCollection)
	if err != nil {
		return nil, fmt.Errorf("get all documents: %w", err)
	}

	out := make(map[string]schema.Node, len(records))
	for id, record := range records {
		node, err := decodeRecord(record)
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		out[id] = *node
	}
	return out, nil
}

// DocumentExists reports whether id is stored.
func (s *Store) DocumentExists(ctx context.Context, id string) (bool, error) {
	record, err := s.kv.Get(ctx, id, s.dataCollection)
	if err != nil {
		return false, fmt.Errorf("get document %s: %w", id, err)
	}
	return record != nil, nil
}

// GetRefDocInfo returns the bookkeeping of refDocID or nil.
func (s *Store) GetRefDocInfo(ctx context.Context, refDocID string) (*RefDocInfo, error) {
	record, err := s.kv.Get(ctx, refDocID, s.refDocCollection)
	if err != nil {
		return nil, fmt.Errorf("get ref doc info %s: %w", refDocID, err)
	}
	if record == nil {
		return nil, nil
	}

	var info RefDocInfo
	if err := schema.Decode(record, &info); err != nil {
		return nil, err
	}
	if info.ExtraInfo == nil {
		info.ExtraInfo = map[string]any{}
	}
	return &info, nil
}

// GetAllRefDocInfo returns every ref doc keyed by id.
func (s *Store) GetAllRefDocInfo(ctx context.Context) (map[string]RefDocInfo, error) {
	records, err := s.kv.GetAll(ctx, s.refDocCollection)
	if err != nil {
		return nil, fmt.Errorf("get all ref doc info: %w", err)
	}

	out := make(map[string]RefDocInfo, len(records))
	for id, record := range records {
		var info RefDocInfo
		if err := schema.Decode(record, &info); err != nil {
			return nil, err
		}
		out[id] = info
	}
	return out, nil
}

// RefDocExists reports whether refDocID has bookkeeping.
func (s *Store) RefDocExists(ctx context.Context, refDocID string) (bool, error) {
	info, err := s.GetRefDocInfo(ctx, refDocID)
	return info != nil, err
}

// DeleteDocument removes a node. With removeRefDocNode the node is also
// dropped from its ref doc, and the ref doc is removed once it is empty.
func (s *Store) DeleteDocument(ctx context.Context, id string, raiseError, removeRefDocNode bool) error {
	if removeRefDocNode {
		if err := s.removeFromRefDoc(ctx, id); err != nil {
			return err
		}
	}

	existed, err := s.kv.Delete(ctx, id, s.dataCollection)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if _, err := s.kv.Delete(ctx, id, s.metadataCollection); err != nil {
		return fmt.Errorf("delete document metadata %s: %w", id, err)
	}

	if !existed && raiseError {
		return errdefs.NotFound("document", id)
	}
	return nil
}

func (s *Store) removeFromRefDoc(ctx context.Context, nodeID string) error {
	meta, err := s.getMetadata(ctx, nodeID)
	if err != nil || meta == nil || meta.RefDocID == "" {
		return err
	}

	info, err := s.GetRefDocInfo(ctx, meta.RefDocID)
	if err != nil || info == nil {
		return err
	}

	info.NodeIDs = slices.DeleteFunc(info.NodeIDs, func(id string) bool { return id == nodeID })
	if len(info.NodeIDs) > 0 {
		return s.putRefDocInfo(ctx, meta.RefDocID, info)
	}

	if _, err := s.kv.Delete(ctx, meta.RefDocID, s.refDocCollection); err != nil {
		return fmt.Errorf("delete ref doc info %s: %w", meta.RefDocID, err)
	}
	return nil
}

// DeleteRefDoc removes a reference document and every node derived from it.
func (s *Store) DeleteRefDoc(ctx context.Context, refDocID string, raiseError bool) error {
	info, err := s.GetRefDocInfo(ctx, refDocID)
	if err != nil {
		return err
	}
	if info == nil {
		if raiseError {
			return errdefs.NotFound("ref doc", refDocID)
		}
		return nil
	}

	for _, nodeID := range info.NodeIDs {
		if err := s.DeleteDocument(ctx, nodeID, false, false); err != nil {
			return err
		}
	}

	if _, err := s.kv.Delete(ctx, refDocID, s.refDocCollection); err != nil {
		return fmt.Errorf("delete ref doc info %s: %w", refDocID, err)
	}
	// the source document itself may be stored as a node
	if _, err := s.kv.Delete(ctx, refDocID, s.metadataCollection); err != nil {
		return fmt.Errorf("delete ref doc metadata %s: %w", refDocID, err)
	}

	s.logger.Debug("ref doc deleted", "ref_doc_id", refDocID, "nodes", len(info.NodeIDs))
	return nil
}

// SetDocumentHash records hash for id without touching the stored node.
func (s *Store) SetDocumentHash(ctx context.Context, id, hash string) error {
	meta, err := s.getMetadata(ctx, id)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = &docMetadata{}
	}
	meta.DocHash = hash
	return s.putMetadata(ctx, id, *meta)
}

// GetDocumentHash returns the stored hash of id, empty when unknown.
func (s *Store) GetDocumentHash(ctx context.Context, id string) (string, error) {
	meta, err := s.getMetadata(ctx, id)
	if err != nil || meta == nil {
		return "", err
	}
	return meta.DocHash, nil
}

// GetAllDocumentHashes maps every stored hash to its document id.
func (s *Store) GetAllDocumentHashes(ctx context.Context) (map[string]string, error) {
	records, err := s.kv.GetAll(ctx, s.metadataCollection)
	if err != nil {
		return nil, fmt.Errorf("get all document hashes: %w", err)
	}

	out := make(map[string]string, len(records))
	for id, record := range records {
		if hash, ok := record["doc_hash"].(string); ok && hash != "" {
			out[hash] = id
		}
	}
	return out, nil
}

func (s *Store) getMetadata(ctx context.Context, id string) (*docMetadata, error) {
	record, err := s.kv.Get(ctx, id, s.metadataCollection)
	if err != nil {
		return nil, fmt.Errorf("get document metadata %s: %w", id, err)
	}
	if record == nil {
		return nil, nil
	}
	var meta docMetadata
	if err := schema.Decode(record, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) putMetadata(ctx context.Context, id string, meta docMetadata) error {
	value, err := schema.ToMap(meta)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, id, value, s.metadataCollection); err != nil {
		return fmt.Errorf("put document metadata %s: %w", id, err)
	}
	return nil
}

func (s *Store) putRefDocInfo(ctx context.Context, refDocID string, info *RefDocInfo) error {
	if info.ExtraInfo == nil {
		info.ExtraInfo = map[string]any{}
	}
	value, err := schema.ToMap(info)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, refDocID, value, s.refDocCollection); err != nil {
		return fmt.Errorf("put ref doc info %s: %w", refDocID, err)
	}
	return nil
}

func decodeRecord(record kvstore.Value) (*schema.Node, error) {
	data, ok := record[dataKey].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record has no %s object", dataKey)
	}

	var node schema.Node
	if err := schema.Decode(data, &node); err != nil {
		return nil, err
	}
	if t, ok := record[typeKey].(string); ok && node.Type == "" {
		node.Type = schema.NodeType(t)
	}
	return &node, nil
}
