// Package schema holds the value types exchanged between stores and their callers.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
)

// NodeType identifies the kind of indexed unit
type NodeType string

const (
	NodeTypeText     NodeType = "TEXT"
	NodeTypeDocument NodeType = "DOCUMENT"
)

// Node is a unit of indexed content.
//
// RefDocID is a back-reference to the source document, many nodes may share it.
// A node without RefDocID is treated as its own reference document.
type Node struct {
	ID        string         `json:"id"`
	Type      NodeType       `json:"type"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
	RefDocID  string         `json:"ref_doc_id,omitempty"`
	Hash      string         `json:"hash,omitempty"`
}

// NewTextNode creates a text node owned by refDocID
func NewTextNode(id, text, refDocID string) Node {
	return Node{
		ID:       id,
		Type:     NodeTypeText,
		Text:     text,
		Metadata: map[string]any{},
		RefDocID: refDocID,
	}
}

// NewDocument creates a document node, which is its own reference document
func NewDocument(id, text string, metadata map[string]any) Node {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Node{
		ID:       id,
		Type:     NodeTypeDocument,
		Text:     text,
		Metadata: metadata,
	}
}

// SourceID returns the id of the document owning this node.
func (n Node) SourceID() string {
	if n.RefDocID != "" {
		return n.RefDocID
	}
	return n.ID
}

// Content returns the raw text without any metadata rendering.
func (n Node) Content() string {
	return n.Text
}

// ComputeHash hashes the node type, text and metadata.
// encoding/json sorts map keys so the result is stable.
func (n Node) ComputeHash() string {
	h := sha256.New()
	h.Write([]byte(n.Type))
	h.Write([]byte{0})
	h.Write([]byte(n.Text))
	h.Write([]byte{0})
	if len(n.Metadata) > 0 {
		meta, _ := json.Marshal(n.Metadata)
		h.Write(meta)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetHash returns Hash, computing it when empty.
func (n Node) GetHash() string {
	if n.Hash != "" {
		return n.Hash
	}
	return n.ComputeHash()
}

// Clone returns a copy that shares no slices or maps with n.
func (n Node) Clone() Node {
	c := n
	if n.Embedding != nil {
		c.Embedding = append([]float32(nil), n.Embedding...)
	}
	if n.Metadata != nil {
		c.Metadata = maps.Clone(n.Metadata)
	}
	return c
}
