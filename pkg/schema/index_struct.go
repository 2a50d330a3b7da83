package schema

import "github.com/google/uuid"

// IndexStructType names the shape of an index structure
type IndexStructType string

const (
	IndexStructSimpleDict   IndexStructType = "simple_dict"
	IndexStructList         IndexStructType = "list"
	IndexStructKeywordTable IndexStructType = "keyword_table"
)

// IndexStruct is the structural metadata of an index, not its vectors.
type IndexStruct struct {
	IndexID   string            `json:"index_id"`
	Summary   string            `json:"summary,omitempty"`
	Type      IndexStructType   `json:"type"`
	NodesDict map[string]string `json:"nodes_dict,omitempty"`
	NodeIDs   []string          `json:"node_ids,omitempty"`
}

// NewIndexStruct creates an empty structure with a generated id
func NewIndexStruct(t IndexStructType) IndexStruct {
	return IndexStruct{
		IndexID:   uuid.NewString(),
		Type:      t,
		NodesDict: map[string]string{},
	}
}

// AddNode records a node. Dict structures map vectorID to the node id,
// list structures keep node ids in insertion order.
func (s *IndexStruct) AddNode(nodeID, vectorID string) {
	switch s.Type {
	case IndexStructList:
		s.NodeIDs = append(s.NodeIDs, nodeID)
	default:
		if s.NodesDict == nil {
			s.NodesDict = map[string]string{}
		}
		if vectorID == "" {
			vectorID = nodeID
		}
		s.NodesDict[vectorID] = nodeID
	}
}

// DeleteNode removes every reference to nodeID.
func (s *IndexStruct) DeleteNode(nodeID string) {
	for vectorID, id := range s.NodesDict {
		if id == nodeID {
			delete(s.NodesDict, vectorID)
		}
	}
	kept := s.NodeIDs[:0]
	for _, id := range s.NodeIDs {
		if id != nodeID {
			kept = append(kept, id)
		}
	}
	s.NodeIDs = kept
}
