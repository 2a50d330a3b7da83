package schema

// FilterType names a metadata predicate kind
type FilterType string

// ExactMatch is the only predicate kind currently defined.
const ExactMatch FilterType = "ExactMatch"

// MetadataFilter is a single predicate over a metadata key
type MetadataFilter struct {
	Key        string     `json:"key"`
	Value      any        `json:"value"`
	FilterType FilterType `json:"filter_type"`
}

// MetadataFilters is a conjunction of predicates.
type MetadataFilters struct {
	Filters []MetadataFilter `json:"filters"`
}

// With returns a new filter set with f appended, leaving the receiver untouched.
func (m *MetadataFilters) With(f MetadataFilter) *MetadataFilters {
	out := &MetadataFilters{}
	if m != nil {
		out.Filters = make([]MetadataFilter, 0, len(m.Filters)+1)
		out.Filters = append(out.Filters, m.Filters...)
	}
	out.Filters = append(out.Filters, f)
	return out
}

// Len returns the number of predicates, nil safe.
func (m *MetadataFilters) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Filters)
}

// VectorStoreQuery is a top-K similarity request
type VectorStoreQuery struct {
	QueryEmbedding []float32        `json:"query_embedding"`
	SimilarityTopK int              `json:"similarity_top_k"`
	Filters        *MetadataFilters `json:"filters,omitempty"`
}

// VectorStoreQueryResult holds three co-indexed sequences ordered by descending similarity.
type VectorStoreQueryResult struct {
	Nodes        []Node    `json:"nodes"`
	Similarities []float64 `json:"similarities"`
	IDs          []string  `json:"ids"`
}

// EmptyResult returns a result with non-nil empty sequences.
func EmptyResult() VectorStoreQueryResult {
	return VectorStoreQueryResult{
		Nodes:        []Node{},
		Similarities: []float64{},
		IDs:          []string{},
	}
}

// Append adds one hit to all three sequences.
func (r *VectorStoreQueryResult) Append(node Node, score float64, id string) {
	r.Nodes = append(r.Nodes, node)
	r.Similarities = append(r.Similarities, score)
	r.IDs = append(r.IDs, id)
}

// Len returns the number of hits.
func (r VectorStoreQueryResult) Len() int {
	return len(r.IDs)
}
