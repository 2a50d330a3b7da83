package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Node(t *testing.T) {
	node := Node{
		ID:        "n1",
		Type:      NodeTypeText,
		Text:      "cat",
		Embedding: []float32{0.5, 1},
		Metadata:  map[string]any{"category": "X"},
		RefDocID:  "doc",
	}

	m, err := ToMap(node)
	require.NoError(t, err)
	assert.IsType(t, []any{}, m["embedding"])

	var decoded Node
	require.NoError(t, Decode(m, &decoded))
	assert.Equal(t, node, decoded)
}

func TestDecode_StringSlice(t *testing.T) {
	var out struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, Decode(map[string]any{"ids": []any{"a", "b"}}, &out))
	assert.Equal(t, []string{"a", "b"}, out.IDs)
}

func TestToMap_NotAnObject(t *testing.T) {
	_, err := ToMap([]string{"a"})
	assert.Error(t, err)
}
