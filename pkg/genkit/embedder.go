package genkit

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/Zereker/storekit/pkg/errdefs"
)

// Embedder turns text into an embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenkitEmbedder calls a registered genkit embedder.
type GenkitEmbedder struct {
	g    *genkit.Genkit
	name string
	dim  int
}

var _ Embedder = (*GenkitEmbedder)(nil)

// NewEmbedder binds embedder name on g. A positive dim is enforced on every response.
func NewEmbedder(g *genkit.Genkit, name string, dim int) *GenkitEmbedder {
	return &GenkitEmbedder{g: g, name: name, dim: dim}
}

// Embed 生成文本的向量表示
func (e *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := genkit.Embed(ctx, e.g, ai.WithEmbedderName(e.name), ai.WithTextDocs(text))
	if err != nil {
		return nil, errdefs.Unavailable(err, "embed "+e.name)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedder %s returned no embedding", e.name)
	}

	embedding := resp.Embeddings[0].Embedding
	if e.dim > 0 && len(embedding) != e.dim {
		return nil, errdefs.DimensionMismatch(e.dim, len(embedding))
	}
	return embedding, nil
}
