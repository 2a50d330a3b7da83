package genkit

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/storekit/pkg/errdefs"
)

func TestMockPlugin_DefaultBehavior(t *testing.T) {
	ctx := context.Background()

	// 使用默认配置初始化 mock plugin
	InitForTest(ctx, DefaultMockConfig())

	g := Genkit()
	require.NotNil(t, g)

	embedder := genkit.LookupEmbedder(g, "mock/test-embedding")
	require.NotNil(t, embedder, "mock embedder should be registered")

	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText("hello", nil)},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 1)
	assert.Len(t, resp.Embeddings[0].Embedding, 3)

	// 相同文本得到相同向量
	again, err := embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText("hello", nil)},
	})
	require.NoError(t, err)
	assert.Equal(t, resp.Embeddings[0].Embedding, again.Embeddings[0].Embedding)
}

func TestEmbedder(t *testing.T) {
	ctx := context.Background()
	mockPlugin := InitForTest(ctx, DefaultMockConfig())
	mockPlugin.SetVector("test-embedding", "cat", []float32{1, 0, 0})

	e := NewEmbedder(Genkit(), "mock/test-embedding", 3)
	vec, err := e.Embed(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)

	t.Run("dimension enforced", func(t *testing.T) {
		_, err := NewEmbedder(Genkit(), "mock/test-embedding", 4).Embed(ctx, "cat")
		assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	})

	t.Run("failure is unavailable", func(t *testing.T) {
		mockPlugin.SetFailure("test-embedding", errors.New("quota exceeded"))
		defer mockPlugin.SetFailure("test-embedding", nil)

		_, err := e.Embed(ctx, "cat")
		assert.ErrorIs(t, err, errdefs.ErrStoreUnavailable)
	})
}

func TestConfig(t *testing.T) {
	var empty Config
	assert.NoError(t, empty.Validate())
	assert.False(t, empty.Enabled())

	cfg := Config{
		Ark: ArkConfig{
			APIKey:  "k",
			BaseURL: "https://ark.example.com/api/v3",
			Models:  []ModelConfig{{Name: "emb", Model: "doubao-embedding", Dim: 1024}},
		},
	}
	assert.ErrorContains(t, cfg.Validate(), "embedder is required")

	cfg.Embedder = "ark/doubao-embedding"
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 1024, cfg.Dim())

	cfg.Ark.Models[0].Dim = 0
	assert.ErrorContains(t, cfg.Validate(), "models[0].dim")
}
