package genkit

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// MockConfig holds mock plugin configuration
type MockConfig struct {
	Provider string // Provider prefix (default: "mock"). Use "ark" to match real embedder names.
	Models   []ModelConfig
}

// MockPlugin implements a test-only genkit plugin with configurable embeddings
type MockPlugin struct {
	mu sync.RWMutex

	// provider prefix for embedder names
	provider string
	// vectors maps input text to a fixed embedding, per embedder
	vectors map[string]map[string][]float32
	// failures makes an embedder return an error
	failures map[string]error

	models []ModelConfig
}

// NewMockPlugin creates a new mock plugin for testing
func NewMockPlugin(cfg MockConfig) *MockPlugin {
	provider := cfg.Provider
	if provider == "" {
		provider = "mock"
	}
	return &MockPlugin{
		provider: provider,
		models:   cfg.Models,
		vectors:  make(map[string]map[string][]float32),
		failures: make(map[string]error),
	}
}

// Name returns the plugin name
func (p *MockPlugin) Name() string {
	return "mock"
}

// Init implements api.Plugin interface - registers all mock embedders
func (p *MockPlugin) Init(ctx context.Context) []api.Action {
	actions := make([]api.Action, 0, len(p.models))
	for _, m := range p.models {
		actions = append(actions, p.defineEmbedder(m).(api.Action))
	}
	return actions
}

// defineEmbedder creates a mock embedder
func (p *MockPlugin) defineEmbedder(m ModelConfig) ai.Embedder {
	name := fmt.Sprintf("%s/%s", p.provider, m.Model)
	return ai.NewEmbedder(name, &ai.EmbedderOptions{
		Label:      fmt.Sprintf("Mock %s", m.Name),
		Dimensions: m.Dim,
	}, func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
		p.mu.RLock()
		defer p.mu.RUnlock()

		if err := p.failures[m.Model]; err != nil {
			return nil, err
		}

		embeddings := make([]*ai.Embedding, len(req.Input))
		for i, doc := range req.Input {
			text := documentText(doc)
			vec, ok := p.vectors[m.Model][text]
			if !ok {
				vec = hashVector(text, m.Dim)
			}
			embeddings[i] = &ai.Embedding{Embedding: vec}
		}
		return &ai.EmbedResponse{Embeddings: embeddings}, nil
	})
}

// SetVector fixes the embedding returned for text by embedder model.
func (p *MockPlugin) SetVector(model, text string, vector []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vectors[model] == nil {
		p.vectors[model] = make(map[string][]float32)
	}
	p.vectors[model][text] = vector
}

// SetFailure makes embedder model fail with err, nil clears it.
func (p *MockPlugin) SetFailure(model string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[model] = err
}

func documentText(doc *ai.Document) string {
	var text string
	for _, part := range doc.Content {
		text += part.Text
	}
	return text
}

// hashVector derives a deterministic vector from text
func hashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d:%s", i, text)
		vec[i] = float32(h.Sum32()%1000) / 1000
	}
	return vec
}

// DefaultMockConfig returns a default mock config for testing
func DefaultMockConfig() MockConfig {
	return MockConfig{
		Models: []ModelConfig{
			{Name: "test-embedding", Model: "test-embedding", Dim: 3},
		},
	}
}
