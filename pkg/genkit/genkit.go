// Package genkit wires firebase genkit embedders used to turn query text into vectors.
package genkit

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/pkg/errors"
)

// ModelConfig holds configuration for a single embedding model (shared by all vendors)
type ModelConfig struct {
	Name    string `toml:"name"`     // Display name (e.g., "doubao-embedding")
	Model   string `toml:"model"`    // Actual model identifier, registered as <provider>/<model>
	BaseURL string `toml:"base_url"` // Override base URL for this model (optional)
	Dim     int    `toml:"dim"`      // Embedding dimension
}

// Validate validates a model config
func (m *ModelConfig) Validate(index int) error {
	if m.Name == "" {
		return fmt.Errorf("models[%d].name is required", index)
	}
	if m.Model == "" {
		return fmt.Errorf("models[%d].model is required", index)
	}
	if m.Dim <= 0 {
		return fmt.Errorf("models[%d].dim is required for embedding model", index)
	}
	return nil
}

// Config holds unified genkit configuration with all vendors
type Config struct {
	Ark ArkConfig `toml:"ark"`

	// Embedder is the fully qualified embedder used for query_text, e.g. "ark/doubao-embedding-text-240715".
	Embedder string `toml:"embedder"`
}

// Enabled reports whether any vendor is configured.
func (c *Config) Enabled() bool {
	return len(c.Ark.Models) > 0
}

// Validate checks genkit configuration
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if err := c.Ark.Validate(); err != nil {
		return fmt.Errorf("ark: %w", err)
	}
	if c.Embedder == "" {
		return fmt.Errorf("embedder is required when models are configured")
	}
	return nil
}

// Dim returns the configured dimension of the selected embedder, 0 when unknown.
func (c *Config) Dim() int {
	for _, m := range c.Ark.Models {
		if "ark/"+m.Model == c.Embedder {
			return m.Dim
		}
	}
	return 0
}

var g *genkit.Genkit

// Init initializes the genkit package with multi-vendor config
func Init(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.WithMessage(err, "invalid config")
	}

	var plugins []api.Plugin

	if len(cfg.Ark.Models) > 0 {
		plugins = append(plugins, NewArkPlugin(cfg.Ark))
	}

	g = genkit.Init(ctx, genkit.WithPlugins(plugins...))
	return nil
}

// InitForTest initializes genkit with a mock plugin for testing.
// Returns the mock plugin for configuring responses.
func InitForTest(ctx context.Context, cfg MockConfig) *MockPlugin {
	mockPlugin := NewMockPlugin(cfg)
	g = genkit.Init(ctx, genkit.WithPlugins(mockPlugin))
	return mockPlugin
}

// Genkit returns the Genkit instance
func Genkit() *genkit.Genkit {
	return g
}
