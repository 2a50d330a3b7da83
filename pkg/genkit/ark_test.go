package genkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArkConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ArkConfig
		wantErr string
	}{
		{name: "missing api key", cfg: ArkConfig{BaseURL: "https://ark"}, wantErr: "api_key is required"},
		{name: "missing base url", cfg: ArkConfig{APIKey: "k"}, wantErr: "base_url is required"},
		{name: "no models", cfg: ArkConfig{APIKey: "k", BaseURL: "https://ark"}, wantErr: "at least one embedding model"},
		{
			name:    "model without name",
			cfg:     ArkConfig{APIKey: "k", BaseURL: "https://ark", Models: []ModelConfig{{Model: "m", Dim: 4}}},
			wantErr: "models[0].name is required",
		},
		{
			name: "valid",
			cfg:  ArkConfig{APIKey: "k", BaseURL: "https://ark", Models: []ModelConfig{{Name: "m", Model: "m", Dim: 4}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewArkPlugin(t *testing.T) {
	p := NewArkPlugin(ArkConfig{
		APIKey:  "k",
		BaseURL: "https://ark.example.com/api/v3",
		Models:  []ModelConfig{{Name: "emb", Model: "doubao-embedding", Dim: 1024}},
	})

	assert.Equal(t, "ark", p.Name())
	assert.Equal(t, "ark", p.Provider)
	assert.Equal(t, "https://ark.example.com/api/v3", p.BaseURL)
	assert.Len(t, p.models, 1)
}
